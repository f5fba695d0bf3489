package summary

// Summarizer produces a summary of a rendered conversation transcript.
// Implementations are stateless per call and bound their own timeouts.
type Summarizer interface {
	Summarize(transcript string) (string, error)
}
