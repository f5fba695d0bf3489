// Package transcript flattens a snapshot of retained messages into the
// line-oriented text handed to the summarization provider.
package transcript

import (
	"strings"

	"github.com/recaplabs/recap/internal/store"
)

const (
	unknownAuthor = "Unknown"
	unknownTarget = "someone"
)

// newlineEscaper rewrites literal line breaks inside a message body to
// the two-character sequence `\n` so one message is always one line.
var newlineEscaper = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\n`)

// Render produces one line per message, in snapshot order, each line
// terminated with a newline. Reply targets are resolved against the
// snapshot itself; a target outside the snapshot (typically evicted)
// degrades to a placeholder rather than an error. Render is pure:
// identical snapshots render identically.
func Render(msgs []store.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		author := m.Author
		if author == "" {
			author = unknownAuthor
		}
		b.WriteString(author)
		if m.ReplyTo != 0 {
			b.WriteString(" (replying to ")
			b.WriteString(resolveTarget(msgs, m.ReplyTo))
			b.WriteString(")")
		}
		b.WriteString(": ")
		b.WriteString(newlineEscaper.Replace(m.Text))
		b.WriteByte('\n')
	}
	return b.String()
}

// resolveTarget finds the author of the referenced message within the
// snapshot. A missing message or one without a resolvable author both
// fall back to the same placeholder.
func resolveTarget(msgs []store.Message, replyTo int64) string {
	for _, m := range msgs {
		if m.ID == replyTo {
			if m.Author != "" {
				return m.Author
			}
			break
		}
	}
	return unknownTarget
}
