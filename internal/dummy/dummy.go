// Package dummy provides script-driven stand-ins for the chat gateway
// and the summarization provider, used for offline runs and end-to-end
// tests without Telegram or an API key.
//
// A script is a comma-separated action list; the last action repeats
// once the script is exhausted:
//
//	ok          succeed (gateway poll: no updates; summarizer: canned text)
//	err:CLASS   fail with an error mentioning CLASS
//	sleep:MS    sleep, then succeed
//	msg:TEXT    gateway poll only: deliver TEXT as a message from "dummy"
package dummy

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/recaplabs/recap/internal/chat"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		switch {
		case token == "":
			continue
		case token == "ok":
			actions = append(actions, action{kind: "ok"})
		case strings.HasPrefix(token, "err:"):
			actions = append(actions, action{kind: "err", arg: strings.TrimPrefix(token, "err:")})
		case strings.HasPrefix(token, "sleep:"):
			actions = append(actions, action{kind: "sleep", arg: strings.TrimPrefix(token, "sleep:")})
		case strings.HasPrefix(token, "msg:"):
			actions = append(actions, action{kind: "msg", arg: strings.TrimPrefix(token, "msg:")})
		default:
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

// Gateway is a script-driven chat.Gateway.
type Gateway struct {
	mu        sync.Mutex
	poll      *scriptRunner
	send      *scriptRunner
	updateID  int64
	messageID int64

	Sent []string // outgoing texts, for inspection in tests
}

// NewGateway creates a gateway driven by the given poll and send scripts.
func NewGateway(pollScript, sendScript string) (*Gateway, error) {
	poll, err := newRunner(pollScript)
	if err != nil {
		return nil, err
	}
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Gateway{poll: poll, send: send}, nil
}

// GetUpdates plays the next poll action.
func (g *Gateway) GetUpdates(offset int64, timeout int) ([]chat.Update, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a := g.poll.next()
	switch a.kind {
	case "err":
		return nil, fmt.Errorf("dummy gateway error class=%s", emptyAs(a.arg, "telegram_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
		return nil, nil
	case "msg":
		text := a.arg
		g.updateID++
		g.messageID++
		return []chat.Update{
			{
				UpdateID: g.updateID,
				Message: &chat.Message{
					MessageID: g.messageID,
					From:      &chat.User{ID: 1, Username: "dummy"},
					Chat:      chat.Chat{ID: 1},
					Date:      time.Now().Unix(),
					Text:      &text,
				},
			},
		}, nil
	default:
		return nil, nil
	}
}

// SendMessage plays the next send action and records the text.
func (g *Gateway) SendMessage(chatID int64, text string, opts chat.SendOptions) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	a := g.send.next()
	if a.kind == "err" {
		return fmt.Errorf("dummy gateway send error class=%s", emptyAs(a.arg, "telegram_api"))
	}
	g.Sent = append(g.Sent, text)
	return nil
}

// Summarizer is a script-driven summary.Summarizer.
type Summarizer struct {
	mu     sync.Mutex
	script *scriptRunner
}

// NewSummarizer creates a summarizer driven by the given script.
func NewSummarizer(script string) (*Summarizer, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Summarizer{script: runner}, nil
}

// Summarize plays the next action; "ok" yields a canned summary naming
// the transcript line count.
func (s *Summarizer) Summarize(transcript string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.script.next()
	switch a.kind {
	case "err":
		return "", fmt.Errorf("dummy summarizer error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		ms, _ := strconv.Atoi(a.arg)
		if ms > 0 {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		}
	}
	lines := strings.Count(transcript, "\n")
	return fmt.Sprintf("(dummy summary of %d lines)", lines), nil
}

func emptyAs(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
