// Package dispatch receives chat updates, maintains the bounded message
// store, and serves the summarize and stats commands.
package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/recaplabs/recap/internal/chat"
	"github.com/recaplabs/recap/internal/control"
	"github.com/recaplabs/recap/internal/db"
	"github.com/recaplabs/recap/internal/ops"
	"github.com/recaplabs/recap/internal/store"
	"github.com/recaplabs/recap/internal/summary"
	"github.com/recaplabs/recap/internal/transcript"
)

// User-facing replies. The raw provider error is only ever logged.
const (
	msgNothingToSummarize = "No messages to summarize."
	msgSummarizing        = "I'm summarizing your conversation..."
	msgSummarizeFailed    = "Sorry, I couldn't generate a summary. Please try again later."
	msgRateLimited        = "You're requesting summaries too quickly. Please try again in a bit."

	helpText = `These commands are supported:
/summarize <count> - summarize the last <count> messages (default 100)
/stats - show what the bot currently retains
/help - display this help message`
)

// Options configures a Dispatcher.
type Options struct {
	DefaultWindow  int  // summarize window when no count is given
	TrackTopics    bool // track forum topics as separate conversations
	PollTimeout    int  // long-poll timeout in seconds
	SleepSeconds   int  // pause between polls when idle or failing
	DropPending    bool // skip the update backlog at startup
	SummarizeRPS   float64
	SummarizeBurst int

	EventLog    *sql.DB // optional diagnostic event log
	RootEventID int64   // parent event for everything this dispatcher logs
	Metrics     *ops.Metrics
}

// Dispatcher is the adapter between the chat gateway and the core. It
// carries no conversation state of its own; everything lives in the
// store.
type Dispatcher struct {
	store      *store.Store
	gateway    chat.Gateway
	summarizer summary.Summarizer

	defaultWindow int
	trackTopics   bool
	pollTimeout   int
	sleepSeconds  int
	dropPending   bool

	eventLog    *sql.DB
	rootEventID int64
	metrics     *ops.Metrics

	limiters  limiterPool
	startedAt time.Time
	wg        sync.WaitGroup
}

// New creates a dispatcher over the given store, gateway, and summarizer.
func New(st *store.Store, gw chat.Gateway, sum summary.Summarizer, opts Options) *Dispatcher {
	if opts.DefaultWindow <= 0 {
		opts.DefaultWindow = 100
	}
	if opts.DefaultWindow > st.Capacity() {
		opts.DefaultWindow = st.Capacity()
	}
	if opts.SleepSeconds <= 0 {
		opts.SleepSeconds = 1
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = ops.NewMetrics(prometheus.NewRegistry())
	}
	burst := opts.SummarizeBurst
	if burst <= 0 {
		burst = 1
	}
	return &Dispatcher{
		store:         st,
		gateway:       gw,
		summarizer:    sum,
		defaultWindow: opts.DefaultWindow,
		trackTopics:   opts.TrackTopics,
		pollTimeout:   opts.PollTimeout,
		sleepSeconds:  opts.SleepSeconds,
		dropPending:   opts.DropPending,
		eventLog:      opts.EventLog,
		rootEventID:   opts.RootEventID,
		metrics:       metrics,
		limiters:      limiterPool{rps: opts.SummarizeRPS, burst: burst},
		startedAt:     time.Now(),
	}
}

// Run polls the gateway until ctx is cancelled. Plain messages are
// appended inline; command handling runs in its own goroutine so a slow
// summarization never stalls the poll.
func (d *Dispatcher) Run(ctx context.Context) {
	var offset int64
	if d.dropPending {
		offset = d.skipBacklog()
	}

	breaker := control.NewBreaker(5, 30*time.Second)
	for ctx.Err() == nil {
		prev := breaker.State()
		if !breaker.Allow(time.Now()) {
			d.sleep(ctx)
			continue
		}
		if prev == control.Open && breaker.State() == control.HalfOpen {
			d.logEvent(db.EventCircuitHalfOpen, map[string]any{"error_class": breaker.OpenedClass()})
		}

		updates, err := d.gateway.GetUpdates(offset, d.pollTimeout)
		if err != nil {
			log.Printf("getUpdates error: %v", err)
			errClass := classifyError(err)
			prev := breaker.State()
			breaker.RecordFailure(errClass, time.Now())
			if prev != control.Open && breaker.State() == control.Open {
				d.logEvent(db.EventCircuitOpened, map[string]any{
					"error_class":      errClass,
					"threshold":        breaker.Threshold,
					"cooldown_seconds": int(breaker.Cooldown.Seconds()),
				})
			}
			d.sleep(ctx)
			continue
		}
		if breaker.State() != control.Closed {
			d.logEvent(db.EventCircuitClosed, map[string]any{"recovered": true})
		}
		breaker.RecordSuccess()

		for _, update := range updates {
			offset = update.UpdateID + 1
			msg := update.Message
			if msg == nil || msg.Text == nil || *msg.Text == "" {
				continue
			}
			if _, _, ok := parseCommand(*msg.Text); ok {
				d.wg.Add(1)
				go func(u chat.Update) {
					defer d.wg.Done()
					d.HandleUpdate(u)
				}(update)
			} else {
				d.HandleUpdate(update)
			}
		}

		if len(updates) == 0 {
			d.sleep(ctx)
		}
	}
	d.wg.Wait()
}

// HandleUpdate processes one inbound update synchronously: commands are
// dispatched, everything else is stored.
func (d *Dispatcher) HandleUpdate(update chat.Update) {
	msg := update.Message
	if msg == nil || msg.Text == nil || *msg.Text == "" {
		return
	}
	if name, arg, ok := parseCommand(*msg.Text); ok {
		switch name {
		case "summarize":
			d.handleSummarize(msg, arg)
		case "stats":
			d.handleStats(msg)
		case "help", "start":
			d.reply(msg, helpText)
		}
		return
	}
	d.storeMessage(msg)
}

// storeMessage appends an ordinary message. Messages without a
// resolvable sender carry no attribution and are dropped, not stored.
func (d *Dispatcher) storeMessage(msg *chat.Message) {
	if msg.From == nil {
		d.metrics.MessagesDropped.Inc()
		return
	}
	var replyTo int64
	if msg.ReplyToMessage != nil {
		replyTo = msg.ReplyToMessage.MessageID
	}
	evicted := d.store.Append(d.keyFor(msg), store.Message{
		ID:      msg.MessageID,
		Author:  msg.From.DisplayName(),
		ReplyTo: replyTo,
		Text:    *msg.Text,
		Date:    msg.Date,
	})
	d.metrics.MessagesStored.Inc()
	if evicted {
		d.metrics.Evictions.Inc()
	}
}

func (d *Dispatcher) handleSummarize(msg *chat.Message, arg string) {
	n := d.defaultWindow
	if arg != "" {
		parsed, err := strconv.Atoi(arg)
		if err != nil || parsed < 1 || parsed > d.store.Capacity() {
			d.reply(msg, fmt.Sprintf("Please provide a valid number between 1 and %d", d.store.Capacity()))
			return
		}
		n = parsed
	}
	if !d.limiters.allow(msg.Chat.ID) {
		d.reply(msg, msgRateLimited)
		return
	}

	msgs := d.store.Tail(d.keyFor(msg), n)
	if len(msgs) == 0 {
		d.reply(msg, msgNothingToSummarize)
		return
	}

	d.logEvent(db.EventSummarizeRequested, map[string]any{
		"chat_id":  msg.Chat.ID,
		"window":   n,
		"messages": len(msgs),
	})
	d.reply(msg, msgSummarizing)

	started := time.Now()
	result, err := d.summarizer.Summarize(transcript.Render(msgs))
	if err != nil {
		log.Printf("summarize failed chat_id=%d: %v", msg.Chat.ID, err)
		d.metrics.SummaryFailures.Inc()
		d.logEvent(db.EventSummarizeFailed, map[string]any{
			"chat_id": msg.Chat.ID,
			"error":   truncate(err.Error(), 400),
		})
		d.reply(msg, msgSummarizeFailed)
		return
	}
	d.metrics.Summaries.Inc()
	d.logEvent(db.EventSummarizeCompleted, map[string]any{
		"chat_id":    msg.Chat.ID,
		"messages":   len(msgs),
		"latency_ms": time.Since(started).Milliseconds(),
	})
	d.reply(msg, result)
}

func (d *Dispatcher) handleStats(msg *chat.Message) {
	stats := d.store.Stats()
	count := d.store.Count(d.keyFor(msg))
	report := fmt.Sprintf(
		"Conversations tracked: %d\nMessages retained: %d (~%s)\nThis conversation: %d of %d\nUptime: %s",
		stats.Buffers,
		stats.Messages,
		formatBytes(stats.ApproxBytes),
		count,
		d.store.Capacity(),
		time.Since(d.startedAt).Truncate(time.Second),
	)
	d.reply(msg, report)
}

// keyFor maps a message to its conversation key. Topic threads become a
// separate dimension only when topic tracking is on and the transport
// flagged the message as a forum-topic message.
func (d *Dispatcher) keyFor(msg *chat.Message) store.Key {
	key := store.Key{Chat: msg.Chat.ID}
	if d.trackTopics && msg.IsTopicMessage {
		key.Topic = msg.MessageThreadID
		key.HasTopic = true
	}
	return key
}

// reply sends text back to the message's conversation, staying inside
// its forum topic when there is one.
func (d *Dispatcher) reply(msg *chat.Message, text string) {
	opts := chat.SendOptions{}
	if d.trackTopics && msg.IsTopicMessage {
		opts.ThreadID = msg.MessageThreadID
	}
	if err := d.gateway.SendMessage(msg.Chat.ID, text, opts); err != nil {
		log.Printf("sendMessage error chat_id=%d: %v", msg.Chat.ID, err)
	}
}

// skipBacklog advances past all pending updates so a restart does not
// replay (and store) stale history.
func (d *Dispatcher) skipBacklog() int64 {
	var offset int64
	skipped := 0
	for {
		updates, err := d.gateway.GetUpdates(offset, 0)
		if err != nil {
			log.Printf("skip backlog error: %v", err)
			return offset
		}
		if len(updates) == 0 {
			break
		}
		offset = updates[len(updates)-1].UpdateID + 1
		skipped += len(updates)
	}
	if skipped > 0 {
		log.Printf("skipped %d pending updates", skipped)
	}
	return offset
}

func (d *Dispatcher) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(d.sleepSeconds) * time.Second):
	}
}

// logEvent writes to the diagnostic event log when one is configured.
func (d *Dispatcher) logEvent(eventType string, payload map[string]any) {
	if d.eventLog == nil {
		return
	}
	var parent *int64
	if d.rootEventID > 0 {
		parent = &d.rootEventID
	}
	if _, err := db.LogEvent(d.eventLog, parent, eventType, payload); err != nil {
		log.Printf("failed to log %s event: %v", eventType, err)
	}
}

// parseCommand splits a bot command into name and raw argument string.
// ok is false for ordinary text and for commands this bot doesn't know,
// which are then treated as plain messages.
func parseCommand(text string) (name, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}
	fields := strings.Fields(text)
	name = strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)
	switch name {
	case "summarize", "stats", "help", "start":
	default:
		return "", "", false
	}
	arg = strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
	return name, arg, true
}

func classifyError(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := err.Error()
	switch {
	case containsAny(msg, "telegram", "gateway"):
		return "telegram_api"
	case containsAny(msg, "summarize", "summarizer", "provider"):
		return "provider_api"
	default:
		return "unknown"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
