// Package chat defines the transport abstraction the dispatcher speaks.
// Implementations live in internal/telegram and internal/dummy.
package chat

// Gateway is the chat transport abstraction: it delivers inbound updates
// and sends outbound text.
type Gateway interface {
	GetUpdates(offset int64, timeout int) ([]Update, error)
	SendMessage(chatID int64, text string, opts SendOptions) error
}

// SendOptions are the optional knobs for an outgoing message.
type SendOptions struct {
	ReplyTo   int64  // message ID to reply to; 0 for none
	ThreadID  int64  // forum topic thread; 0 for the main line
	ParseMode string // transport formatting mode; empty for plain text
}

// Update represents one inbound update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents an inbound chat message.
type Message struct {
	MessageID       int64    `json:"message_id"`
	From            *User    `json:"from,omitempty"`
	Chat            Chat     `json:"chat"`
	Date            int64    `json:"date"`
	Text            *string  `json:"text,omitempty"`
	ReplyToMessage  *Message `json:"reply_to_message,omitempty"`
	MessageThreadID int64    `json:"message_thread_id,omitempty"`
	IsTopicMessage  bool     `json:"is_topic_message,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID int64 `json:"id"`
}

// User identifies a message sender.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// DisplayName returns the best-effort human-readable sender name:
// username when set, otherwise first name. Cosmetic only, never used
// for authorization.
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}
