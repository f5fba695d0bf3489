package telegram

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/recaplabs/recap/internal/chat"
)

func TestGetUpdates_DecodesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/getUpdates" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("offset"); got != "42" {
			t.Errorf("offset = %s, want 42", got)
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":[
			{"update_id":42,"message":{
				"message_id":7,
				"from":{"id":5,"username":"alice"},
				"chat":{"id":123},
				"date":1700000000,
				"text":"hello",
				"reply_to_message":{"message_id":3,"chat":{"id":123},"date":1699999999},
				"message_thread_id":9,
				"is_topic_message":true
			}}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	updates, err := c.GetUpdates(42, 0)
	if err != nil {
		t.Fatalf("GetUpdates failed: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	msg := updates[0].Message
	if msg == nil || msg.Text == nil || *msg.Text != "hello" {
		t.Fatalf("unexpected message: %#v", msg)
	}
	if msg.From.DisplayName() != "alice" {
		t.Errorf("display name = %q, want alice", msg.From.DisplayName())
	}
	if msg.ReplyToMessage == nil || msg.ReplyToMessage.MessageID != 3 {
		t.Errorf("reply target not decoded: %#v", msg.ReplyToMessage)
	}
	if msg.MessageThreadID != 9 || !msg.IsTopicMessage {
		t.Errorf("topic fields not decoded: thread=%d topic=%v", msg.MessageThreadID, msg.IsTopicMessage)
	}
}

func TestGetUpdates_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":false,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	if _, err := c.GetUpdates(0, 0); err == nil {
		t.Fatal("expected error for ok=false response")
	} else if !strings.Contains(err.Error(), "Unauthorized") {
		t.Errorf("error should carry the API description, got %v", err)
	}
}

func TestSendMessage_PayloadFields(t *testing.T) {
	var got sendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendMessage" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("payload is not valid JSON: %v", err)
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	err := c.SendMessage(123, "summary text", chat.SendOptions{ReplyTo: 7, ThreadID: 9})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got.ChatID != 123 || got.Text != "summary text" {
		t.Errorf("unexpected payload: %+v", got)
	}
	if got.ReplyToMessageID != 7 || got.MessageThreadID != 9 {
		t.Errorf("send options not forwarded: %+v", got)
	}
	if got.ParseMode != "" {
		t.Errorf("parse mode should be omitted, got %q", got.ParseMode)
	}
}

func TestSendMessage_TruncatesLongText(t *testing.T) {
	var got sendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		_, _ = io.WriteString(w, `{"ok":true,"result":{}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	long := strings.Repeat("x", maxMessageChars+500)
	if err := c.SendMessage(1, long, chat.SendOptions{}); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if len(got.Text) != maxMessageChars {
		t.Errorf("text length = %d, want %d", len(got.Text), maxMessageChars)
	}
}

func TestSendMessage_NotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"ok":false,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2*time.Second)
	if err := c.SendMessage(1, "hi", chat.SendOptions{}); err == nil {
		t.Fatal("expected error for ok=false response")
	}
}
