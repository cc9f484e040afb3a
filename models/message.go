package models

import (
	"time"

	"chatstatus-backend/store"
)

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)

// System notice events recorded in a chat's message log.
const (
	EventMemberJoined = "member_joined"
	EventMemberLeft   = "member_left"
)

// Message is a single entry of a chat's append-only message log. System
// notices (membership changes) are messages with Type "system" and an Event.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Type       string    `json:"type"`
	Event      string    `json:"event,omitempty"`
	SentAt     time.Time `json:"sentAt"`
}

func MessageFromDoc(doc *store.Document) *Message {
	m := &Message{
		ID:         doc.ID,
		SenderID:   doc.StringField("senderId"),
		SenderName: doc.StringField("senderName"),
		Text:       doc.StringField("text"),
		Type:       doc.StringField("type"),
		Event:      doc.StringField("event"),
		SentAt:     doc.TimeField("sentAt"),
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return m
}

// ChatSummary is the chat-list read model: one row per chat the caller is in,
// with an unread flag derived from lastMessageAt vs the caller's lastReadAt.
type ChatSummary struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"` // group, direct
	Name          string     `json:"name"`
	Visibility    Visibility `json:"visibility,omitempty"`
	LastMessageAt time.Time  `json:"last_message_at"`
	Unread        bool       `json:"unread"`
}

// LastReadAt extracts the caller's read marker from a chat document.
func LastReadAt(doc *store.Document, userID string) time.Time {
	marks, ok := doc.Data["lastReadAt"].(map[string]interface{})
	if !ok {
		return time.Time{}
	}
	return store.AsTime(marks[userID])
}

type SendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

type DirectChatRequest struct {
	UserID string `json:"user_id" binding:"required"`
}
