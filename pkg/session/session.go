// Package session holds the persistent conversation log.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/ragdesk/ragdesk/pkg/reference"
)

// Session is one conversation: metadata plus an append-only message
// log.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// Message is one stored conversation entry. Never mutated after
// append.
type Message struct {
	Role       string                `json:"role"`
	Content    string                `json:"content"`
	References []reference.Reference `json:"references,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Summary is lightweight session metadata for listing, without the
// message log.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

const DefaultTitle = "New conversation"

// New creates a session with a fresh id.
func New(title string) *Session {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return &Session{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
