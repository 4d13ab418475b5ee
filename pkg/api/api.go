// Package api defines the HTTP request and response shapes.
package api

import (
	"github.com/ragdesk/ragdesk/pkg/reference"
	"github.com/ragdesk/ragdesk/pkg/session"
)

// ContentBlock is one piece of a multimodal user message.
type ContentBlock struct {
	// Type is "text", "image" or "file".
	Type          string `json:"type"`
	Content       string `json:"content"`
	Thumbnail     string `json:"thumbnail,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	Filename      string `json:"filename,omitempty"`
	Filesize      int64  `json:"filesize,omitempty"`
}

// HistoryMessage is one prior turn supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat and /api/chat/stream.
type ChatRequest struct {
	Content        string            `json:"content"`
	ContentBlocks  []ContentBlock    `json:"content_blocks,omitempty"`
	DocumentChunks []reference.Chunk `json:"document_chunks,omitempty"`
	History        []HistoryMessage  `json:"history,omitempty"`
	Model          string            `json:"model,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Content    string                `json:"content"`
	References []reference.Reference `json:"references"`
	SessionID  string                `json:"session_id,omitempty"`
}

// ModelInfo describes one selectable model alias.
type ModelInfo struct {
	Alias             string `json:"alias"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	SupportsTools     bool   `json:"supports_tools"`
	SupportsReasoning bool   `json:"supports_reasoning"`
	Default           bool   `json:"default"`
}

type ModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

type CreateSessionRequest struct {
	Title string `json:"title,omitempty"`
}

type SessionsResponse struct {
	Sessions []session.Summary `json:"sessions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
