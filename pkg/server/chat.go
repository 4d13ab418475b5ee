package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ragdesk/ragdesk/pkg/api"
	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/config"
	"github.com/ragdesk/ragdesk/pkg/model/provider"
	"github.com/ragdesk/ragdesk/pkg/runtime"
	"github.com/ragdesk/ragdesk/pkg/session"
	"github.com/ragdesk/ragdesk/pkg/sessiontitle"
)

const baseSystemPrompt = `You are a helpful assistant with access to tools.

When a question depends on the current date, such as anything involving "latest", "recent", "today" or "this year", call get_current_time first and use the returned date in your searches. Use web_search for facts you are unsure about and search_recent_news for current events. Use fetch_webpage to read a page behind a search result when the snippet is not enough.

When reference documents are provided, ground your answer in them and cite them with bracketed numbers like [1] that match the document numbering. Do not invent citations.`

const reasoningSystemPrompt = baseSystemPrompt + `

Think through the problem carefully before answering. Keep the final answer self-contained; the user may not see your reasoning.`

// chatStream handles POST /api/chat/stream: it runs the orchestration
// loop and relays each event as one SSE data frame.
func (s *Server) chatStream(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()

	p, mc, err := s.providerFor(ctx, req.Model)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}

	sess, userText, err := s.prepareSession(ctx, &req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}

	rt := runtime.New(p, s.registry,
		runtime.WithStore(s.store),
		runtime.WithMaxIterations(s.cfg.MaxIterations),
	)

	events := rt.RunStream(ctx, runtime.RunOptions{
		Messages:    buildMessages(&req, userText, p.Capabilities()),
		Chunks:      req.DocumentChunks,
		EnableTools: mc.SupportsTools,
		SessionID:   sessionID(sess),
	})

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)

	completed := false
	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Error("Marshalling event failed", "error", err)
			continue
		}
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", data); err != nil {
			slog.Debug("Client went away", "error", err)
			return nil
		}
		resp.Flush()

		if _, ok := ev.(*runtime.MessageCompleteEvent); ok {
			completed = true
		}
	}

	if completed && sess != nil && sess.Title == session.DefaultTitle {
		s.generateTitle(sess.ID, userText, p)
	}
	return nil
}

// chat handles POST /api/chat: the same orchestration run, drained
// into a single JSON response.
func (s *Server) chat(c echo.Context) error {
	var req api.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()

	p, mc, err := s.providerFor(ctx, req.Model)
	if err != nil {
		return c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	}

	sess, userText, err := s.prepareSession(ctx, &req)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: err.Error()})
	}

	rt := runtime.New(p, s.registry,
		runtime.WithStore(s.store),
		runtime.WithMaxIterations(s.cfg.MaxIterations),
	)

	events := rt.RunStream(ctx, runtime.RunOptions{
		Messages:    buildMessages(&req, userText, p.Capabilities()),
		Chunks:      req.DocumentChunks,
		EnableTools: mc.SupportsTools,
		SessionID:   sessionID(sess),
	})

	for ev := range events {
		switch e := ev.(type) {
		case *runtime.MessageCompleteEvent:
			if sess != nil && sess.Title == session.DefaultTitle {
				s.generateTitle(sess.ID, userText, p)
			}
			return c.JSON(http.StatusOK, api.ChatResponse{
				Content:    e.FullContent,
				References: e.References,
				SessionID:  sessionID(sess),
			})
		case *runtime.ErrorEvent:
			return c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: e.Error})
		}
	}
	return c.JSON(http.StatusBadGateway, api.ErrorResponse{Error: "model produced no response"})
}

func (s *Server) providerFor(ctx context.Context, alias string) (provider.Provider, config.ModelConfig, error) {
	mc, err := s.cfg.Model(alias)
	if err != nil {
		return nil, config.ModelConfig{}, err
	}
	p, err := s.newProvider(ctx, mc, s.env)
	if err != nil {
		return nil, config.ModelConfig{}, err
	}
	return p, mc, nil
}

// prepareSession resolves or creates the session and persists the
// incoming user message. A request without a session id and without a
// store runs sessionless.
func (s *Server) prepareSession(ctx context.Context, req *api.ChatRequest) (*session.Session, string, error) {
	userText := requestText(req)

	if s.store == nil {
		return nil, userText, nil
	}

	var sess *session.Session
	if req.SessionID != "" {
		existing, err := s.store.GetSession(ctx, req.SessionID)
		if err != nil {
			return nil, "", fmt.Errorf("loading session %s: %w", req.SessionID, err)
		}
		sess = existing
	} else {
		sess = session.New("")
		if err := s.store.AddSession(ctx, sess); err != nil {
			return nil, "", fmt.Errorf("creating session: %w", err)
		}
	}

	userMsg := session.Message{
		Role:      string(chat.MessageRoleUser),
		Content:   userText,
		CreatedAt: time.Now(),
	}
	if err := s.store.AppendMessage(ctx, sess.ID, userMsg); err != nil {
		slog.Error("Persisting user message failed", "session_id", sess.ID, "error", err)
	}

	return sess, userText, nil
}

// generateTitle replaces the placeholder title after the first
// exchange. Runs detached from the request.
func (s *Server) generateTitle(sessID, userText string, p provider.Provider) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		title := sessiontitle.NewGenerator(p).Generate(ctx, userText)
		if err := s.store.UpdateSessionTitle(ctx, sessID, title); err != nil {
			slog.Error("Updating session title failed", "session_id", sessID, "error", err)
		}
	}()
}

// buildMessages assembles the model context: system prompt, prior
// turns, then the current user message, multimodal when the request
// carries content blocks.
func buildMessages(req *api.ChatRequest, userText string, caps provider.Capabilities) []chat.Message {
	prompt := baseSystemPrompt
	if caps.SupportsReasoningChannel {
		prompt = reasoningSystemPrompt
	}

	messages := make([]chat.Message, 0, len(req.History)+2)
	messages = append(messages, chat.SystemMessage(prompt))

	for _, h := range req.History {
		switch h.Role {
		case string(chat.MessageRoleUser):
			messages = append(messages, chat.UserMessage(h.Content))
		case string(chat.MessageRoleAssistant):
			messages = append(messages, chat.AssistantMessage(h.Content))
		}
	}

	if parts := contentParts(req.ContentBlocks); len(parts) > 0 {
		messages = append(messages, chat.Message{
			Role:         chat.MessageRoleUser,
			MultiContent: parts,
		})
	} else {
		messages = append(messages, chat.UserMessage(userText))
	}
	return messages
}

// contentParts converts content blocks to message parts. Audio blocks
// contribute their transcription as text; unknown types are dropped.
func contentParts(blocks []api.ContentBlock) []chat.MessagePart {
	var parts []chat.MessagePart
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Content != "" {
				parts = append(parts, chat.MessagePart{
					Type: chat.MessagePartTypeText,
					Text: b.Content,
				})
			}
		case "image":
			if b.Content != "" {
				parts = append(parts, chat.MessagePart{
					Type:     chat.MessagePartTypeImageURL,
					ImageURL: &chat.MessageImageURL{URL: b.Content},
				})
			}
		case "audio", "file":
			text := b.Transcription
			if text == "" {
				text = b.Content
			}
			if text != "" {
				parts = append(parts, chat.MessagePart{
					Type: chat.MessagePartTypeText,
					Text: text,
				})
			}
		}
	}
	return parts
}

// requestText flattens the request into the plain user question used
// for persistence, review and title generation.
func requestText(req *api.ChatRequest) string {
	if req.Content != "" {
		return req.Content
	}
	var parts []string
	for _, b := range req.ContentBlocks {
		switch {
		case b.Type == "text" && b.Content != "":
			parts = append(parts, b.Content)
		case b.Transcription != "":
			parts = append(parts, b.Transcription)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func sessionID(sess *session.Session) string {
	if sess == nil {
		return ""
	}
	return sess.ID
}
