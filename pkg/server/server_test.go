package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/pkg/api"
	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/config"
	"github.com/ragdesk/ragdesk/pkg/environment"
	"github.com/ragdesk/ragdesk/pkg/model/provider"
	"github.com/ragdesk/ragdesk/pkg/session"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

type stubStream struct {
	deltas []chat.MessageDelta
	pos    int
}

func (s *stubStream) Recv() (chat.MessageStreamResponse, error) {
	if s.pos >= len(s.deltas) {
		return chat.MessageStreamResponse{}, io.EOF
	}
	d := s.deltas[s.pos]
	s.pos++
	return chat.MessageStreamResponse{Choices: []chat.MessageStreamChoice{{Delta: d}}}, nil
}

func (s *stubStream) Close() {}

type stubProvider struct {
	caps   provider.Capabilities
	answer string
	title  string
}

func (p *stubProvider) CreateChatCompletion(_ context.Context, messages []chat.Message, _ []tools.Tool) (*chat.Message, error) {
	// The title generator is the only caller that sends the title
	// prompt as the system message.
	if strings.Contains(messages[0].Content, "short title") {
		return &chat.Message{Role: chat.MessageRoleAssistant, Content: p.title}, nil
	}
	return &chat.Message{Role: chat.MessageRoleAssistant}, nil
}

func (p *stubProvider) CreateChatCompletionStream(context.Context, []chat.Message, []tools.Tool) (chat.MessageStream, error) {
	return &stubStream{deltas: []chat.MessageDelta{{Content: p.answer}}}, nil
}

func (p *stubProvider) Capabilities() provider.Capabilities { return p.caps }

func testServer(t *testing.T, p provider.Provider) (*Server, session.Store) {
	t.Helper()
	store := session.NewInMemoryStore()
	srv := New(config.Default(), store, tools.NewRegistry(), environment.Static{})
	srv.newProvider = func(context.Context, config.ModelConfig, environment.Provider) (provider.Provider, error) {
		return p, nil
	}
	return srv, store
}

func TestPing(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, &stubProvider{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListModels(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, &stubProvider{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp api.ModelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 3)

	var defaults int
	for _, m := range resp.Models {
		if m.Default {
			defaults++
			assert.Equal(t, "deepseek-chat", m.Alias)
			assert.True(t, m.SupportsTools)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestChatStream(t *testing.T) {
	t.Parallel()

	srv, store := testServer(t, &stubProvider{answer: "streamed answer", title: "A Title"})

	body, _ := json.Marshal(api.ChatRequest{Content: "what is up?"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, "session_init", frames[0]["type"])
	last := frames[len(frames)-1]
	assert.Equal(t, "message_complete", last["type"])
	assert.Equal(t, "streamed answer", last["full_content"])

	// The user and assistant messages were persisted.
	sessID := frames[0]["session_id"].(string)
	sess, err := store.GetSession(context.Background(), sessID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "what is up?", sess.Messages[0].Content)
	assert.Equal(t, "streamed answer", sess.Messages[1].Content)

	// The placeholder title is replaced after the first exchange.
	assert.Eventually(t, func() bool {
		sess, err := store.GetSession(context.Background(), sessID)
		return err == nil && sess.Title == "A Title"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestChatStreamReusesSession(t *testing.T) {
	t.Parallel()

	srv, store := testServer(t, &stubProvider{answer: "again"})
	sess := session.New("existing")
	require.NoError(t, store.AddSession(context.Background(), sess))

	body, _ := json.Marshal(api.ChatRequest{Content: "more", SessionID: sess.ID})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	frames := parseSSE(t, rec.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, sess.ID, frames[0]["session_id"])

	got, err := store.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, "existing", got.Title)
}

func TestChatStreamUnknownModel(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, &stubProvider{})
	body, _ := json.Marshal(api.ChatRequest{Content: "q", Model: "nope"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatSync(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, &stubProvider{answer: "sync answer", title: "T"})
	body, _ := json.Marshal(api.ChatRequest{Content: "question"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sync answer", resp.Content)
	assert.NotEmpty(t, resp.SessionID)
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()

	srv, _ := testServer(t, &stubProvider{})

	// Create.
	body, _ := json.Marshal(api.CreateSessionRequest{Title: "mine"})
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created session.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "mine", created.Title)
	require.NotEmpty(t, created.ID)

	// List.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed api.SessionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Sessions, 1)

	// Get.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Delete.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+created.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildMessages(t *testing.T) {
	t.Parallel()

	req := &api.ChatRequest{
		History: []api.HistoryMessage{
			{Role: "user", Content: "earlier"},
			{Role: "assistant", Content: "reply"},
		},
		ContentBlocks: []api.ContentBlock{
			{Type: "text", Content: "look at this"},
			{Type: "image", Content: "data:image/png;base64,xyz"},
			{Type: "audio", Transcription: "spoken words"},
		},
	}

	messages := buildMessages(req, "look at this spoken words", provider.Capabilities{})
	require.Len(t, messages, 4)
	assert.Equal(t, chat.MessageRoleSystem, messages[0].Role)
	assert.Equal(t, "earlier", messages[1].Content)
	assert.Equal(t, "reply", messages[2].Content)

	parts := messages[3].MultiContent
	require.Len(t, parts, 3)
	assert.Equal(t, chat.MessagePartTypeText, parts[0].Type)
	assert.Equal(t, chat.MessagePartTypeImageURL, parts[1].Type)
	assert.Equal(t, "spoken words", parts[2].Text)
}

func TestBuildMessagesReasoningPrompt(t *testing.T) {
	t.Parallel()

	plain := buildMessages(&api.ChatRequest{Content: "q"}, "q", provider.Capabilities{})
	reasoning := buildMessages(&api.ChatRequest{Content: "q"}, "q", provider.Capabilities{SupportsReasoningChannel: true})
	assert.NotEqual(t, plain[0].Content, reasoning[0].Content)
	assert.Contains(t, reasoning[0].Content, "Think through the problem")
}

func TestRequestText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", requestText(&api.ChatRequest{Content: "plain"}))
	assert.Equal(t, "a b", requestText(&api.ChatRequest{ContentBlocks: []api.ContentBlock{
		{Type: "text", Content: "a"},
		{Type: "audio", Transcription: "b"},
		{Type: "image", Content: "data:..."},
	}}))
}

// parseSSE decodes every data frame of an SSE body.
func parseSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	require.NoError(t, scanner.Err())
	return frames
}
