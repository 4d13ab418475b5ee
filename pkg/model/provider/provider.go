// Package provider defines the model invocation interface consumed by
// the runtime.
package provider

import (
	"context"

	"github.com/ragdesk/ragdesk/pkg/chat"
	"github.com/ragdesk/ragdesk/pkg/config"
	"github.com/ragdesk/ragdesk/pkg/environment"
	"github.com/ragdesk/ragdesk/pkg/model/provider/openai"
	"github.com/ragdesk/ragdesk/pkg/tools"
)

// Capabilities describes what a model variant can do, replacing
// string comparisons on model identifiers.
type Capabilities struct {
	SupportsTools            bool
	SupportsReasoningChannel bool
}

// Provider is a model invocation service.
type Provider interface {
	// CreateChatCompletion makes a single non-streaming call. The
	// returned message may carry tool call requests.
	CreateChatCompletion(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (*chat.Message, error)

	// CreateChatCompletionStream makes an incremental call. The caller
	// owns the stream and must Close it.
	CreateChatCompletionStream(ctx context.Context, messages []chat.Message, toolDefs []tools.Tool) (chat.MessageStream, error)

	Capabilities() Capabilities
}

// capsAdapter attaches config-declared capabilities to a client.
type capsAdapter struct {
	*openai.Client
	caps Capabilities
}

func (a *capsAdapter) Capabilities() Capabilities {
	return a.caps
}

// New builds a Provider for one model alias. All aliases speak the
// OpenAI-compatible chat completion protocol; the base URL selects
// the actual backend.
func New(ctx context.Context, cfg config.ModelConfig, env environment.Provider) (Provider, error) {
	apiKey, err := env.Get(ctx, cfg.APIKeyEnv)
	if err != nil {
		return nil, err
	}

	client, err := openai.NewClient(openai.Options{
		Model:       cfg.Name,
		BaseURL:     cfg.BaseURL,
		APIKey:      apiKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	return &capsAdapter{
		Client: client,
		caps: Capabilities{
			SupportsTools:            cfg.SupportsTools,
			SupportsReasoningChannel: cfg.SupportsReasoning,
		},
	}, nil
}
