package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

var ErrMissingAPIKey = errors.New("provider api key is empty")

type ChatConfig struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
}

type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// ModelFactory builds an OpenAI-compatible chat model per request, so a
// caller-supplied credential can replace the server key.
type ModelFactory struct {
	cfg ChatConfig
}

func NewModelFactory(cfg ChatConfig) *ModelFactory {
	return &ModelFactory{cfg: cfg}
}

func (f *ModelFactory) DefaultModel() string {
	return f.cfg.DefaultModel
}

// Resolve returns a chat model for slug. An empty credential falls back to
// the configured key; the credential itself is passed through untouched.
func (f *ModelFactory) Resolve(ctx context.Context, slug, credential string) (model.ToolCallingChatModel, error) {
	apiKey := credential
	if apiKey == "" {
		apiKey = f.cfg.APIKey
	}
	if apiKey == "" {
		return nil, WrapProviderError(ProviderModel, "configure", ErrMissingAPIKey)
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = f.cfg.DefaultModel
	}

	cm, err := openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: f.cfg.BaseURL,
		Model:   slug,
		Timeout: f.cfg.Timeout,
	})
	if err != nil {
		return nil, WrapProviderError(ProviderModel, "configure", err)
	}
	return cm, nil
}

// NewEmbedder builds the OpenAI-compatible embedding client.
func NewEmbedder(ctx context.Context, cfg EmbeddingConfig) (einoEmbedding.Embedder, error) {
	if cfg.APIKey == "" {
		return nil, WrapProviderError(ProviderEmbedding, "configure", ErrMissingAPIKey)
	}

	embedCfg := &openaiEmbed.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	if cfg.Dimensions > 0 {
		dims := cfg.Dimensions
		embedCfg.Dimensions = &dims
	}

	emb, err := openaiEmbed.NewEmbedder(ctx, embedCfg)
	if err != nil {
		return nil, WrapProviderError(ProviderEmbedding, "configure", err)
	}
	return emb, nil
}
