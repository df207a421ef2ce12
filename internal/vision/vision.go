// Package vision wraps the external multimodal model behind a small
// describe-these-images capability.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"sensorvision/internal/config"
)

// Image is one input to the capability, already loaded from storage.
type Image struct {
	Data     []byte
	MIMEType string
}

// Capability produces descriptive text for an ordered batch of images.
// Calls may take seconds and may fail transiently; callers bound them
// with a context deadline.
type Capability interface {
	Describe(ctx context.Context, images []Image, prompt string) (string, error)
}

// Model is the eino-backed capability implementation.
type Model struct {
	chatModel model.ToolCallingChatModel
	provider  string
	modelName string
}

// NewModel builds the chat model for the configured provider.
func NewModel(ctx context.Context, cfg *config.Config, provider string) (*Model, error) {
	provCfg, ok := cfg.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s missing api key", provider)
	}

	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 1024,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s chat model: %w", provider, err)
	}

	return &Model{
		chatModel: chatModel,
		provider:  provider,
		modelName: provCfg.Model,
	}, nil
}

// Describe sends one user message holding the prompt followed by the
// images in their given order.
func (m *Model) Describe(ctx context.Context, images []Image, prompt string) (string, error) {
	if len(images) == 0 {
		return "", errors.New("at least one image required")
	}

	parts := make([]schema.ChatMessagePart, 0, len(images)+1)
	parts = append(parts, schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeText,
		Text: prompt,
	})
	for _, img := range images {
		mime := img.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URL:      fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data)),
				MIMEType: mime,
				Detail:   schema.ImageURLDetailAuto,
			},
		})
	}

	resp, err := m.chatModel.Generate(ctx, []*schema.Message{{
		Role:         schema.User,
		MultiContent: parts,
	}})
	if err != nil {
		return "", fmt.Errorf("generate description: %w", err)
	}
	if resp == nil || resp.Content == "" {
		return "", errors.New("empty model response")
	}
	return resp.Content, nil
}

// Provider reports which backend serves the capability.
func (m *Model) Provider() string {
	return m.provider
}
