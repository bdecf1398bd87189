package llm

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/chatiq/chatiq/internal/domain"
	"github.com/chatiq/chatiq/internal/observability"
)

// Fallback strings returned instead of errors. The stored bot message is
// the error log: failures stay visible in the session history.
const (
	fallbackTransport   = "Failed to connect to the AI service."
	fallbackEmpty       = "Sorry, I received an empty response from the AI."
	fallbackErrFormat   = "Error from AI service: %s"
	fallbackUnknownsMsg = "Unknown API error."
)

// Config for the Gemini completion client.
type Config struct {
	APIKey  string
	Model   string
	Persona string
	// Verify decides which queries get the second verification pass.
	Verify domain.QueryPolicy
}

// GeminiClient implements domain.CompletionClient against the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	persona string
	verify  domain.QueryPolicy
}

func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		persona: cfg.Persona,
		verify:  cfg.Verify,
	}, nil
}

// Complete implements domain.CompletionClient. It never returns an
// error: every failure is converted into a user-safe fallback string.
func (g *GeminiClient) Complete(ctx context.Context, req domain.CompletionRequest) string {
	log := observability.LoggerFromContext(ctx)

	text, err := g.generate(ctx, buildContents(g.persona, req))
	if err != nil {
		log.Error("completion call failed", "error", err)
		return fallbackFor(err)
	}
	if text == "" {
		log.Warn("completion returned no text")
		return fallbackEmpty
	}

	if g.verify != nil && g.verify.Matches(req.Query) {
		if verified := g.verifyAnswer(ctx, req.Query, text); verified != "" {
			text = verified
		}
	}
	return text
}

func (g *GeminiClient) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	temp := float32(0.7)
	topP := float32(0.9)
	outputTokens := int32(8192)

	cfg := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: outputTokens,
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return "", err
	}
	return res.Text(), nil
}

// verifyAnswer runs the best-effort second pass for fact-sensitive
// queries. Failures keep the original answer; the turn never blocks on
// verification.
func (g *GeminiClient) verifyAnswer(ctx context.Context, query, answer string) string {
	prompt := fmt.Sprintf(verificationPromptTemplate, query, answer)
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	text, err := g.generate(ctx, contents)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("verification pass failed", "error", err)
		return ""
	}
	return text
}

// fallbackFor turns a completion error into the string that gets stored
// as the bot's message. Service rejections keep whatever detail the
// service provided; anything else reads as a connection failure.
func fallbackFor(err error) string {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Status
		}
		if msg == "" {
			msg = fallbackUnknownsMsg
		}
		return fmt.Sprintf(fallbackErrFormat, msg)
	}
	return fallbackTransport
}
