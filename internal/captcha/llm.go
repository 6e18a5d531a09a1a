// internal/captcha/llm.go
package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xkilldash9x/quickeval/internal/config"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client the Gemini solver uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiSolver asks a Gemini vision model to read the image.
type GeminiSolver struct {
	models  contentGenerator
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGeminiSolver creates a Gemini-backed solver.
func NewGeminiSolver(ctx context.Context, cfg config.LLMSolverConfig, logger *zap.Logger) (*GeminiSolver, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required (set captcha.gemini.api_key or GEMINI_API_KEY)")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGeminiSolver(client.Models, cfg, logger), nil
}

func newGeminiSolver(models contentGenerator, cfg config.LLMSolverConfig, logger *zap.Logger) *GeminiSolver {
	return &GeminiSolver{models: models, model: cfg.Model, timeout: cfg.Timeout, logger: logger.Named("captcha.gemini")}
}

func (s *GeminiSolver) Solve(ctx context.Context, image []byte) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(visionPrompt),
			genai.NewPartFromBytes(image, mimeType(image)),
		}, genai.RoleUser),
	}
	resp, err := s.models.GenerateContent(ctx, s.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("gemini captcha request failed: %w", err)
	}

	answer := Normalize(resp.Text())
	if answer == "" {
		return "", ErrUnreadable
	}
	s.logger.Debug("Gemini read captcha.", zap.Int("length", len(answer)))
	return answer, nil
}

// OpenAISolver asks an OpenAI-compatible vision model to read the image.
type OpenAISolver struct {
	api     *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewOpenAISolver creates a solver against cfg.BaseURL, or the OpenAI API
// when it is empty.
func NewOpenAISolver(cfg config.LLMSolverConfig, logger *zap.Logger) (*OpenAISolver, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai API key is required (set captcha.openai.api_key or OPENAI_API_KEY)")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAISolver{
		api:     openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.Named("captcha.openai"),
	}, nil
}

func (s *OpenAISolver) Solve(ctx context.Context, image []byte) (string, error) {
	dataURL := "data:" + mimeType(image) + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := s.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: visionPrompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURL,
					Detail: openai.ImageURLDetailHigh,
				}},
			},
		}},
		Temperature: 0,
		MaxTokens:   16,
	})
	if err != nil {
		return "", fmt.Errorf("openai captcha request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", ErrUnreadable)
	}

	answer := Normalize(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrUnreadable
	}
	s.logger.Debug("OpenAI read captcha.", zap.Int("length", len(answer)))
	return answer, nil
}
