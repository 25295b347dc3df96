package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/prompt"
)

// GenAIClient implements Generator on top of the official Gemini SDK
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates an SDK-backed client. Without an API key the client
// is still returned and every call fails with an auth_missing error.
func NewGenAIClient(ctx context.Context, cfg config.GeminiConfig) (*GenAIClient, error) {
	c := &GenAIClient{model: modelID(cfg.Model)}
	if cfg.APIKey == "" {
		return c, nil
	}

	baseURL, version := splitBaseURL(cfg.BaseURL)

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.TimeoutDuration()},
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: version,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeConfig, "failed to create GenAI client")
	}

	c.client = client

	return c, nil
}

// Model returns the configured model name
func (c *GenAIClient) Model() string {
	return c.model
}

// Generate sends req through the SDK and converts the result into a Response
func (c *GenAIClient) Generate(ctx context.Context, req prompt.GenerationRequest) (*Response, error) {
	if c.client == nil {
		return nil, errors.NewAuthMissingError()
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.PromptText, genai.Role(req.Role)),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Params.Temperature)),
		TopP:            genai.Ptr(float32(req.Params.TopP)),
		TopK:            genai.Ptr(float32(req.Params.TopK)),
		MaxOutputTokens: int32(req.Params.MaxOutputTokens),
	})
	if err != nil {
		return nil, mapGenAIError(err)
	}

	return fromGenAI(result), nil
}

// ListModels iterates over every model the SDK reports
func (c *GenAIClient) ListModels(ctx context.Context) ([]Model, error) {
	if c.client == nil {
		return nil, errors.NewAuthMissingError()
	}

	var models []Model
	for m, err := range c.client.Models.All(ctx) {
		if err != nil {
			return nil, mapGenAIError(err)
		}

		models = append(models, Model{
			Name:                       m.Name,
			DisplayName:                m.DisplayName,
			Description:                m.Description,
			SupportedGenerationMethods: m.SupportedActions,
			InputTokenLimit:            int(m.InputTokenLimit),
			OutputTokenLimit:           int(m.OutputTokenLimit),
		})
	}

	return models, nil
}

func fromGenAI(result *genai.GenerateContentResponse) *Response {
	resp := &Response{}
	if result == nil {
		return resp
	}

	for _, cand := range result.Candidates {
		if cand == nil {
			continue
		}

		out := Candidate{FinishReason: string(cand.FinishReason)}
		if cand.Content != nil {
			content := &Content{Role: cand.Content.Role}
			for _, p := range cand.Content.Parts {
				if p != nil {
					content.Parts = append(content.Parts, Part{Text: p.Text})
				}
			}
			out.Content = content
		}

		resp.Candidates = append(resp.Candidates, out)
	}

	return resp
}

// mapGenAIError sorts SDK errors into remote and network failures
func mapGenAIError(err error) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.NewRemoteError(apiErr.Code, fmt.Sprintf("%s: %s", apiErr.Status, apiErr.Message))
	}

	var apiErrPtr *genai.APIError
	if stderrors.As(err, &apiErrPtr) {
		return errors.NewRemoteError(apiErrPtr.Code, fmt.Sprintf("%s: %s", apiErrPtr.Status, apiErrPtr.Message))
	}

	err = redactKey(err)

	return errors.NewNetworkError(err, isTimeout(err))
}

// splitBaseURL turns ".../v1beta" into the SDK's separate base URL and version
func splitBaseURL(base string) (string, string) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		return "", ""
	}

	i := strings.LastIndex(base, "/")
	if i < 0 {
		return base + "/", ""
	}

	version := base[i+1:]
	if !strings.HasPrefix(version, "v1") {
		return base + "/", ""
	}

	return base[:i+1], version
}
