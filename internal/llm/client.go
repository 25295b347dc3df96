package llm

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kyleking/current/internal/config"
	"github.com/kyleking/current/internal/errors"
	"github.com/kyleking/current/internal/logging"
	"github.com/kyleking/current/internal/prompt"
)

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 4 << 20

// listPageSize is the page size requested from the model listing endpoint
const listPageSize = 1000

// Client talks to the generateContent REST endpoint directly
type Client struct {
	config     config.GeminiConfig
	httpClient *http.Client
}

// NewClient creates a REST client. The configured timeout bounds every call.
func NewClient(cfg config.GeminiConfig) *Client {
	return NewClientWithHTTP(cfg, &http.Client{Timeout: cfg.TimeoutDuration()})
}

// NewClientWithHTTP uses the given HTTP client, mainly for tests
func NewClientWithHTTP(cfg config.GeminiConfig, httpClient *http.Client) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.config.Model
}

type generateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type listModelsResponse struct {
	Models        []Model `json:"models"`
	NextPageToken string  `json:"nextPageToken"`
}

// Generate sends req as a single POST. A 2xx payload with no candidates is
// a success.
func (c *Client) Generate(ctx context.Context, req prompt.GenerationRequest) (*Response, error) {
	if c.config.APIKey == "" {
		return nil, errors.NewAuthMissingError()
	}

	body := generateRequest{
		Contents: []Content{{
			Role:  req.Role,
			Parts: []Part{{Text: req.PromptText}},
		}},
		GenerationConfig: generationConfig{
			Temperature:     req.Params.Temperature,
			MaxOutputTokens: req.Params.MaxOutputTokens,
			TopP:            req.Params.TopP,
			TopK:            req.Params.TopK,
		},
	}

	endpoint := c.config.BaseURL + "/models/" + url.PathEscape(modelID(c.config.Model)) + ":generateContent"

	data, err := c.do(ctx, http.MethodPost, endpoint, nil, body)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, errors.NewMalformedResponseError(err)
	}

	return &resp, nil
}

// ListModels pages through the model listing endpoint
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	if c.config.APIKey == "" {
		return nil, errors.NewAuthMissingError()
	}

	var (
		models    []Model
		pageToken string
	)

	for {
		query := url.Values{}
		query.Set("pageSize", fmt.Sprintf("%d", listPageSize))
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		data, err := c.do(ctx, http.MethodGet, c.config.BaseURL+"/models", query, nil)
		if err != nil {
			return nil, err
		}

		var page listModelsResponse
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, errors.NewMalformedResponseError(err)
		}

		models = append(models, page.Models...)

		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}

// do performs one HTTP exchange and maps failures onto the error taxonomy
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, reqBody interface{}) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.config.APIKey)

	var payload io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to marshal request")
		}
		payload = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint+"?"+query.Encode(), payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeInternal, "failed to create request")
	}

	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	logger := logging.WithFields(map[string]interface{}{
		"method": method,
		"model":  c.config.Model,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = redactKey(err)
		logger.WithError(err).Debug("Request failed")

		return nil, errors.NewNetworkError(err, isTimeout(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NewNetworkError(redactKey(err), isTimeout(err))
	}

	logger.WithField("status", resp.StatusCode).WithField("duration", time.Since(start)).Debug("Request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewRemoteError(resp.StatusCode, string(body))
	}

	return body, nil
}

// modelID accepts both "gemini-pro" and the "models/gemini-pro" form returned
// by the listing endpoint.
func modelID(model string) string {
	return strings.TrimPrefix(model, "models/")
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return stderrors.As(err, &netErr) && netErr.Timeout()
}

// redactKey removes the API key from the URL that net/http embeds in its errors
func redactKey(err error) error {
	var urlErr *url.Error
	if !stderrors.As(err, &urlErr) {
		return err
	}

	u, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		urlErr.URL = "(unparsable url)"
		return err
	}

	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	urlErr.URL = u.String()

	return err
}
