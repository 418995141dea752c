// Package judge is the client for the external AI judge. It sends every slide
// of a submission with a domain-specific prompt to Google's Gemini
// generateContent API and decodes the structured verdict.
package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/pitchjudge/internal/domain/model"
	"github.com/okian/pitchjudge/pkg/logger"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel    = "gemini-2.5-flash"

	defaultTemperature     = 0.2
	defaultMaxOutputTokens = 8192
	maxErrorBody           = 64 << 10
)

// Gemini calls the generateContent endpoint.
type Gemini struct {
	apiKey          string
	endpoint        string
	model           string
	temperature     float64
	maxOutputTokens int
	http            *http.Client
	logger          logger.Logger
}

// New creates a Gemini client. The request deadline comes from the caller's
// context, so the default HTTP client carries no timeout of its own.
func New(apiKey string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:          apiKey,
		endpoint:        DefaultEndpoint,
		model:           DefaultModel,
		temperature:     defaultTemperature,
		maxOutputTokens: defaultMaxOutputTokens,
		http:            &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = logger.Get().Named("judge")
	}
	return g
}

// Analyze sends the slides in order with the domain's criteria and returns
// the decoded verdict together with the JSON it was decoded from. Contract
// checks on the verdict are left to the caller.
func (g *Gemini) Analyze(ctx context.Context, images []string, d *model.Domain) (model.Judgment, error) {
	if len(images) == 0 {
		return model.Judgment{}, ErrNoImages
	}
	req, err := g.build(ctx, Prompt(d), images)
	if err != nil {
		return model.Judgment{}, err
	}

	g.logger.Debug(ctx, "calling judge",
		logger.String("model", g.model),
		logger.String("domain_id", d.ID),
		logger.Int("images", len(images)),
	)
	resp, err := g.http.Do(req)
	if err != nil {
		return model.Judgment{}, fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	text, err := parse(resp)
	if err != nil {
		return model.Judgment{}, err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return model.Judgment{}, err
	}
	var v model.Verdict
	if err := json.Unmarshal(raw, &v); err != nil {
		return model.Judgment{}, fmt.Errorf("%w: decode verdict: %w", model.ErrContractViolation, err)
	}
	return model.Judgment{Verdict: &v, Raw: raw}, nil
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// build constructs the request: the prompt followed by one inline image part
// per slide.
func (g *Gemini) build(ctx context.Context, prompt string, images []string) (*http.Request, error) {
	parts := make([]part, 0, len(images)+1)
	parts = append(parts, part{Text: prompt})
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read slide %s: %w", filepath.Base(path), err)
		}
		parts = append(parts, part{InlineData: &inlineData{
			MimeType: mimeType(path),
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}

	var body generateRequest
	body.Contents = append(body.Contents, struct {
		Parts []part `json:"parts"`
	}{Parts: parts})
	body.GenerationConfig = generationConfig{
		Temperature:      g.temperature,
		MaxOutputTokens:  g.maxOutputTokens,
		ResponseMimeType: "application/json",
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(g.endpoint, "/"), url.PathEscape(g.model), url.QueryEscape(g.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// parse returns the concatenated text of the first candidate.
func parse(resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", parseError(resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(out.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	var text strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("%w (finish reason %s)", ErrEmptyResponse, out.Candidates[0].FinishReason)
	}
	return text.String(), nil
}

// parseError converts Google's JSON error body to a ProviderError.
func parseError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return &ProviderError{
			StatusCode: statusCode,
			Status:     errResp.Error.Status,
			Message:    errResp.Error.Message,
		}
	}
	return &ProviderError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
