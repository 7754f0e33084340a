package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrEmptyCandidate is returned when a response has no first candidate text.
var ErrEmptyCandidate = errors.New("gemini response has no candidate text")

// Generator sends one prompt to a Gemini model and returns the first
// candidate's text. Implementations make exactly one network attempt.
type Generator interface {
	Generate(ctx context.Context, model, prompt string) (string, error)
	Close() error
}

// NewGenerator picks the transport named by GEMINI_TRANSPORT.
func NewGenerator(transport, apiKey, endpoint string) (Generator, error) {
	switch transport {
	case "", "rest":
		return NewRESTGenerator(apiKey, endpoint, nil), nil
	case "sdk":
		return NewSDKGenerator(apiKey)
	default:
		return nil, fmt.Errorf("unknown Gemini transport %q", transport)
	}
}

// ──── REST transport ────

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// RESTGenerator calls generateContent over plain HTTPS with the API key in
// the query string.
type RESTGenerator struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewRESTGenerator(apiKey, endpoint string, client *http.Client) *RESTGenerator {
	if client == nil {
		// Deadlines come from the caller's context.
		client = &http.Client{}
	}
	return &RESTGenerator{
		apiKey:   apiKey,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
	}
}

func (g *RESTGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.endpoint, url.PathEscape(model), url.QueryEscape(g.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("api error %d: %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if len(parsed.Candidates) == 0 || parsed.Candidates[0].Content == nil ||
		len(parsed.Candidates[0].Content.Parts) == 0 || parsed.Candidates[0].Content.Parts[0].Text == nil {
		return "", ErrEmptyCandidate
	}

	text := *parsed.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyCandidate
	}
	return text, nil
}

func (g *RESTGenerator) Close() error { return nil }

// ──── SDK transport ────

// SDKGenerator uses the generative-ai-go client library.
type SDKGenerator struct {
	client *genai.Client
}

func NewSDKGenerator(apiKey string) (*SDKGenerator, error) {
	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &SDKGenerator{client: client}, nil
}

func (g *SDKGenerator) Generate(ctx context.Context, model, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	return firstCandidateText(resp)
}

func (g *SDKGenerator) Close() error {
	return g.client.Close()
}

func firstCandidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyCandidate
	}
	cand := resp.Candidates[0]
	if cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", ErrEmptyCandidate
	}
	t, ok := cand.Content.Parts[0].(genai.Text)
	if !ok || strings.TrimSpace(string(t)) == "" {
		return "", ErrEmptyCandidate
	}
	return string(t), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
