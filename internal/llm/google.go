package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const googleBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GoogleClient talks to the Gemini generateContent endpoint.
type GoogleClient struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
}

// NewGoogleClient creates a new Google Gemini client
func NewGoogleClient(apiKey, model string) *GoogleClient {
	return &GoogleClient{
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
		baseURL:    googleBaseURL,
	}
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

func geminiText(role, text string) geminiContent {
	return geminiContent{Role: role, Parts: []geminiPart{{Text: text}}}
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		Temperature     float32 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

// Complete sends one generateContent request. System turns become the
// system instruction and assistant turns use Gemini's "model" role.
func (c *GoogleClient) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	var req geminiRequest
	req.GenerationConfig.Temperature = opts.Temperature
	req.GenerationConfig.MaxOutputTokens = maxTokens(opts)

	var system []string
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleAssistant:
			req.Contents = append(req.Contents, geminiText("model", msg.Content))
		default:
			req.Contents = append(req.Contents, geminiText(RoleUser, msg.Content))
		}
	}
	if len(system) > 0 {
		si := geminiText("", strings.Join(system, "\n\n"))
		req.SystemInstruction = &si
	}

	header := http.Header{}
	header.Set("x-goog-api-key", c.apiKey)
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	var resp geminiResponse
	if err := postJSON(ctx, c.httpClient, url, header, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("no response candidates")
	}
	cand := resp.Candidates[0]

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		text.WriteString(part.Text)
	}
	switch cand.FinishReason {
	case "SAFETY", "RECITATION", "PROHIBITED_CONTENT", "BLOCKLIST":
		if text.Len() == 0 {
			return nil, fmt.Errorf("reply blocked: %s", cand.FinishReason)
		}
	}

	out := &Response{
		Content:   text.String(),
		Model:     c.model,
		Truncated: cand.FinishReason == "MAX_TOKENS",
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = resp.UsageMetadata.PromptTokenCount
		out.OutputTokens = resp.UsageMetadata.CandidatesTokenCount
	}
	return out, nil
}

func (c *GoogleClient) Provider() Provider { return ProviderGoogle }

func (c *GoogleClient) Model() string { return c.model }
