package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultEditTimeout = 180 * time.Second
	maxErrorBodyLen    = 500
)

type editResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// OpenAI calls an OpenAI-compatible /images/edits endpoint.
type OpenAI struct {
	client  *resty.Client
	baseURL string
	apiKey  string
}

// NewOpenAI builds the client. An empty API key is allowed at construction;
// Edit reports it as an error so the server can start without credentials.
func NewOpenAI(baseURL, apiKey string, timeout time.Duration) (*OpenAI, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("openai base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid openai base url: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultEditTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)

	return &OpenAI{
		client:  client,
		baseURL: trimmed,
		apiKey:  strings.TrimSpace(apiKey),
	}, nil
}

// Configured reports whether an API key is present.
func (p *OpenAI) Configured() bool {
	return p != nil && p.apiKey != ""
}

// Edit submits one (image, prompt) pair and returns the decoded output.
func (p *OpenAI) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	if !p.Configured() {
		return nil, &Error{Message: "api key is not set"}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(p.apiKey).
		SetFileReader("image", req.Filename, bytes.NewReader(req.Image)).
		SetMultipartFormData(map[string]string{
			"model":         req.Model,
			"prompt":        req.Prompt,
			"size":          req.Size,
			"quality":       req.Quality,
			"output_format": req.OutputFormat,
			"n":             "1",
		}).
		Post(p.baseURL + "/images/edits")
	if err != nil {
		return nil, &Error{Message: "request failed", Cause: err}
	}

	if resp.StatusCode() >= 400 {
		return nil, &Error{
			StatusCode: resp.StatusCode(),
			Message:    truncate(resp.String(), maxErrorBodyLen),
		}
	}

	var payload editResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, &Error{Message: "failed to decode response", Cause: err}
	}

	if len(payload.Data) == 0 {
		return nil, &Error{Message: "response did not include image data"}
	}

	item := payload.Data[0]
	if item.B64JSON == "" {
		return nil, &Error{Message: "response did not include b64_json output"}
	}

	image, err := base64.StdEncoding.DecodeString(item.B64JSON)
	if err != nil {
		return nil, &Error{Message: "failed to decode returned image data", Cause: err}
	}

	return &Result{
		Image:         image,
		RevisedPrompt: item.RevisedPrompt,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
