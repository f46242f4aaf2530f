package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/CatPortrait/internal/prompt"
)

const ProxyName = "tuzi-proxy"

// ProxyConfig configures the OpenAI-compatible reverse proxy in front of Gemini.
type ProxyConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Size    string
	Timeout time.Duration
}

// ProxyProvider calls /v1/images/generations on a Gemini reverse proxy.
type ProxyProvider struct {
	cfg        ProxyConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewProxyProvider(cfg ProxyConfig, transport Transport, log *slog.Logger) (*ProxyProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("proxy base url is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-image"
	}
	if cfg.Size == "" {
		cfg.Size = "1024x1024"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.Timeout = timeoutOrDefault(cfg.Timeout)

	client, err := transport.HTTPClient()
	if err != nil {
		return nil, err
	}
	return &ProxyProvider{cfg: cfg, httpClient: client, log: log}, nil
}

func (p *ProxyProvider) Name() string {
	return ProxyName
}

func (p *ProxyProvider) Available(ctx context.Context) error {
	if p.cfg.APIKey == "" {
		return fmt.Errorf("%s: api key not configured", ProxyName)
	}
	return nil
}

type proxyImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type proxyImageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *ProxyProvider) Generate(ctx context.Context, sp prompt.StructuredPrompt) (*Result, error) {
	rendered := prompt.Render(sp)

	body, err := json.Marshal(proxyImageRequest{
		Model:          p.cfg.Model,
		Prompt:         rendered,
		N:              1,
		Size:           p.cfg.Size,
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return nil, fatal(ProxyName, "marshal request", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	fullURL := p.cfg.BaseURL + "/v1/images/generations"
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, fullURL, bytes.NewReader(body))
	if err != nil {
		return nil, fatal(ProxyName, "new request", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, callError(ctx, ProxyName, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, callError(ctx, ProxyName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if p.log != nil {
			p.log.Error("proxy generation failed", "status", resp.StatusCode, "url", fullURL, "body", truncateBody(rawBody))
		}
		return nil, retryable(ProxyName, "unexpected status", resp.StatusCode, fmt.Errorf("body=%s", truncateBody(rawBody)))
	}

	var parsed proxyImageResponse
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return nil, retryable(ProxyName, "malformed response", resp.StatusCode, err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return nil, retryable(ProxyName, "provider error", resp.StatusCode, fmt.Errorf("%s", parsed.Error.Message))
	}

	img, err := decodeProxyImage(parsed)
	if err != nil {
		return nil, retryable(ProxyName, "malformed response", resp.StatusCode, err)
	}
	return &Result{Image: img, RenderedPrompt: rendered}, nil
}

func decodeProxyImage(parsed proxyImageResponse) (Image, error) {
	for _, item := range parsed.Data {
		if item.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(stripDataURLPrefix(item.B64JSON))
			if err != nil {
				return Image{}, fmt.Errorf("decode b64_json: %w", err)
			}
			if len(data) == 0 {
				continue
			}
			return Image{Data: data, MIMEType: http.DetectContentType(data)}, nil
		}
		if item.URL != "" {
			return Image{URL: item.URL}, nil
		}
	}
	return Image{}, fmt.Errorf("no image in response")
}

func stripDataURLPrefix(s string) string {
	if strings.HasPrefix(s, "data:") {
		if idx := strings.Index(s, ","); idx > 0 {
			return s[idx+1:]
		}
	}
	return s
}
