package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/digkill/CatPortrait/internal/prompt"
)

const (
	VertexName  = "vertex-imagen-3.0"
	ImagenName  = "imagen-4.0"
	VertexModel = "imagen-3.0-generate-002"
	ImagenModel = "imagen-4.0-generate-001"
)

// imageGenerator is the subset of *genai.Models the Imagen adapters use.
type imageGenerator interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// imagenAdapter is shared by the Vertex AI and Gemini API backends; they
// differ only in how the genai client is built.
type imagenAdapter struct {
	name        string
	model       string
	aspectRatio string
	timeout     time.Duration
	images      imageGenerator
	initErr     error
	log         *slog.Logger
}

func (a *imagenAdapter) Name() string {
	return a.name
}

func (a *imagenAdapter) Available(ctx context.Context) error {
	if a.initErr != nil {
		return fmt.Errorf("%s unavailable: %w", a.name, a.initErr)
	}
	if a.images == nil {
		return fmt.Errorf("%s unavailable: client not configured", a.name)
	}
	return nil
}

func (a *imagenAdapter) Generate(ctx context.Context, sp prompt.StructuredPrompt) (*Result, error) {
	if err := a.Available(ctx); err != nil {
		return nil, retryable(a.name, "not available", 0, err)
	}
	rendered := prompt.Render(sp)

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	config := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    a.aspectRatio,
	}
	resp, err := a.images.GenerateImages(callCtx, a.model, rendered, config)
	if err != nil {
		return nil, a.wrapError(ctx, err)
	}

	img, err := imageFromResponse(resp)
	if err != nil {
		if a.log != nil {
			a.log.Warn("imagen returned no image", "provider", a.name, "model", a.model, "err", err)
		}
		return nil, retryable(a.name, "malformed response", 0, err)
	}
	return &Result{Image: img, RenderedPrompt: rendered}, nil
}

func (a *imagenAdapter) wrapError(parent context.Context, err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retryable(a.name, "api error", apiErr.Code, err)
	}
	return callError(parent, a.name, err)
}

// imageFromResponse picks the first usable image. An otherwise successful
// response without image bytes is an error, never an empty success.
func imageFromResponse(resp *genai.GenerateImagesResponse) (Image, error) {
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return Image{}, fmt.Errorf("no generated images")
	}
	var filtered string
	for _, gen := range resp.GeneratedImages {
		if gen == nil {
			continue
		}
		if gen.RAIFilteredReason != "" {
			filtered = gen.RAIFilteredReason
		}
		if gen.Image == nil {
			continue
		}
		if len(gen.Image.ImageBytes) > 0 {
			mime := gen.Image.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			return Image{Data: gen.Image.ImageBytes, MIMEType: mime}, nil
		}
		if gen.Image.GCSURI != "" {
			return Image{URL: gen.Image.GCSURI}, nil
		}
	}
	if filtered != "" {
		return Image{}, fmt.Errorf("image filtered: %s", filtered)
	}
	return Image{}, fmt.Errorf("generated image has no payload")
}

// ImagenConfig configures Imagen 4.0 on the Gemini API backend.
type ImagenConfig struct {
	APIKey      string
	Model       string
	AspectRatio string
	Timeout     time.Duration
}

// ImagenProvider calls Imagen 4.0 through the Gemini API.
type ImagenProvider struct {
	imagenAdapter
}

func NewImagenProvider(ctx context.Context, cfg ImagenConfig, transport Transport, log *slog.Logger) *ImagenProvider {
	p := &ImagenProvider{imagenAdapter{
		name:        ImagenName,
		model:       valueOr(cfg.Model, ImagenModel),
		aspectRatio: valueOr(cfg.AspectRatio, "1:1"),
		timeout:     timeoutOrDefault(cfg.Timeout),
		log:         log,
	}}
	if cfg.APIKey == "" {
		p.initErr = fmt.Errorf("gemini api key not configured")
		return p
	}
	httpClient, err := transport.HTTPClient()
	if err != nil {
		p.initErr = err
		return p
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		p.initErr = fmt.Errorf("create genai client: %w", err)
		return p
	}
	p.images = client.Models
	return p
}

// VertexConfig configures Imagen 3.0 on Vertex AI. With APIKey set the client
// uses express mode; otherwise Application Default Credentials.
type VertexConfig struct {
	Project     string
	Location    string
	APIKey      string
	Model       string
	AspectRatio string
	Timeout     time.Duration
}

// VertexProvider calls Imagen 3.0 on Vertex AI. It is the high-tier provider.
type VertexProvider struct {
	imagenAdapter
}

func NewVertexProvider(ctx context.Context, cfg VertexConfig, transport Transport, log *slog.Logger) *VertexProvider {
	p := &VertexProvider{imagenAdapter{
		name:        VertexName,
		model:       valueOr(cfg.Model, VertexModel),
		aspectRatio: valueOr(cfg.AspectRatio, "1:1"),
		timeout:     timeoutOrDefault(cfg.Timeout),
		log:         log,
	}}

	clientCfg := &genai.ClientConfig{Backend: genai.BackendVertexAI}
	switch {
	case cfg.APIKey != "":
		httpClient, err := transport.HTTPClient()
		if err != nil {
			p.initErr = err
			return p
		}
		clientCfg.APIKey = cfg.APIKey
		clientCfg.HTTPClient = httpClient
	case cfg.Project != "":
		// ADC builds its own authenticated client; the proxy transport is
		// not applied here.
		clientCfg.Project = cfg.Project
		clientCfg.Location = valueOr(cfg.Location, "us-central1")
	default:
		p.initErr = fmt.Errorf("vertex project not configured")
		return p
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		p.initErr = fmt.Errorf("create vertex client: %w", err)
		return p
	}
	p.images = client.Models
	return p
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
