package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Tegath/kaleads/internal/services"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiConfig holds Gemini client settings.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Temperature       float32
	RequestsPerMinute int
}

// Gemini completes prompts with Google's Gemini API using JSON-mode
// responses constrained by a response schema.
type Gemini struct {
	client  *genai.Client
	cfg     GeminiConfig
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewGemini creates the process-wide Gemini client.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("inference: Gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("inference: creating Gemini client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Gemini{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("gemini"),
	}, nil
}

// Complete implements Completer.
func (g *Gemini) Complete(ctx context.Context, prompt string, schema Schema) (map[string]any, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("inference: waiting for rate limiter: %w", services.Classify(err))
	}

	temp := g.cfg.Temperature
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(schema),
		Temperature:      &temp,
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", classifyAPIError(err))
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("inference: empty answer: %w", services.ErrMalformedResponse)
	}

	out, err := Decode(text, schema)
	if err != nil {
		g.logger.Debug("malformed answer", zap.String("model", g.cfg.Model), zap.Error(err))
		return nil, err
	}
	g.logger.Debug("completion done",
		zap.String("model", g.cfg.Model),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

func classifyAPIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return errors.Join(services.ErrRateLimited, err)
		case apiErr.Code == http.StatusGatewayTimeout:
			return errors.Join(services.ErrTimeout, err)
		case apiErr.Code >= 500:
			return errors.Join(services.ErrServiceUnavailable, err)
		}
	}
	return services.Classify(err)
}

func toGenaiSchema(s Schema) *genai.Schema {
	out := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(s.Properties)),
	}
	for _, p := range s.Properties {
		prop := &genai.Schema{Description: p.Description}
		switch p.Type {
		case TypeInteger:
			prop.Type = genai.TypeInteger
		case TypeNumber:
			prop.Type = genai.TypeNumber
		case TypeBoolean:
			prop.Type = genai.TypeBoolean
		case TypeStringList:
			prop.Type = genai.TypeArray
			prop.Items = &genai.Schema{Type: genai.TypeString}
		default:
			prop.Type = genai.TypeString
		}
		out.Properties[p.Name] = prop
		out.PropertyOrdering = append(out.PropertyOrdering, p.Name)
		if p.Required {
			out.Required = append(out.Required, p.Name)
		}
	}
	return out
}
