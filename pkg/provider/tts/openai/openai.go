// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API. Audio is always
// returned as MP3.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request timeout covering retries.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithMaxRetries sets how often the client retries a failed request. Negative
// values keep the client default.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = n
	}
}

// New constructs a new OpenAI TTS Provider.
// If model is empty, DefaultModel (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.timeout))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Synthesize requests speech for req.Text in req.Voice and returns the MP3
// response body. A zero req.Speed leaves the speed at the API default.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	if req.Text == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}
	if req.Voice == "" {
		return nil, errors.New("openai tts: voice must not be empty")
	}

	params := oai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	}
	if req.Speed > 0 {
		params.Speed = param.NewOpt(req.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("openai tts: speech: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Model returns the speech model used for requests.
func (p *Provider) Model() string {
	return p.model
}
