// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. Each Synthesize call opens one
// connection, sends the whole line, and exposes the returned MP3 chunks as a
// single stream. It implements the tts.Provider interface.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"

	"github.com/coder/websocket"

	"github.com/chaqchase/sharad/pkg/provider/tts"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io"
	streamPathFmt    = "/v1/text-to-speech/%s/stream-input"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// defaultVoiceID is the stock "Rachel" voice, used for narration voices
	// without an explicit mapping.
	defaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

	// ElevenLabs accepts speed multipliers only within this range.
	minSpeed = 0.7
	maxSpeed = 1.2
)

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the WebSocket base URL (scheme and host).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithVoiceMap maps narration voices to ElevenLabs voice IDs.
func WithVoiceMap(m map[tts.Voice]string) Option {
	return func(p *Provider) {
		for k, v := range m {
			p.voices[k] = v
		}
	}
}

// WithDefaultVoiceID sets the ElevenLabs voice used for unmapped voices.
func WithDefaultVoiceID(id string) Option {
	return func(p *Provider) {
		p.defaultVoiceID = id
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey         string
	model          string
	outputFormat   string
	endpoint       string
	defaultVoiceID string
	voices         map[tts.Voice]string
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:         apiKey,
		model:          defaultModel,
		outputFormat:   defaultOutputFmt,
		endpoint:       defaultEndpoint,
		defaultVoiceID: defaultVoiceID,
		voices:         make(map[tts.Voice]string),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload carrying the line text or the flush marker.
type textMessage struct {
	Text string `json:"text"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// boiMessage is the "begin of input" handshake that authenticates the stream.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded MP3 chunk
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize opens a stream-input WebSocket for the mapped voice, sends the
// line followed by a flush, and returns a reader over the concatenated audio
// chunks. The reader reports EOF once ElevenLabs marks the output final.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (io.ReadCloser, error) {
	if req.Text == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(p.voiceID(req.Voice)), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}

	msgs := []any{
		boiMessage{
			Text:          " ", // ElevenLabs requires a non-empty first text value
			VoiceSettings: &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75, Speed: clampSpeed(req.Speed)},
			XiAPIKey:      p.apiKey,
		},
		textMessage{Text: req.Text + " "},
		textMessage{Text: ""}, // flush
	}
	for _, m := range msgs {
		data, _ := json.Marshal(m)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			conn.Close(websocket.StatusInternalError, "send failed")
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	pr, pw := io.Pipe()
	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "done")
		pw.CloseWithError(readAudio(ctx, conn, pw))
	}()
	return pr, nil
}

// readAudio copies decoded audio chunks from conn into w until the final
// message. It returns nil on a clean end of stream.
func readAudio(ctx context.Context, conn *websocket.Conn, w io.Writer) error {
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			if _, err := w.Write(chunk); err != nil {
				return err
			}
		}
		if resp.IsFinal {
			return nil
		}
	}
}

// ---- helpers ----

// voiceID resolves the ElevenLabs voice for a narration voice.
func (p *Provider) voiceID(v tts.Voice) string {
	if id, ok := p.voices[v]; ok && id != "" {
		return id
	}
	return p.defaultVoiceID
}

// streamURL constructs the WebSocket URL for a given voice.
func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return p.endpoint + fmt.Sprintf(streamPathFmt, url.PathEscape(voiceID)) + "?" + q.Encode()
}

// clampSpeed limits s to the range ElevenLabs accepts. Zero stays zero so the
// field is omitted.
func clampSpeed(s float64) float64 {
	switch {
	case s == 0:
		return 0
	case s < minSpeed:
		return minSpeed
	case s > maxSpeed:
		return maxSpeed
	}
	return s
}
