// Package elevenlabs synthesises speech with the ElevenLabs stream-input
// WebSocket API.
//
// Each Synthesize call opens one socket, sends the sentence followed by an
// end-of-input marker and collects the base64 PCM chunks until the server
// flags the final one.
package elevenlabs

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Synthesizer = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultWSBase    = "wss://api.elevenlabs.io"
	defaultAPIBase   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"

	defaultStability  = 0.5
	defaultSimilarity = 0.75
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID. Default: "eleven_flash_v2_5".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the PCM output format ("pcm_16000", "pcm_24000", ...).
// Only pcm_* formats are accepted.
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithDefaultVoice sets the voice used when a request carries no voice ID.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) { p.defaultVoice = id }
}

// WithBaseURLs points the provider at a different WebSocket and REST host.
func WithBaseURLs(wsBase, apiBase string) Option {
	return func(p *Provider) {
		p.wsBase = strings.TrimRight(wsBase, "/")
		p.apiBase = strings.TrimRight(apiBase, "/")
	}
}

// WithHTTPClient replaces the client used for REST calls and the WebSocket
// handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider is safe for concurrent use.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	sampleRate   int
	defaultVoice string
	wsBase       string
	apiBase      string
	httpClient   *http.Client
}

// New returns a Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		wsBase:       defaultWSBase,
		apiBase:      defaultAPIBase,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	rate, err := pcmRate(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.sampleRate = rate
	return p, nil
}

// pcmRate parses the sample rate out of a "pcm_<rate>" format name.
func pcmRate(format string) (int, error) {
	s, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: unsupported output format %q (want pcm_<rate>)", format)
	}
	rate, err := strconv.Atoi(s)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", format)
	}
	return rate, nil
}

// ─── Stream protocol ───

type voiceSettings struct {
	Stability  float64 `json:"stability"`
	Similarity float64 `json:"similarity_boost"`
	Speed      float64 `json:"speed,omitempty"`
}

// outbound is any client frame of the stream-input protocol. The opening
// frame carries the key and settings with a single space as text; an empty
// text closes the input.
type outbound struct {
	Text     string         `json:"text"`
	Settings *voiceSettings `json:"voice_settings,omitempty"`
	APIKey   string         `json:"xi_api_key,omitempty"`
	Flush    bool           `json:"try_trigger_generation,omitempty"`
}

type inbound struct {
	Audio   string `json:"audio"`
	Final   bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ─── Synthesize ───

// Synthesize renders text through one stream-input session.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Buffer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Buffer{}, tts.ErrEmptyText
	}
	id := cmp.Or(voice.ID, p.defaultVoice)
	if id == "" {
		return audio.Buffer{}, errors.New("elevenlabs: no voice id")
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(id), &websocket.DialOptions{HTTPClient: p.httpClient})
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(-1)

	settings := &voiceSettings{Stability: defaultStability, Similarity: defaultSimilarity}
	if voice.SpeedFactor > 0 {
		settings.Speed = voice.Speed()
	}
	// Text is only generated once it ends in whitespace.
	frames := []outbound{
		{Text: " ", Settings: settings, APIKey: p.apiKey},
		{Text: text + " ", Flush: true},
		{},
	}
	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			return audio.Buffer{}, fmt.Errorf("elevenlabs: encode frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return audio.Buffer{}, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	pcm, err := collect(ctx, conn)
	if err != nil {
		return audio.Buffer{}, err
	}
	conn.Close(websocket.StatusNormalClosure, "done")
	return audio.Buffer{PCM: pcm, SampleRate: p.sampleRate, Channels: 1}, nil
}

// collect reads audio frames until the final flag or a normal close after
// some audio arrived.
func collect(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, data, err := conn.Read(ctx)
		switch {
		case err == nil:
		case websocket.CloseStatus(err) == websocket.StatusNormalClosure && len(pcm) > 0:
			return pcm, nil
		case ctx.Err() != nil:
			return nil, fmt.Errorf("elevenlabs: read: %w", ctx.Err())
		default:
			return nil, fmt.Errorf("elevenlabs: read: %w", err)
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("elevenlabs: decode frame: %w", err)
		}
		if msg.Error != "" {
			return nil, fmt.Errorf("elevenlabs: server error: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if msg.Final {
			return pcm, nil
		}
	}
}

func (p *Provider) streamURL(voiceID string) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.outputFormat}}
	return p.wsBase + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// ─── ListVoices ───

type voiceList struct {
	Voices []struct {
		ID       string            `json:"voice_id"`
		Name     string            `json:"name"`
		Category string            `json:"category"`
		Labels   map[string]string `json:"labels"`
	} `json:"voices"`
}

// ListVoices returns every voice available to the API key. The category is
// merged into the labels as metadata.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: status %d", resp.StatusCode)
	}

	var list voiceList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	out := make([]tts.VoiceProfile, len(list.Voices))
	for i, v := range list.Voices {
		meta := map[string]string{}
		maps.Copy(meta, v.Labels)
		if v.Category != "" {
			meta["category"] = v.Category
		}
		out[i] = tts.VoiceProfile{ID: v.ID, Name: v.Name, Provider: "elevenlabs", Metadata: meta}
	}
	return out, nil
}
