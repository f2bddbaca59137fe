// Package coqui synthesises speech through a locally running Coqui TTS
// server.
//
// Two server flavours are supported:
//
//   - APIModeStandard (default): the stock Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is GET /api/tts with query
//     parameters; voices come from GET /details.
//
//   - APIModeXTTS: the XTTS v2 API server. Synthesis is POST /tts_to_audio/
//     with a JSON body; voices come from GET /studio_speakers.
//
// Both return one WAV file per request. The speech pipeline already splits
// replies into sentences and runs several requests at once, so the provider
// only handles a single sentence per call.
//
// VoiceProfile.SpeedFactor is not applied. Neither synthesis route takes a
// rate: the standard server reads only text, speaker_id, style_wav and
// language_id, and XTTS sets speed server-wide through /set_tts_settings,
// which concurrent sentences would race on. Resampling the returned WAV
// would shift the pitch. Use the piper provider when the rate matters.
//
//	p, err := coqui.New("http://localhost:5002", coqui.WithLanguage("en"))
//	buf, err := p.Synthesize(ctx, "Hello there.", tts.VoiceProfile{ID: "british_female"})
package coqui

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/wavfile"
	"github.com/MrWong99/vocalis/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Synthesizer = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxErrorBody bounds how much of an error response is quoted.
	maxErrorBody = 512
)

// VoiceAliases maps friendly voice names to VCTK speaker ids of the default
// multi-speaker model.
var VoiceAliases = map[string]string{
	"british_male":   "p258",
	"british_female": "p287",
}

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeStandard is the stock server: GET /api/tts and GET /details.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS is the XTTS v2 server: POST /tts_to_audio/ and
	// GET /studio_speakers.
	APIModeXTTS APIMode = "xtts"
)

// routes are the synthesis and voice listing paths of one server flavour.
type routes struct {
	synthesize string
	voices     string
}

var modeRoutes = map[APIMode]routes{
	APIModeStandard: {synthesize: "/api/tts", voices: "/details"},
	APIModeXTTS:     {synthesize: "/tts_to_audio/", voices: "/studio_speakers"},
}

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language code sent to the server. Default: "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithTimeout sets the per-request HTTP timeout. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithAPIMode selects the server flavour. Default: [APIModeStandard].
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) { p.apiMode = mode }
}

// WithDefaultVoice sets the voice used when a request's VoiceProfile has no
// ID. Aliases from [VoiceAliases] are accepted.
func WithDefaultVoice(id string) Option {
	return func(p *Provider) { p.defaultVoice = id }
}

// WithOutputSampleRate resamples mono output to rate. Zero keeps the model's
// native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) { p.outputRate = rate }
}

// Provider is a [tts.Synthesizer] for one Coqui server. It is safe for
// concurrent use.
type Provider struct {
	serverURL    string
	apiMode      APIMode
	routes       routes
	language     string
	defaultVoice string
	outputRate   int
	httpClient   *http.Client
}

// New returns a Provider for the server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	r, ok := modeRoutes[p.apiMode]
	if !ok {
		return nil, fmt.Errorf("coqui: unknown API mode %q", p.apiMode)
	}
	p.routes = r
	return p, nil
}

// ResolveVoice expands an alias from [VoiceAliases]; other ids pass through.
func ResolveVoice(id string) string {
	if v, ok := VoiceAliases[strings.ToLower(id)]; ok {
		return v
	}
	return id
}

// xttsBody is the JSON payload of an XTTS synthesis request.
type xttsBody struct {
	Text     string `json:"text"`
	Speaker  string `json:"speaker_wav"`
	Language string `json:"language"`
}

// details is the standard server's model description.
type details struct {
	Model    string   `json:"model_name"`
	Speakers []string `json:"speakers"`
}

// ─── Synthesize ───

// Synthesize renders text and returns the decoded WAV audio.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Buffer, error) {
	if strings.TrimSpace(text) == "" {
		return audio.Buffer{}, tts.ErrEmptyText
	}
	id := ResolveVoice(cmp.Or(voice.ID, p.defaultVoice))
	lang := cmp.Or(voice.Language, p.language)

	var (
		req *http.Request
		err error
	)
	switch p.apiMode {
	case APIModeXTTS:
		if id == "" {
			return audio.Buffer{}, errors.New("coqui: a voice id is required in XTTS mode")
		}
		req, err = p.xttsRequest(ctx, text, id, lang)
	default:
		req, err = p.standardRequest(ctx, text, id, lang)
	}
	if err != nil {
		return audio.Buffer{}, err
	}

	wav, err := p.do(req)
	if err != nil {
		return audio.Buffer{}, err
	}
	buf, err := wavfile.Decode(wav)
	if err != nil {
		return audio.Buffer{}, fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate > 0 && buf.Channels == 1 && buf.SampleRate != p.outputRate {
		buf.PCM = audio.ResampleMono16(buf.PCM, buf.SampleRate, p.outputRate)
		buf.SampleRate = p.outputRate
	}
	return buf, nil
}

func (p *Provider) standardRequest(ctx context.Context, text, speaker, lang string) (*http.Request, error) {
	q := url.Values{"text": {text}}
	for k, v := range map[string]string{"speaker_id": speaker, "language_id": lang} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return p.newRequest(ctx, http.MethodGet, p.routes.synthesize+"?"+q.Encode(), nil, "audio/wav")
}

func (p *Provider) xttsRequest(ctx context.Context, text, speaker, lang string) (*http.Request, error) {
	body, err := json.Marshal(xttsBody{Text: text, Speaker: speaker, Language: lang})
	if err != nil {
		return nil, fmt.Errorf("coqui: encode request: %w", err)
	}
	req, err := p.newRequest(ctx, http.MethodPost, p.routes.synthesize, bytes.NewReader(body), "audio/wav")
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (p *Provider) newRequest(ctx context.Context, method, path string, body io.Reader, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, p.serverURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("coqui: build %s request: %w", path, err)
	}
	req.Header.Set("Accept", accept)
	return req, nil
}

// do sends req and returns the body of a 200 response.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("coqui: %s %s returned status %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read %s response: %w", req.URL.Path, err)
	}
	return body, nil
}

// ─── ListVoices ───

// ListVoices returns the server's voices sorted by id. In standard mode a
// multi-speaker model yields one voice per speaker and a single-speaker
// model one voice named after the model.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := p.newRequest(ctx, http.MethodGet, p.routes.voices, nil, "application/json")
	if err != nil {
		return nil, err
	}
	body, err := p.do(req)
	if err != nil {
		return nil, err
	}
	if p.apiMode == APIModeXTTS {
		return studioVoices(body)
	}
	return modelVoices(body)
}

// studioVoices lists the keys of an XTTS /studio_speakers object.
func studioVoices(body []byte) ([]tts.VoiceProfile, error) {
	var speakers map[string]json.RawMessage
	if err := json.Unmarshal(body, &speakers); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}
	return profiles(slices.Collect(maps.Keys(speakers)), map[string]string{"type": "studio"}), nil
}

func modelVoices(body []byte) ([]tts.VoiceProfile, error) {
	var d details
	if err := json.Unmarshal(body, &d); err != nil {
		return nil, fmt.Errorf("coqui: decode model details: %w", err)
	}
	if len(d.Speakers) > 0 {
		return profiles(d.Speakers, map[string]string{"type": "speaker", "model_name": d.Model}), nil
	}
	model := cmp.Or(d.Model, "default")
	return profiles([]string{model}, map[string]string{"type": "single-speaker", "model_name": model}), nil
}

// profiles returns one sorted VoiceProfile per name.
func profiles(names []string, meta map[string]string) []tts.VoiceProfile {
	sorted := slices.Sorted(slices.Values(names))
	out := make([]tts.VoiceProfile, 0, len(sorted))
	for _, n := range sorted {
		out = append(out, tts.VoiceProfile{ID: n, Name: n, Provider: "coqui", Metadata: maps.Clone(meta)})
	}
	return out
}
