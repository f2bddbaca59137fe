// Package deepgram transcribes utterances over the Deepgram live WebSocket
// API.
//
// A sealed utterance is replayed into a fresh stream in 250 ms chunks and
// followed by a CloseStream control message. The server then flushes its
// remaining results and closes the socket; the final results are joined
// into the transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
)

const (
	defaultEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"

	// chunkBytes is 250 ms of 16 kHz mono PCM.
	chunkBytes = stt.DefaultSampleRate / 4 * 2
)

var closeStream = []byte(`{"type":"CloseStream"}`)

var _ stt.Transcriber = (*Provider)(nil)

// Keyword boosts recognition of a rare word such as the wake phrase name.
type Keyword struct {
	Word  string
	Boost float64
}

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the recognition model. Default: "nova-3".
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language, e.g. "en" or "de-DE".
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithKeywords boosts the given words on every stream.
func WithKeywords(kws ...Keyword) Option {
	return func(p *Provider) { p.keywords = append(p.keywords, kws...) }
}

// WithMinConfidence drops final results the server is less sure of than c.
func WithMinConfidence(c float64) Option {
	return func(p *Provider) { p.minConfidence = c }
}

// WithEndpoint points the provider at another listen endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider is safe for concurrent use; every call opens its own stream.
type Provider struct {
	apiKey        string
	model         string
	language      string
	endpoint      string
	keywords      []Keyword
	minConfidence float64
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: defaultEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams u and returns the joined final results.
func (p *Provider) Transcribe(ctx context.Context, u *audio.Utterance) (string, error) {
	if u == nil || u.Len() == 0 {
		return "", stt.ErrEmptyTranscript
	}
	target, err := p.streamURL()
	if err != nil {
		return "", fmt.Errorf("deepgram: endpoint: %w", err)
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return "", fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	if err := send(ctx, conn, stt.PCM16k(u)); err != nil {
		return "", err
	}
	parts, err := p.receive(ctx, conn)
	if err != nil {
		return "", err
	}
	text := strings.Join(parts, " ")
	if text == "" {
		return "", stt.ErrEmptyTranscript
	}
	return text, nil
}

// send writes pcm in chunks and asks the server to flush.
func send(ctx context.Context, conn *websocket.Conn, pcm []byte) error {
	for len(pcm) > 0 {
		n := min(chunkBytes, len(pcm))
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[:n]); err != nil {
			return fmt.Errorf("deepgram: write audio: %w", err)
		}
		pcm = pcm[n:]
	}
	if err := conn.Write(ctx, websocket.MessageText, closeStream); err != nil {
		return fmt.Errorf("deepgram: close stream: %w", err)
	}
	return nil
}

// receive collects final transcripts until the server closes the stream or
// marks a result as the answer to the flush.
func (p *Provider) receive(ctx context.Context, conn *websocket.Conn) ([]string, error) {
	var parts []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return parts, nil
			}
			return nil, fmt.Errorf("deepgram: read: %w", err)
		}
		msg, ok := decode(data)
		if !ok {
			continue
		}
		if msg.final && msg.text != "" && msg.confidence >= p.minConfidence {
			parts = append(parts, msg.text)
		}
		if msg.flushed {
			return parts, nil
		}
	}
}

func (p *Provider) streamURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range map[string]string{
		"model":       p.model,
		"language":    p.language,
		"punctuate":   "true",
		"encoding":    "linear16",
		"sample_rate": strconv.Itoa(stt.DefaultSampleRate),
		"channels":    "1",
	} {
		q.Set(k, v)
	}
	for _, kw := range p.keywords {
		q.Add("keywords", kw.Word+":"+strconv.FormatFloat(kw.Boost, 'g', -1, 64))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ─── Server messages ───

type resultsEvent struct {
	Type     string `json:"type"`
	IsFinal  bool   `json:"is_final"`
	Finalize bool   `json:"from_finalize"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is the best alternative of one Results event.
type result struct {
	text       string
	confidence float64
	final      bool
	flushed    bool
}

// decode parses a server message. Anything other than a Results event with
// at least one alternative is reported as not ok.
func decode(data []byte) (result, bool) {
	var ev resultsEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.Type != "Results" || len(ev.Channel.Alternatives) == 0 {
		return result{}, false
	}
	best := ev.Channel.Alternatives[0]
	return result{
		text:       strings.TrimSpace(best.Transcript),
		confidence: best.Confidence,
		final:      ev.IsFinal,
		flushed:    ev.Finalize,
	}, true
}
