package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
	"github.com/MrWong99/vocalis/pkg/audio/wavfile"
	"github.com/MrWong99/vocalis/pkg/provider/stt"
	"github.com/MrWong99/vocalis/pkg/provider/stt/whisper"
)

// upload is one parsed /inference request.
type upload struct {
	fields map[string]string
	wav    audio.Buffer
}

// inferenceServer is a fake whisper-server. It answers every upload with
// text and keeps what it received.
type inferenceServer struct {
	*httptest.Server
	text string

	mu      sync.Mutex
	uploads []upload
}

func newInferenceServer(t *testing.T, text string) *inferenceServer {
	t.Helper()
	s := &inferenceServer{text: text}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *inferenceServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/inference" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, _ := io.ReadAll(f)
	buf, err := wavfile.Decode(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	up := upload{fields: map[string]string{}, wav: buf}
	for k, v := range r.MultipartForm.Value {
		up.fields[k] = v[0]
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"text": s.text})
}

func (s *inferenceServer) received() []upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]upload(nil), s.uploads...)
}

// tone builds an utterance of n 512-sample frames of a 440 Hz sine.
func tone(n, rate int) *audio.Utterance {
	frames := make([]audio.Frame, n)
	for i := range frames {
		s := make([]int16, 512)
		for j := range s {
			s[j] = int16(8000 * math.Sin(2*math.Pi*440*float64(i*512+j)/float64(rate)))
		}
		frames[i] = audio.Frame{Samples: s, SampleRate: rate}
	}
	return &audio.Utterance{Frames: frames, SampleRate: rate}
}

func TestNew(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Error("New with empty URL succeeded")
	}
	p, err := whisper.New("http://localhost:8080/",
		whisper.WithModel("base.en"),
		whisper.WithLanguage("de"),
		whisper.WithHTTPClient(&http.Client{Timeout: time.Second}),
	)
	if err != nil || p == nil {
		t.Fatalf("New = %v, %v", p, err)
	}
}

func TestTranscribe_Upload(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		opts        []whisper.Option
		utterance   *audio.Utterance
		wantSamples int
		wantFields  map[string]string
	}{
		{
			name:        "16 kHz passes through",
			opts:        []whisper.Option{whisper.WithModel("small"), whisper.WithLanguage("en")},
			utterance:   tone(4, 16000),
			wantSamples: 4 * 512,
			wantFields:  map[string]string{"language": "en", "model": "small", "response_format": "json"},
		},
		{
			name:        "48 kHz is downsampled",
			utterance:   tone(3, 48000),
			wantSamples: 512,
			wantFields:  map[string]string{"language": "en", "temperature": "0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newInferenceServer(t, "  what time is it \n")
			p, _ := whisper.New(srv.URL, tt.opts...)

			got, err := p.Transcribe(context.Background(), tt.utterance)
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if got != "what time is it" {
				t.Errorf("text = %q", got)
			}
			ups := srv.received()
			if len(ups) != 1 {
				t.Fatalf("uploads = %d, want 1", len(ups))
			}
			wav := ups[0].wav
			if wav.SampleRate != 16000 || wav.Channels != 1 {
				t.Errorf("wav format = %d Hz x%d, want 16000 Hz mono", wav.SampleRate, wav.Channels)
			}
			if n := len(wav.PCM) / 2; n != tt.wantSamples {
				t.Errorf("wav samples = %d, want %d", n, tt.wantSamples)
			}
			for k, want := range tt.wantFields {
				if ups[0].fields[k] != want {
					t.Errorf("field %s = %q, want %q", k, ups[0].fields[k], want)
				}
			}
		})
	}
}

func TestTranscribe_OmitsEmptyModel(t *testing.T) {
	t.Parallel()
	srv := newInferenceServer(t, "hello")
	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), tone(1, 16000)); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if _, ok := srv.received()[0].fields["model"]; ok {
		t.Error("empty model was sent")
	}
}

func TestTranscribe_EmptyTranscript(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		text      string
		utterance *audio.Utterance
		wantCalls int
	}{
		{"blank response", "   ", tone(2, 16000), 1},
		{"empty utterance", "ignored", &audio.Utterance{}, 0},
		{"nil utterance", "ignored", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := newInferenceServer(t, tt.text)
			p, _ := whisper.New(srv.URL)
			_, err := p.Transcribe(context.Background(), tt.utterance)
			if !errors.Is(err, stt.ErrEmptyTranscript) {
				t.Fatalf("err = %v, want ErrEmptyTranscript", err)
			}
			if n := len(srv.received()); n != tt.wantCalls {
				t.Errorf("uploads = %d, want %d", n, tt.wantCalls)
			}
		})
	}
}

func TestTranscribe_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "model not loaded", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			t.Cleanup(srv.Close)

			p, _ := whisper.New(srv.URL)
			_, err := p.Transcribe(context.Background(), tone(1, 16000))
			if err == nil {
				t.Fatal("Transcribe succeeded")
			}
			if errors.Is(err, stt.ErrEmptyTranscript) {
				t.Errorf("failure reported as empty transcript: %v", err)
			}
		})
	}
}

func TestTranscribe_Deadline(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Transcribe(ctx, tone(1, 16000)); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}
