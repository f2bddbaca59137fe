package audio_test

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/vocalis/pkg/audio"
)

func TestResample(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []int16
		from, to int
		want     []int16
	}{
		{"same rate", []int16{100, 200, 300}, 48000, 48000, []int16{100, 200, 300}},
		{"zero source rate", []int16{100, 200}, 0, 48000, []int16{100, 200}},
		{"negative target rate", []int16{100, 200}, 16000, -1, []int16{100, 200}},
		{"empty", nil, 16000, 48000, nil},
		{"triple", []int16{0, 300}, 16000, 48000, []int16{0, 100, 200, 300, 300, 300}},
		{"third", []int16{100, 200, 300, 400, 500, 600}, 48000, 16000, []int16{100, 400}},
		{"half", []int16{-32768, 32767, 0, 10}, 16000, 8000, []int16{-32768, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.Resample(tt.in, tt.from, tt.to); !slices.Equal(got, tt.want) {
				t.Errorf("Resample = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Parallel()
	pcm := audio.SamplesToPCM([]int16{1000, 2000})
	if got := audio.ResampleMono16(pcm, 16000, 16000); len(got) != len(pcm) {
		t.Errorf("same rate len = %d, want %d", len(got), len(pcm))
	}
	got := audio.PCMToSamples(audio.ResampleMono16(pcm, 16000, 32000))
	if want := []int16{1000, 1500, 2000, 2000}; !slices.Equal(got, want) {
		t.Errorf("upsampled = %v, want %v", got, want)
	}
}

func TestDownmix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       []int16
		channels int
		want     []int16
	}{
		{"mono passthrough", []int16{1, 2, 3}, 1, []int16{1, 2, 3}},
		{"stereo", []int16{100, 200, -100, -200}, 2, []int16{150, -150}},
		{"full scale does not wrap", []int16{32767, 32767, -32768, -32768}, 2, []int16{32767, -32768}},
		{"trailing partial frame", []int16{10, 20, 30}, 2, []int16{15}},
		{"three channels", []int16{3, 6, 9}, 3, []int16{6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.Downmix(tt.in, tt.channels); !slices.Equal(got, tt.want) {
				t.Errorf("Downmix = %v, want %v", got, tt.want)
			}
		})
	}

	mono := audio.PCMToSamples(audio.StereoToMono(audio.SamplesToPCM([]int16{100, 300})))
	if !slices.Equal(mono, []int16{200}) {
		t.Errorf("StereoToMono = %v, want [200]", mono)
	}
}

func TestFloat32(t *testing.T) {
	t.Parallel()
	got := audio.Float32([]int16{0, 16384, -16384, -32768, 32767})
	want := []float32{0, 0.5, -0.5, -1, 32767.0 / 32768.0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
	if len(audio.Float32(nil)) != 0 {
		t.Error("Float32(nil) not empty")
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()
	if got := audio.RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}
	got := audio.RMS([]int16{1000, -1000, 1000, -1000})
	if math.Abs(got-1000) > 1e-9 {
		t.Errorf("RMS = %v, want 1000", got)
	}
}

func TestScale(t *testing.T) {
	t.Parallel()
	pcm := audio.SamplesToPCM([]int16{1000, -2000, 30000})
	if got := audio.PCMToSamples(audio.Scale(pcm, 0.5)); !slices.Equal(got, []int16{500, -1000, 15000}) {
		t.Errorf("half gain = %v", got)
	}
	if got := audio.PCMToSamples(audio.Scale(pcm, 2)); !slices.Equal(got, []int16{2000, -4000, 32767}) {
		t.Errorf("double gain = %v", got)
	}
	if got := audio.Scale(pcm, 1); &got[0] != &pcm[0] {
		t.Error("unit gain copied the buffer")
	}
}

func TestUtterance_Helpers(t *testing.T) {
	t.Parallel()
	frames := []audio.Frame{
		{Samples: make([]int16, 512), SampleRate: 16000},
		{Samples: []int16{1, 2}, SampleRate: 16000},
	}
	frames[0].Samples[0] = 7
	u := &audio.Utterance{Frames: frames, PreRoll: 1, SampleRate: 16000}

	if u.Len() != 2 {
		t.Fatalf("Len = %d, want 2", u.Len())
	}
	samples := u.Samples()
	if len(samples) != 514 || samples[0] != 7 || samples[513] != 2 {
		t.Errorf("Samples = len %d first %d last %d", len(samples), samples[0], samples[len(samples)-1])
	}
	if got := len(u.PCM()); got != 514*2 {
		t.Errorf("PCM len = %d, want %d", got, 514*2)
	}
	want := 32*time.Millisecond + 125*time.Microsecond
	if got := u.Duration(); got != want {
		t.Errorf("Duration = %v, want %v", got, want)
	}
}

func TestBuffer_Duration(t *testing.T) {
	t.Parallel()
	b := audio.Buffer{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	if got := b.Duration(); got != time.Second {
		t.Errorf("Duration = %v, want 1s", got)
	}
	stereo := audio.Buffer{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 2}
	if got := stereo.Duration(); got != 500*time.Millisecond {
		t.Errorf("stereo Duration = %v, want 500ms", got)
	}
	if !(audio.Buffer{}).Empty() {
		t.Error("zero Buffer should be empty")
	}
}
