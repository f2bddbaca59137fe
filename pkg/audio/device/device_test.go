package device

import (
	"testing"

	"github.com/gordonklaus/portaudio"
)

func TestPick(t *testing.T) {
	t.Parallel()

	devs := []*portaudio.DeviceInfo{
		{Name: "HDMI Output", MaxOutputChannels: 2},
		{Name: "USB Microphone", MaxInputChannels: 1},
		{Name: "Built-in Audio", MaxInputChannels: 2, MaxOutputChannels: 2},
		{Name: "usb microphone (2)", MaxInputChannels: 1},
	}

	tests := []struct {
		name  string
		query string
		input bool
		want  string
	}{
		{name: "exact beats partial", query: "usb microphone (2)", input: true, want: "usb microphone (2)"},
		{name: "case insensitive partial", query: "USB", input: true, want: "USB Microphone"},
		{name: "input only device skipped for output", query: "microphone", input: false, want: ""},
		{name: "duplex device", query: "built-in", input: false, want: "Built-in Audio"},
		{name: "output only device skipped for input", query: "hdmi", input: true, want: ""},
		{name: "no match", query: "bluetooth", input: true, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := pick(devs, tt.query, tt.input)
			switch {
			case tt.want == "" && got != nil:
				t.Errorf("pick(%q) = %q, want no device", tt.query, got.Name)
			case tt.want != "" && (got == nil || got.Name != tt.want):
				t.Errorf("pick(%q) = %v, want %q", tt.query, got, tt.want)
			}
		})
	}
}

func TestFit(t *testing.T) {
	t.Parallel()

	if got := fit([]int16{1, 2, 3}, 2); len(got) != 2 || got[1] != 2 {
		t.Errorf("truncate: got %v", got)
	}
	if got := fit([]int16{1}, 3); len(got) != 3 || got[0] != 1 || got[2] != 0 {
		t.Errorf("pad: got %v", got)
	}
}
