// Package device connects sessions to the OS audio stack through PortAudio.
//
// [Init] must be called once before opening a [Microphone] or [Speaker]; the
// returned func terminates PortAudio and should run after every device is
// closed.
//
//	terminate, err := device.Init()
//	if err != nil { ... }
//	defer terminate()
//	mic, err := device.OpenMicrophone(device.MicrophoneConfig{SampleRate: 16000, FrameSize: 512})
package device

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Init initialises PortAudio.
func Init() (terminate func() error, err error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initialise portaudio: %w", err)
	}
	return portaudio.Terminate, nil
}

// Info describes one audio device.
type Info struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// List returns every device PortAudio can see.
func List() ([]Info, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list devices: %w", err)
	}
	out := make([]Info, 0, len(devs))
	for _, d := range devs {
		info := Info{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		out = append(out, info)
	}
	return out, nil
}

// ErrNoDevice is returned when no device matches the requested name.
var ErrNoDevice = errors.New("device: no matching device")

// find returns the device named name, or the system default when name is
// empty. Matching is case-insensitive and falls back to the first device
// whose name contains name.
func find(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: list devices: %w", err)
	}
	if d := pick(devs, name, input); d != nil {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoDevice, name)
}

func pick(devs []*portaudio.DeviceInfo, name string, input bool) *portaudio.DeviceInfo {
	usable := func(d *portaudio.DeviceInfo) bool {
		if input {
			return d.MaxInputChannels > 0
		}
		return d.MaxOutputChannels > 0
	}
	want := strings.ToLower(strings.TrimSpace(name))
	var partial *portaudio.DeviceInfo
	for _, d := range devs {
		if !usable(d) {
			continue
		}
		got := strings.ToLower(d.Name)
		if got == want {
			return d
		}
		if partial == nil && strings.Contains(got, want) {
			partial = d
		}
	}
	return partial
}
