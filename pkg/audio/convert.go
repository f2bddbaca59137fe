package audio

import (
	"math"

	goaudio "github.com/go-audio/audio"
)

// clamp16 rounds v to the nearest int16, saturating at the limits.
func clamp16(v float64) int16 {
	return int16(max(min(math.Round(v), math.MaxInt16), math.MinInt16))
}

// Resample converts mono samples from one rate to another by linear
// interpolation. Invalid or equal rates return samples unchanged.
func Resample(samples []int16, from, to int) []int16 {
	if from <= 0 || to <= 0 || from == to || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]int16, n)
	step := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		next := min(j+1, last)
		frac := pos - float64(j)
		out[i] = clamp16(float64(samples[j])*(1-frac) + float64(samples[next])*frac)
	}
	return out
}

// Downmix averages interleaved frames of the given channel count into mono.
// A trailing partial frame is dropped.
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		var sum int
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += int(s)
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// Float32 normalises samples to [-1, 1) for models that take float input.
func Float32(samples []int16) []float32 {
	ints := make([]int, len(samples))
	for i, s := range samples {
		ints[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Data:           ints,
		Format:         &goaudio.Format{NumChannels: 1},
		SourceBitDepth: 16,
	}
	return buf.AsFloat32Buffer().Data
}

// ResampleMono16 is [Resample] over little-endian PCM bytes.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}
	return SamplesToPCM(Resample(PCMToSamples(pcm), srcRate, dstRate))
}

// StereoToMono is [Downmix] of two channels over little-endian PCM bytes.
func StereoToMono(pcm []byte) []byte {
	return SamplesToPCM(Downmix(PCMToSamples(pcm), 2))
}

// Scale multiplies every sample in pcm by gain, saturating at the int16
// limits. A gain of 1 returns pcm as is.
func Scale(pcm []byte, gain float64) []byte {
	if gain == 1 {
		return pcm
	}
	samples := PCMToSamples(pcm)
	for i, s := range samples {
		samples[i] = clamp16(float64(s) * gain)
	}
	return SamplesToPCM(samples)
}

// RMS returns the root-mean-square level of samples in int16 units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
