package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVInfo describes a PCM WAV file as decoded from its actual content.
type WAVInfo struct {
	Duration   float64
	SampleRate int
	Channels   int
	BitDepth   int
}

// ReadWAVInfo decodes the WAV header and data chunk at path. Unlike
// container headers from the upload, this reflects what the file really
// contains, so durations derived from it are trustworthy.
func ReadWAVInfo(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid wav file: %s", path)
	}

	dur, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav duration: %w", err)
	}

	return &WAVInfo{
		Duration:   dur.Seconds(),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}, nil
}

// peakScanSamples bounds how much PCM data PeakAmplitude reads per file.
// 16 kHz mono covers well over a minute of audio, enough to tell a real
// recording from a silent one.
const peakScanSamples = 1 << 20

// PeakAmplitude returns the largest absolute sample value in the first
// portion of the WAV at path, normalized to [0, 1]. Used to flag uploads
// that decoded fine but contain only silence.
func PeakAmplitude(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open wav file: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("not a valid wav file: %s", path)
	}

	fullScale := float64(int64(1) << (dec.BitDepth - 1))
	buf := &audio.IntBuffer{
		Data:   make([]int, 8192),
		Format: &audio.Format{SampleRate: int(dec.SampleRate), NumChannels: int(dec.NumChans)},
	}

	peak := 0
	read := 0
	for read < peakScanSamples {
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return 0, fmt.Errorf("failed to read pcm data: %w", err)
		}
		if n == 0 {
			break
		}
		for _, s := range buf.Data[:n] {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		read += n
	}

	return float64(peak) / fullScale, nil
}
