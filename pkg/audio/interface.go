// Package audio wraps ffmpeg for probing, normalization, silence detection
// and chunk extraction. Everything downstream of this package works on mono
// 16-kHz PCM WAV.
package audio

import (
	"context"
	"strings"
)

// Target format for speech-to-text input.
const (
	TargetSampleRate = 16000
	TargetChannels   = 1
)

// Info contains metadata about a normalized audio file.
type Info struct {
	Path       string
	Duration   float64 // seconds, measured from the produced WAV
	SampleRate int
	Channels   int
	Codec      string
	IsVideo    bool
}

// Span is a half-open interval of the source audio in seconds.
type Span struct {
	Start float64
	End   float64
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 { return s.End - s.Start }

// ChunkFile is an extracted chunk on local disk.
type ChunkFile struct {
	Index int
	Span
	Path string
}

// Normalizer converts an uploaded artifact into the target WAV format.
type Normalizer interface {
	// Normalize decodes inputPath (declared extension ext, without dot),
	// extracting the audio track from video containers, and writes a mono
	// 16-kHz PCM WAV to outputPath. The returned duration is measured from
	// the produced WAV, not from source headers.
	Normalize(ctx context.Context, inputPath, ext, outputPath string) (*Info, error)
}

// Chunker splits a normalized WAV into overlapping, silence-aligned chunks.
type Chunker interface {
	// ChunkFile computes boundaries for the given duration and extracts one
	// WAV per chunk into outDir.
	ChunkFile(ctx context.Context, wavPath string, duration float64, outDir string) ([]ChunkFile, error)
}

// audioExtensions are the recognized audio container extensions.
var audioExtensions = map[string]bool{
	"mp3": true, "wav": true, "m4a": true, "flac": true,
	"ogg": true, "opus": true, "webm": true, "aac": true, "wma": true,
}

// videoExtensions are the recognized video container extensions; their
// audio track is extracted.
var videoExtensions = map[string]bool{
	"mp4": true, "mkv": true, "avi": true, "mov": true,
	"wmv": true, "flv": true, "mpeg": true, "mpg": true, "3gp": true,
}

// IsAudioExtension reports whether ext names a supported audio container.
func IsAudioExtension(ext string) bool {
	return audioExtensions[normalizeExt(ext)]
}

// IsVideoExtension reports whether ext names a supported video container.
func IsVideoExtension(ext string) bool {
	return videoExtensions[normalizeExt(ext)]
}

// IsSupportedExtension reports whether ext is a recognized container.
func IsSupportedExtension(ext string) bool {
	return IsAudioExtension(ext) || IsVideoExtension(ext)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
