package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/scribepipe/scribepipe/pkg/logger"
	"github.com/scribepipe/scribepipe/pkg/stterr"
)

// MinUsableDuration is the shortest audio accepted by the pipeline. Files
// at or below this are empty uploads or header-only fragments.
const MinUsableDuration = 0.1

// silentPeakThreshold is roughly -48 dBFS. Below it the decoded audio is
// treated as silence for warning purposes.
const silentPeakThreshold = 0.004

// FFmpegNormalizer decodes uploaded audio and video files to mono 16-kHz
// PCM WAV using the system ffmpeg.
type FFmpegNormalizer struct{}

// NewNormalizer creates a new ffmpeg-backed normalizer.
func NewNormalizer() *FFmpegNormalizer {
	return &FFmpegNormalizer{}
}

// Normalize implements Normalizer.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, inputPath, ext, outputPath string) (*Info, error) {
	log := logger.WithComponent("audio-normalizer").WithField("file", filepath.Base(inputPath))

	if !IsSupportedExtension(ext) {
		return nil, stterr.New(stterr.KindInvalidAudio, "normalizer",
			fmt.Sprintf("unsupported file extension: %q", ext))
	}

	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("input file not accessible: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	probe, err := probeFile(inputPath)
	if err != nil {
		log.Warn().Err(err).Msg("ffprobe failed, file is not decodable")
		return nil, stterr.Wrap(stterr.KindInvalidAudio, "normalizer",
			"file could not be decoded as audio", err)
	}

	log.Debug().
		Float64("header_duration", probe.Duration).
		Str("codec", probe.Codec).
		Int("sample_rate", probe.SampleRate).
		Int("channels", probe.Channels).
		Msg("Probed upload")

	start := time.Now()
	if ext == "wav" && probe.Codec == "pcm_s16le" &&
		probe.SampleRate == TargetSampleRate && probe.Channels == TargetChannels {
		// Already in target form, skip the transcode.
		if err := copyFile(inputPath, outputPath); err != nil {
			return nil, fmt.Errorf("failed to copy wav: %w", err)
		}
	} else {
		stream := ffmpeg.Input(inputPath).
			Output(outputPath, ffmpeg.KwArgs{
				"acodec": "pcm_s16le",
				"ar":     strconv.Itoa(TargetSampleRate),
				"ac":     strconv.Itoa(TargetChannels),
				"vn":     "", // drop any video stream
			}).
			OverWriteOutput().
			Silent(true)

		if err := runWithContext(ctx, stream); err != nil {
			log.Error().Err(err).Msg("FFmpeg normalization failed")
			return nil, stterr.Wrap(stterr.KindInvalidAudio, "normalizer",
				"audio decode failed", err)
		}
	}

	// Duration is measured from the produced WAV. Container headers lie
	// (VBR MP3s, truncated uploads), and every chunk boundary downstream
	// depends on this number.
	wavInfo, err := ReadWAVInfo(outputPath)
	if err != nil {
		return nil, stterr.Wrap(stterr.KindInvalidAudio, "normalizer",
			"produced wav is unreadable", err)
	}
	if wavInfo.Duration <= MinUsableDuration {
		return nil, stterr.New(stterr.KindInvalidAudio, "normalizer",
			fmt.Sprintf("audio too short to transcribe: %.3fs", wavInfo.Duration))
	}

	if peak, err := PeakAmplitude(outputPath); err == nil && peak < silentPeakThreshold {
		log.Warn().Float64("peak", peak).Msg("Normalized audio is near-silent, transcription may be empty")
	}

	log.Info().
		Float64("duration", wavInfo.Duration).
		Dur("elapsed", time.Since(start)).
		Bool("is_video", IsVideoExtension(ext)).
		Msg("Audio normalized")

	return &Info{
		Path:       outputPath,
		Duration:   wavInfo.Duration,
		SampleRate: wavInfo.SampleRate,
		Channels:   wavInfo.Channels,
		Codec:      "pcm_s16le",
		IsVideo:    IsVideoExtension(ext),
	}, nil
}

type probeInfo struct {
	Duration   float64
	Codec      string
	SampleRate int
	Channels   int
}

// probeFile runs ffprobe and extracts the first audio stream's parameters.
func probeFile(path string) (*probeInfo, error) {
	raw, err := ffmpeg.Probe(path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe file: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return nil, fmt.Errorf("failed to parse probe JSON: %w", err)
	}

	info := &probeInfo{}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	hasAudio := false
	for _, s := range probe.Streams {
		if s.CodecType == "audio" {
			hasAudio = true
			info.Codec = s.CodecName
			info.Channels = s.Channels
			if s.SampleRate != "" {
				if sr, err := strconv.Atoi(s.SampleRate); err == nil {
					info.SampleRate = sr
				}
			}
			break
		}
	}
	if !hasAudio {
		return nil, fmt.Errorf("no audio stream in file")
	}

	return info, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// runWithContext executes an ffmpeg stream, honoring ctx cancellation.
// ffmpeg-go has no native context support, so the run is supervised from
// a goroutine.
func runWithContext(ctx context.Context, stream *ffmpeg.Stream) error {
	done := make(chan error, 1)
	go func() { done <- stream.Run() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
