package artifact

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"media-library/internal/database"
)

const (
	// waveformBars is the fixed number of peak bars stored per track.
	waveformBars = 100

	// streamChunk is how many interleaved samples are pulled per read
	// while peak-scanning a track.
	streamChunk = 2048
)

// generateWaveform streams one audio file start to finish, collecting
// absolute peaks, and stores them resampled to a fixed bar count in
// [0, 1]. Peaks are raw, not normalized: a quiet track draws quiet.
// The track duration and sample rate are recorded along the way.
func (c *Coordinator) generateWaveform(ctx context.Context, item *database.PendingAsset) error {
	f, err := os.Open(item.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", item.Path, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch item.Extension {
	case "wav":
		streamer, format, err = wav.Decode(f)
	case "mp3":
		streamer, format, err = mp3.Decode(f)
	case "ogg":
		streamer, format, err = vorbis.Decode(f)
	case "flac":
		streamer, format, err = flac.Decode(f)
	default:
		f.Close()
		return fmt.Errorf("no decoder for audio format %q", item.Extension)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to decode %s: %w", item.Path, err)
	}

	peaks, sampleCount := collectPeaks(streamer)

	if err := streamer.Close(); err != nil {
		return fmt.Errorf("failed to close decoder for %s: %w", item.Path, err)
	}
	f.Close()

	durationSec := format.SampleRate.D(sampleCount).Seconds()
	bars := resamplePeaks(peaks, waveformBars)
	meta := database.AudioMeta(int(format.SampleRate), 0, "")

	return c.db.SetWaveform(ctx, item.ID, bars, durationSec, meta)
}

// collectPeaks reads the whole stream in chunks and returns the absolute
// peak of each chunk plus the total sample count. Duration is derived
// from samples actually decoded, so a truncated file reports its playable
// length rather than its header's claim.
func collectPeaks(s beep.Streamer) ([]float64, int) {
	buf := make([][2]float64, streamChunk)

	var (
		peaks []float64
		total int
	)
	for {
		n, ok := s.Stream(buf)
		if n > 0 {
			peak := 0.0
			for _, sample := range buf[:n] {
				if v := math.Abs(sample[0]); v > peak {
					peak = v
				}
				if v := math.Abs(sample[1]); v > peak {
					peak = v
				}
			}
			peaks = append(peaks, peak)
			total += n
		}
		if !ok {
			return peaks, total
		}
	}
}

// resamplePeaks folds a peak series into exactly bars values. Each bar is
// the maximum over its proportional span of peaks, clamped into [0, 1];
// every bar covers at least one peak, so a short series stretches across
// all bars instead of leaving gaps. A silent or empty stream yields all
// zeros.
func resamplePeaks(peaks []float64, bars int) []float32 {
	out := make([]float32, bars)
	if len(peaks) == 0 {
		return out
	}

	for i := range out {
		lo := i * len(peaks) / bars
		hi := (i + 1) * len(peaks) / bars
		if hi <= lo {
			hi = lo + 1
		}

		peak := 0.0
		for _, p := range peaks[lo:hi] {
			if p > peak {
				peak = p
			}
		}
		if peak > 1 {
			peak = 1
		}
		out[i] = float32(peak)
	}
	return out
}
