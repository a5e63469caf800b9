package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/mediatypes"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *database.Database, *events.Bus) {
	t.Helper()

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus()
	t.Cleanup(func() { bus.Close() })

	return NewCoordinator(db, bus, filepath.Join(t.TempDir(), "thumbs")), db, bus
}

func insertAsset(t *testing.T, db *database.Database, path string, kind mediatypes.Kind) *database.Asset {
	t.Helper()

	info, err := os.Stat(path)
	size := int64(0)
	if err == nil {
		size = info.Size()
	}
	if err := db.UpsertByPath(context.Background(), database.NewAssetFromPath(path, kind, size)); err != nil {
		t.Fatalf("UpsertByPath(%s) error = %v", path, err)
	}
	a, err := db.GetByPath(context.Background(), path)
	if err != nil {
		t.Fatalf("GetByPath(%s) error = %v", path, err)
	}
	return a
}

func writeTestImage(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	if err := imaging.Save(img, path); err != nil {
		t.Fatalf("write test image %s: %v", path, err)
	}
}

// tone emits a constant-amplitude signal for a fixed number of samples.
type tone struct {
	remaining int
	amp       float64
}

func (s *tone) Stream(samples [][2]float64) (int, bool) {
	if s.remaining <= 0 {
		return 0, false
	}
	n := len(samples)
	if n > s.remaining {
		n = s.remaining
	}
	for i := 0; i < n; i++ {
		samples[i][0] = s.amp
		samples[i][1] = -s.amp
	}
	s.remaining -= n
	return n, true
}

func (s *tone) Err() error { return nil }

func writeTestWAV(t *testing.T, path string, samples int, amp float64) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	format := beep.Format{SampleRate: 44100, NumChannels: 2, Precision: 2}
	if err := wav.Encode(f, &tone{remaining: samples, amp: amp}, format); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

// subscribeTopic opens a subscription scoped to the test lifetime. It must
// be called before the run starts: the bus does not replay past events.
func subscribeTopic(t *testing.T, bus *events.Bus, topic string) <-chan events.Envelope {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ch, err := bus.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe(%s) error = %v", topic, err)
	}
	return ch
}

// waitForDone drains progress events until the done marker.
func waitForDone(t *testing.T, ch <-chan events.Envelope) []events.ArtifactProgress {
	t.Helper()

	var seen []events.ArtifactProgress
	timeout := time.After(30 * time.Second)
	for {
		select {
		case env := <-ch:
			var p events.ArtifactProgress
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				t.Fatalf("bad progress payload: %v", err)
			}
			seen = append(seen, p)
			if p.Status == events.StatusDone {
				return seen
			}
		case <-timeout:
			t.Fatal("generation did not finish")
		}
	}
}

func TestGenerateThumbnails(t *testing.T) {
	t.Parallel()

	c, db, bus := newTestCoordinator(t)
	dir := t.TempDir()

	wide := filepath.Join(dir, "wide.png")
	tall := filepath.Join(dir, "tall.jpg")
	writeTestImage(t, wide, 400, 300)
	writeTestImage(t, tall, 300, 600)

	insertAsset(t, db, wide, mediatypes.KindImage)
	insertAsset(t, db, tall, mediatypes.KindImage)

	ch := subscribeTopic(t, bus, events.TopicThumbnailProgress)

	queued, err := c.GenerateThumbnails(context.Background())
	if err != nil {
		t.Fatalf("GenerateThumbnails() error = %v", err)
	}
	if queued != 2 {
		t.Fatalf("GenerateThumbnails() queued = %d, want 2", queued)
	}

	progress := waitForDone(t, ch)
	final := progress[len(progress)-1]
	if final.Current != 2 || final.Total != 2 {
		t.Errorf("final progress = %d/%d, want 2/2", final.Current, final.Total)
	}

	a, err := db.GetByPath(context.Background(), wide)
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if a.ThumbnailPath == "" {
		t.Fatal("thumbnail path not recorded")
	}

	thumb, err := imaging.Open(a.ThumbnailPath)
	if err != nil {
		t.Fatalf("open generated thumbnail: %v", err)
	}
	if w := thumb.Bounds().Dx(); w != thumbnailWidth {
		t.Errorf("thumbnail width = %d, want %d", w, thumbnailWidth)
	}
	if h := thumb.Bounds().Dy(); h != 150 {
		t.Errorf("thumbnail height = %d, want 150 (aspect preserved)", h)
	}

	if a.Metadata.Type != database.MetaImage || a.Metadata.Image == nil {
		t.Fatalf("metadata = %+v, want image metadata", a.Metadata)
	}
	if a.Metadata.Image.Width != 400 || a.Metadata.Image.Height != 300 {
		t.Errorf("recorded dimensions = %dx%d, want 400x300",
			a.Metadata.Image.Width, a.Metadata.Image.Height)
	}

	missing, err := db.MissingThumbnails(context.Background())
	if err != nil {
		t.Fatalf("MissingThumbnails() error = %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("MissingThumbnails() = %d items after generation, want 0", len(missing))
	}
}

func TestThumbnailFailureIsIsolated(t *testing.T) {
	t.Parallel()

	c, db, bus := newTestCoordinator(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.png")
	bad := filepath.Join(dir, "bad.png")
	writeTestImage(t, good, 100, 100)
	if err := os.WriteFile(bad, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	insertAsset(t, db, good, mediatypes.KindImage)
	insertAsset(t, db, bad, mediatypes.KindImage)

	ch := subscribeTopic(t, bus, events.TopicThumbnailProgress)

	queued, err := c.GenerateThumbnails(context.Background())
	if err != nil {
		t.Fatalf("GenerateThumbnails() error = %v", err)
	}
	if queued != 2 {
		t.Fatalf("queued = %d, want 2", queued)
	}

	// The run completes despite the corrupt file.
	progress := waitForDone(t, ch)
	if final := progress[len(progress)-1]; final.Current != 2 {
		t.Errorf("final Current = %d, want 2 (failures still count as handled)", final.Current)
	}

	a, err := db.GetByPath(context.Background(), good)
	if err != nil {
		t.Fatalf("GetByPath(good) error = %v", err)
	}
	if a.ThumbnailPath == "" {
		t.Error("good image got no thumbnail")
	}

	// The corrupt file stays queued for a future attempt.
	missing, err := db.MissingThumbnails(context.Background())
	if err != nil {
		t.Fatalf("MissingThumbnails() error = %v", err)
	}
	if len(missing) != 1 || missing[0].Path != bad {
		t.Errorf("MissingThumbnails() = %+v, want only the corrupt file", missing)
	}
}

func TestGenerateWaveforms(t *testing.T) {
	t.Parallel()

	c, db, bus := newTestCoordinator(t)
	dir := t.TempDir()

	track := filepath.Join(dir, "tone.wav")
	writeTestWAV(t, track, 44100, 0.5) // one second at half amplitude

	insertAsset(t, db, track, mediatypes.KindAudio)

	ch := subscribeTopic(t, bus, events.TopicWaveformProgress)

	queued, err := c.GenerateWaveforms(context.Background())
	if err != nil {
		t.Fatalf("GenerateWaveforms() error = %v", err)
	}
	if queued != 1 {
		t.Fatalf("queued = %d, want 1", queued)
	}

	waitForDone(t, ch)

	a, err := db.GetByPath(context.Background(), track)
	if err != nil {
		t.Fatalf("GetByPath() error = %v", err)
	}
	if len(a.Waveform) != waveformBars {
		t.Fatalf("waveform has %d bars, want %d", len(a.Waveform), waveformBars)
	}
	for i, bar := range a.Waveform {
		if math.Abs(float64(bar)-0.5) > 0.01 {
			t.Fatalf("bar %d = %v, want about 0.5", i, bar)
		}
	}
	if math.Abs(a.DurationSec-1.0) > 0.05 {
		t.Errorf("DurationSec = %v, want about 1.0", a.DurationSec)
	}
	if a.Metadata.Type != database.MetaAudio || a.Metadata.Audio == nil {
		t.Fatalf("metadata = %+v, want audio metadata", a.Metadata)
	}
	if a.Metadata.Audio.SampleRate != 44100 {
		t.Errorf("SampleRate = %d, want 44100", a.Metadata.Audio.SampleRate)
	}

	missing, err := db.MissingWaveforms(context.Background())
	if err != nil {
		t.Fatalf("MissingWaveforms() error = %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("MissingWaveforms() = %d items after generation, want 0", len(missing))
	}
}

func TestGenerateNothingPending(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)

	queued, err := c.GenerateThumbnails(context.Background())
	if err != nil {
		t.Fatalf("GenerateThumbnails() error = %v", err)
	}
	if queued != 0 {
		t.Errorf("queued = %d, want 0 on an empty catalog", queued)
	}
	if active := c.Active(); len(active) != 0 {
		t.Errorf("Active() = %v, want none when nothing was queued", active)
	}
}

func TestCancelStopsRunPartway(t *testing.T) {
	t.Parallel()

	c, db, bus := newTestCoordinator(t)
	dir := t.TempDir()

	const total = 150
	for i := 0; i < total; i++ {
		path := filepath.Join(dir, fmt.Sprintf("img-%03d.png", i))
		writeTestImage(t, path, 64, 64)
		insertAsset(t, db, path, mediatypes.KindImage)
	}

	ch := subscribeTopic(t, bus, events.TopicThumbnailProgress)

	queued, err := c.GenerateThumbnails(context.Background())
	if err != nil {
		t.Fatalf("GenerateThumbnails() error = %v", err)
	}
	if queued != total {
		t.Fatalf("queued = %d, want %d", queued, total)
	}

	// Cancel once the run is demonstrably underway. Items already in
	// flight finish; the rest are skipped.
	select {
	case <-ch:
	case <-time.After(30 * time.Second):
		t.Fatal("no progress before cancel")
	}
	c.Cancel()

	progress := waitForDone(t, ch)
	final := progress[len(progress)-1]
	if final.Current >= total {
		t.Errorf("final Current = %d, want fewer than %d after cancel", final.Current, total)
	}
	if final.Total != total {
		t.Errorf("final Total = %d, want %d", final.Total, total)
	}

	// Skipped items stay queued for the next run. Items caught mid-write
	// by the cancellation count as handled but also stay queued, so the
	// backlog is at least the skipped count.
	missing, err := db.MissingThumbnails(context.Background())
	if err != nil {
		t.Fatalf("MissingThumbnails() error = %v", err)
	}
	if len(missing) == 0 {
		t.Error("MissingThumbnails() is empty, want skipped items still pending")
	}
	if len(missing) < total-final.Current {
		t.Errorf("MissingThumbnails() = %d items, want at least %d", len(missing), total-final.Current)
	}

	// The run slot frees up once the done event is out.
	deadline := time.Now().Add(5 * time.Second)
	for len(c.Active()) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Active() = %v, want none after cancelled run", c.Active())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCancelIdleCoordinator(t *testing.T) {
	t.Parallel()

	c, _, _ := newTestCoordinator(t)

	// Cancelling with nothing running must not panic or wedge.
	c.Cancel()
	if active := c.Active(); len(active) != 0 {
		t.Errorf("Active() = %v, want none", active)
	}
}

func TestResamplePeaks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		peaks []float64
		check func(t *testing.T, bars []float32)
	}{
		{
			name:  "empty stream yields silence",
			peaks: nil,
			check: func(t *testing.T, bars []float32) {
				for i, b := range bars {
					if b != 0 {
						t.Fatalf("bar %d = %v, want 0", i, b)
					}
				}
			},
		},
		{
			name: "span keeps its maximum",
			peaks: func() []float64 {
				p := make([]float64, 200)
				p[0] = 0.3
				p[1] = 0.9 // same span as p[0]
				p[199] = 0.4
				return p
			}(),
			check: func(t *testing.T, bars []float32) {
				if bars[0] != 0.9 {
					t.Errorf("bars[0] = %v, want 0.9", bars[0])
				}
				if bars[99] != 0.4 {
					t.Errorf("bars[99] = %v, want 0.4", bars[99])
				}
			},
		},
		{
			name:  "overdriven samples clamp to one",
			peaks: []float64{1.7},
			check: func(t *testing.T, bars []float32) {
				if bars[0] != 1 {
					t.Errorf("bars[0] = %v, want 1", bars[0])
				}
			},
		},
		{
			name:  "fewer peaks than bars fills every bar",
			peaks: []float64{0.5, 0.6},
			check: func(t *testing.T, bars []float32) {
				for i, b := range bars[:50] {
					if b != 0.5 {
						t.Fatalf("bar %d = %v, want 0.5", i, b)
					}
				}
				for i, b := range bars[50:] {
					if b != 0.6 {
						t.Fatalf("bar %d = %v, want 0.6", 50+i, b)
					}
				}
			},
		},
		{
			name:  "single peak stretches across all bars",
			peaks: []float64{0.7},
			check: func(t *testing.T, bars []float32) {
				for i, b := range bars {
					if b != 0.7 {
						t.Fatalf("bar %d = %v, want 0.7", i, b)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bars := resamplePeaks(tt.peaks, waveformBars)
			if len(bars) != waveformBars {
				t.Fatalf("len(bars) = %d, want %d", len(bars), waveformBars)
			}
			tt.check(t, bars)
		})
	}
}
