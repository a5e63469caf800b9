// Package artifact generates derived artifacts for cataloged assets:
// raster thumbnails for images and peak waveforms for audio. Generation
// runs on a bounded background pool so a large library never saturates
// the machine, and every item is isolated: one unreadable file is logged
// and skipped, never aborting the run.
package artifact

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"media-library/internal/database"
	"media-library/internal/events"
	"media-library/internal/logging"
	"media-library/internal/metrics"
	"media-library/internal/workers"
)

// Task names carried in progress events.
const (
	thumbnailTask = "thumbnails"
	waveformTask  = "waveforms"
)

// ErrGenerationInProgress is returned when a generation run of the same
// kind is already active.
var ErrGenerationInProgress = errors.New("generation already in progress")

// Coordinator schedules artifact generation runs. At most one run per
// artifact kind is active at a time; thumbnails and waveforms may run
// concurrently.
type Coordinator struct {
	db       *database.Database
	bus      *events.Bus
	thumbDir string

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewCoordinator returns a coordinator writing thumbnails under thumbDir.
func NewCoordinator(db *database.Database, bus *events.Bus, thumbDir string) *Coordinator {
	return &Coordinator{
		db:       db,
		bus:      bus,
		thumbDir: thumbDir,
		active:   make(map[string]context.CancelFunc),
	}
}

// GenerateThumbnails starts a background run over every image asset still
// missing a thumbnail and returns how many are queued. Zero pending items
// means no run starts.
func (c *Coordinator) GenerateThumbnails(ctx context.Context) (int, error) {
	items, err := c.db.MissingThumbnails(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	if err := os.MkdirAll(c.thumbDir, 0o755); err != nil {
		return 0, err
	}

	if err := c.begin(thumbnailTask, "thumbnail", events.TopicThumbnailProgress, items, c.generateThumbnail); err != nil {
		return 0, err
	}
	return len(items), nil
}

// GenerateWaveforms starts a background run over every audio asset still
// missing a waveform and returns how many are queued.
func (c *Coordinator) GenerateWaveforms(ctx context.Context) (int, error) {
	items, err := c.db.MissingWaveforms(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	if err := c.begin(waveformTask, "waveform", events.TopicWaveformProgress, items, c.generateWaveform); err != nil {
		return 0, err
	}
	return len(items), nil
}

// Cancel stops every active generation run. Items already being processed
// finish; queued items are skipped. The runs still emit their final done
// event with the counts reached.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for task, cancel := range c.active {
		logging.Info("Cancelling %s generation", task)
		cancel()
	}
}

// Active lists the generation runs currently in flight.
func (c *Coordinator) Active() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	tasks := make([]string, 0, len(c.active))
	for task := range c.active {
		tasks = append(tasks, task)
	}
	return tasks
}

func (c *Coordinator) begin(task, label, topic string, items []*database.PendingAsset, fn func(context.Context, *database.PendingAsset) error) error {
	c.mu.Lock()
	if _, running := c.active[task]; running {
		c.mu.Unlock()
		return ErrGenerationInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.active[task] = cancel
	c.mu.Unlock()

	metrics.GenerationRunning.Inc()
	logging.Info("Generating %d %s", len(items), task)

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.active, task)
			c.mu.Unlock()
			cancel()
			metrics.GenerationRunning.Dec()
		}()
		c.run(ctx, task, label, topic, items, fn)
	}()

	return nil
}

func (c *Coordinator) run(ctx context.Context, task, label, topic string, items []*database.PendingAsset, fn func(context.Context, *database.PendingAsset) error) {
	start := time.Now()
	total := len(items)

	var completed atomic.Int64

	g := new(errgroup.Group)
	g.SetLimit(workers.ForBackground())

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}

		item := item
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			itemStart := time.Now()
			err := fn(ctx, item)
			metrics.ArtifactDuration.WithLabelValues(label).Observe(time.Since(itemStart).Seconds())

			if err != nil {
				metrics.ArtifactsGenerated.WithLabelValues(label, "error").Inc()
				logging.Warn("%s generation failed for %s: %v", label, item.Path, err)
			} else {
				metrics.ArtifactsGenerated.WithLabelValues(label, "success").Inc()
			}

			c.bus.PublishArtifactProgress(topic, events.ArtifactProgress{
				Name:     task,
				Current:  int(completed.Add(1)),
				Total:    total,
				Filename: item.Filename,
				Status:   events.StatusProcessing,
			})
			return nil
		})
	}

	// Workers never return errors: items are isolated.
	_ = g.Wait()

	done := int(completed.Load())
	logging.Info("Finished %s generation: %d/%d in %v", task, done, total, time.Since(start).Round(time.Millisecond))

	c.bus.PublishArtifactProgress(topic, events.ArtifactProgress{
		Name:    task,
		Current: done,
		Total:   total,
		Status:  events.StatusDone,
	})
}
