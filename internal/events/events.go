package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"media-library/internal/logging"
	"media-library/internal/mediatypes"
)

// Topic names match the payloads the presentation layer listens for.
const (
	TopicScanProgress      = "scan-progress"
	TopicThumbnailProgress = "thumbnail-progress"
	TopicWaveformProgress  = "waveform-progress"
	TopicFileAdded         = "file-added"
	TopicFileRemoved       = "file-removed"
	TopicFileRenamed       = "file-renamed"
)

// Progress status values shared by the scanner and the artifact generators.
const (
	StatusProcessing = "processing"
	StatusFinished   = "finished"
	StatusDone       = "done"
)

// ScanProgress is emitted at every scan batch boundary and once at completion.
type ScanProgress struct {
	Count    int    `json:"count"`
	LastFile string `json:"last_file"`
	Status   string `json:"status"`
}

// ArtifactProgress is emitted per generated artifact and once when a
// generation run ends.
type ArtifactProgress struct {
	Name     string `json:"name"`
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// FileAdded notifies the presentation layer of a newly observed media file.
type FileAdded struct {
	Filename string          `json:"filename"`
	Kind     mediatypes.Kind `json:"kind"`
}

// FileRemoved notifies the presentation layer of a removed media file.
type FileRemoved struct {
	Path string `json:"path"`
}

// FileRenamed notifies the presentation layer of a paired rename.
type FileRenamed struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

// Envelope is a published event as seen by a subscriber: the topic it was
// published on plus its raw JSON payload.
type Envelope struct {
	Topic   string
	Payload []byte
}

// envelopeBuffer sizes the channels handed to subscribers.
const envelopeBuffer = 256

// allTopics is what SubscribeAll fans in.
var allTopics = []string{
	TopicScanProgress,
	TopicThumbnailProgress,
	TopicWaveformProgress,
	TopicFileAdded,
	TopicFileRemoved,
	TopicFileRenamed,
}

// Bus is the in-process progress/notification channel between the pipeline
// components and the presentation layer. Producers publish typed payloads;
// the presentation layer subscribes to the JSON envelopes.
//
// Delivery is serialized per topic: a publish does not return until every
// subscriber has taken the message off its queue, so a burst of events
// arrives in publish order. Envelope channels are buffered so producers do
// not stall behind a consumer under normal operation; a publish failure is
// logged and never propagated back to the producer.
type Bus struct {
	pub *gochannel.GoChannel
}

// NewBus creates the event bus.
func NewBus() *Bus {
	return &Bus{
		pub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			BlockPublishUntilSubscriberAck: true,
		}, watermill.NopLogger{}),
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pub.Close()
}

func (b *Bus) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logging.Error("events: marshal %s payload: %v", topic, err)
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pub.Publish(topic, msg); err != nil {
		logging.Warn("events: publish %s: %v", topic, err)
	}
}

// PublishScanProgress emits a scan-progress event.
func (b *Bus) PublishScanProgress(p ScanProgress) {
	b.publish(TopicScanProgress, p)
}

// PublishArtifactProgress emits a thumbnail-progress or waveform-progress
// event on the given topic.
func (b *Bus) PublishArtifactProgress(topic string, p ArtifactProgress) {
	b.publish(topic, p)
}

// PublishFileAdded emits a file-added event.
func (b *Bus) PublishFileAdded(filename string, kind mediatypes.Kind) {
	b.publish(TopicFileAdded, FileAdded{Filename: filename, Kind: kind})
}

// PublishFileRemoved emits a file-removed event.
func (b *Bus) PublishFileRemoved(path string) {
	b.publish(TopicFileRemoved, FileRemoved{Path: path})
}

// PublishFileRenamed emits a file-renamed event.
func (b *Bus) PublishFileRenamed(oldPath, newPath string) {
	b.publish(TopicFileRenamed, FileRenamed{OldPath: oldPath, NewPath: newPath})
}

// Subscribe returns a channel of envelopes for one topic. The subscription
// ends when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan Envelope, error) {
	msgs, err := b.pub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Envelope, envelopeBuffer)
	go func() {
		defer close(out)
		forward(ctx, topic, msgs, out)
	}()
	return out, nil
}

// SubscribeAll fans every topic into a single envelope channel, preserving
// per-topic ordering. The channel closes when ctx is cancelled.
func (b *Bus) SubscribeAll(ctx context.Context) (<-chan Envelope, error) {
	out := make(chan Envelope, envelopeBuffer)

	var wg sync.WaitGroup
	for _, topic := range allTopics {
		msgs, err := b.pub.Subscribe(ctx, topic)
		if err != nil {
			return nil, err
		}

		wg.Add(1)
		go func(topic string, msgs <-chan *message.Message) {
			defer wg.Done()
			forward(ctx, topic, msgs, out)
		}(topic, msgs)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// forward acks each message as soon as it is taken off the subscription so
// the publisher can move on to the next one; the buffered envelope channel
// then absorbs consumer latency.
func forward(ctx context.Context, topic string, msgs <-chan *message.Message, out chan<- Envelope) {
	for msg := range msgs {
		msg.Ack()
		select {
		case out <- Envelope{Topic: topic, Payload: msg.Payload}:
		case <-ctx.Done():
			return
		}
	}
}
