package ingestion

import (
	"OptionLedger/internal/observability"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/time/rate"
)

// NATSSubscriber reads the command stream and feeds raw messages to the
// ingestion goroutine via the eventChan.
// There is exactly one consumer: commands must reach the sequencer in stream
// order, so the consumer is never split by subject.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	limiter   *rate.Limiter
	metrics   *observability.Metrics
	consumer  jetstream.ConsumeContext
}

// RawEvent is the untyped message from NATS, ready for the shell to parse
// into an event.Command before sending to the core.
type RawEvent struct {
	Subject string
	Data    []byte
	// Stream timestamp of the message, identical on every redelivery
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// StreamConfig names the command stream and its single durable consumer.
type StreamConfig struct {
	StreamName    string
	SubjectPrefix string
	ConsumerName  string
	// MaxPerSecond throttles delivery into the core; 0 disables it.
	MaxPerSecond float64
}

// Subject returns the wildcard subject of the stream.
func (c StreamConfig) Subject() string {
	return c.SubjectPrefix + ".>"
}

// DefaultStreamConfig returns the standard command stream layout.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		StreamName:    "OPTIONLEDGER_COMMANDS",
		SubjectPrefix: "optionledger.cmd",
		ConsumerName:  "ledger-core",
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, metrics *observability.Metrics) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		metrics:   metrics,
	}
}

// Subscribe replays the command stream from the first message.
// Ledger state lives in memory, so the durable consumer is recreated on every
// start with DeliverAll; already-decided batches are dropped by the
// sequencer's dedup and source sequence checks.
// The consumer uses explicit ACK, max_deliver=5, ack_wait=30s and a single
// in-flight message so redeliveries cannot overtake later commands.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, cfg StreamConfig) error {
	err := ns.js.DeleteConsumer(ctx, cfg.StreamName, cfg.ConsumerName)
	if err != nil && !errors.Is(err, jetstream.ErrConsumerNotFound) {
		return fmt.Errorf("reset consumer %s: %w", cfg.ConsumerName, err)
	}

	consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
		Durable:       cfg.ConsumerName,
		FilterSubject: cfg.Subject(),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
	}

	if cfg.MaxPerSecond > 0 {
		ns.limiter = rate.NewLimiter(rate.Limit(cfg.MaxPerSecond), 1)
	}

	consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
		if err := ns.throttle(ctx); err != nil {
			msg.Nak()
			return
		}

		ts := time.Now()
		if meta, err := msg.Metadata(); err == nil {
			ts = meta.Timestamp
		}
		raw := RawEvent{
			Subject:   msg.Subject(),
			Data:      msg.Data(),
			Timestamp: ts,
			AckFunc:   func() { msg.Ack() },
			NakFunc:   func() { msg.Nak() },
		}

		select {
		case ns.eventChan <- raw:
			// Successfully queued for processing
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
	}

	ns.consumer = consumerContext
	log.Printf("INFO: subscribed to %s (consumer=%s)", cfg.Subject(), cfg.ConsumerName)
	return nil
}

func (ns *NATSSubscriber) throttle(ctx context.Context) error {
	if ns.limiter == nil {
		return nil
	}
	start := time.Now()
	err := ns.limiter.Wait(ctx)
	if ns.metrics != nil {
		ns.metrics.IngestThrottleWait.Observe(time.Since(start).Seconds())
	}
	return err
}

// EnsureStreams creates the command stream if it doesn't exist.
// The stream is the ledger's source of truth, so messages never age out.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, cfg StreamConfig) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       cfg.StreamName,
		Subjects:   []string{cfg.Subject()},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     0,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", cfg.StreamName, err)
	}
	log.Printf("INFO: ensured stream %s", cfg.StreamName)
	return nil
}

// Stop gracefully stops the consumer.
func (ns *NATSSubscriber) Stop() {
	if ns.consumer != nil {
		ns.consumer.Stop()
	}
	log.Println("INFO: NATS subscriber stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.Name("optionledger"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
