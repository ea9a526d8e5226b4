package ingestion

import (
	"OptionLedger/internal/event"
	"OptionLedger/internal/observability"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/nats-io/nats.go/jetstream"
)

// OutboundPublisher publishes batch outcomes to NATS for downstream consumers.
// Subjects follow the pattern: <prefix>.<status>.<source>
type OutboundPublisher struct {
	js        jetstream.JetStream
	prefix    string
	inputChan <-chan event.Outcome
	metrics   *observability.Metrics
	fanout    []func(OutcomeMessage)
	pipeline  failsafe.Executor[*jetstream.PubAck]
}

// OutcomeMessage is the JSON shape of an outcome on the wire.
type OutcomeMessage struct {
	Sequence       int64     `json:"sequence"`
	BatchID        string    `json:"batch_id"`
	Source         string    `json:"source"`
	SourceSequence int64     `json:"source_sequence"`
	Sender         string    `json:"sender"`
	ActionCount    int       `json:"action_count"`
	Status         string    `json:"status"`
	ReasonKind     string    `json:"reason_kind,omitempty"`
	ReasonCode     string    `json:"reason_code,omitempty"`
	Message        string    `json:"message,omitempty"`
	StateHash      string    `json:"state_hash"`
	PrevHash       string    `json:"prev_hash"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewOutcomeMessage(o event.Outcome) OutcomeMessage {
	return OutcomeMessage{
		Sequence:       o.Sequence,
		BatchID:        o.BatchID.String(),
		Source:         o.Source,
		SourceSequence: o.SourceSequence,
		Sender:         o.Sender.Hex(),
		ActionCount:    o.ActionCount,
		Status:         o.Status.String(),
		ReasonKind:     o.ReasonKind,
		ReasonCode:     o.ReasonCode,
		Message:        o.Message,
		StateHash:      hex.EncodeToString(o.StateHash[:]),
		PrevHash:       hex.EncodeToString(o.PrevHash[:]),
		Timestamp:      o.Timestamp.UTC(),
	}
}

func NewOutboundPublisher(js jetstream.JetStream, prefix string, inputChan <-chan event.Outcome, metrics *observability.Metrics) *OutboundPublisher {
	retry := retrypolicy.NewBuilder[*jetstream.PubAck]().
		WithBackoff(50*time.Millisecond, time.Second).
		WithMaxRetries(3).
		Build()

	// A NATS outage trips the breaker so the outcome stream keeps
	// reaching local listeners without waiting out every retry.
	breaker := circuitbreaker.NewBuilder[*jetstream.PubAck]().
		WithFailureThresholdRatio(5, 10).
		WithDelay(5 * time.Second).
		Build()

	return &OutboundPublisher{
		js:        js,
		prefix:    prefix,
		inputChan: inputChan,
		metrics:   metrics,
		pipeline:  failsafe.With[*jetstream.PubAck](retry, breaker),
	}
}

// OnPublish registers a local listener that sees every outcome after the
// NATS publish attempt. Must be called before Run.
func (op *OutboundPublisher) OnPublish(fn func(OutcomeMessage)) {
	op.fanout = append(op.fanout, fn)
}

// Run starts the outbound publisher loop.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			msg := NewOutcomeMessage(out)
			if err := op.publish(ctx, msg); err != nil {
				// Non-fatal: the audit log still has the outcome.
				if errors.Is(err, circuitbreaker.ErrOpen) {
					log.Printf("WARN: outbound publish skipped seq=%d: circuit open", out.Sequence)
				} else {
					log.Printf("WARN: outbound publish failed seq=%d: %v", out.Sequence, err)
				}
				if op.metrics != nil {
					op.metrics.OutcomePublishErrors.Inc()
				}
			} else if op.metrics != nil {
				op.metrics.OutcomesPublished.WithLabelValues(msg.Status).Inc()
			}
			for _, fn := range op.fanout {
				fn(msg)
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, msg OutcomeMessage) error {
	if op.js == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	subject := fmt.Sprintf("%s.%s.%s", op.prefix, msg.Status, msg.Source)
	// Replays after restart republish the same outcomes; the stream's
	// duplicate window drops them by batch id.
	_, err = op.pipeline.WithContext(ctx).Get(func() (*jetstream.PubAck, error) {
		return op.js.Publish(ctx, subject, data, jetstream.WithMsgID(msg.BatchID))
	})
	return err
}

// EnsureOutboundStream creates the outbound outcomes stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream, name, prefix string) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       name,
		Subjects:   []string{prefix + ".>"},
		Storage:    jetstream.FileStorage,
		Retention:  jetstream.LimitsPolicy,
		MaxAge:     72 * time.Hour,
		Duplicates: 10 * time.Minute,
		Replicas:   1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Printf("INFO: ensured outbound stream %s", name)
	return nil
}
