package ingestion

import (
	"OptionLedger/internal/event"
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Injector writes commands onto the command stream.
// Manual and admin injection goes through the stream like everything else so
// that a replay reproduces it; nothing talks to the sequencer directly.
type Injector struct {
	js     jetstream.JetStream
	prefix string
}

func NewInjector(js jetstream.JetStream, prefix string) *Injector {
	return &Injector{js: js, prefix: prefix}
}

// Inject publishes one command. Batches carry their batch id as the NATS
// message id so a retried injection is dropped by the stream.
func (in *Injector) Inject(ctx context.Context, cmd event.Command) (uint64, error) {
	subject, data, err := EncodeCommand(in.prefix, cmd)
	if err != nil {
		return 0, err
	}
	var opts []jetstream.PublishOpt
	if cmd.Batch != nil {
		opts = append(opts, jetstream.WithMsgID(cmd.Batch.BatchID.String()))
	}
	ack, err := in.js.Publish(ctx, subject, data, opts...)
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", subject, err)
	}
	return ack.Sequence, nil
}
