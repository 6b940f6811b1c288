package bus

import (
	"context"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/config"
)

// Bus is the NATS JetStream implementation of Receiver and Publisher. One
// stream captures the whole lead subject space; a durable consumer gives the
// service its subscription with explicit acks and redelivery.
type Bus struct {
	conn     *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	cfg      config.BusConfig
}

// Connect dials the broker and ensures the stream and durable consumer
// exist.
func Connect(ctx context.Context, cfg config.BusConfig) (*Bus, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("lead-enrichment"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				zap.L().Warn("bus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			zap.L().Info("bus reconnected")
		}),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "bus: connect to %s", cfg.URL)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "bus: create JetStream context")
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Stream,
		Subjects: []string{cfg.Subject},
		MaxAge:   24 * time.Hour,
		// Limits retention so the peek endpoint can attach ephemeral
		// consumers alongside the durable one.
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, eris.Wrapf(err, "bus: create stream %s", cfg.Stream)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.Subscription,
		Durable:       cfg.Subscription,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.AckWait(),
		MaxDeliver:    cfg.MaxDeliver,
		MaxAckPending: 256,
	})
	if err != nil {
		conn.Close()
		return nil, eris.Wrapf(err, "bus: create consumer %s", cfg.Subscription)
	}

	return &Bus{conn: conn, js: js, consumer: consumer, cfg: cfg}, nil
}

// Publish sends data to a subject and waits for the stream's persistence ack.
func (b *Bus) Publish(ctx context.Context, subject string, data []byte) error {
	if _, err := b.js.Publish(ctx, subject, data); err != nil {
		return eris.Wrapf(err, "bus: publish to %s", subject)
	}
	return nil
}

// Receive starts push-style consumption from the durable consumer. Each
// delivery is wrapped and handed to the handler, which owns acknowledgment.
func (b *Bus) Receive(ctx context.Context, handler Handler) (func(), error) {
	cc, err := b.consumer.Consume(func(msg jetstream.Msg) {
		handler(ctx, &jsMessage{msg: msg})
	})
	if err != nil {
		return nil, eris.Wrap(err, "bus: start consuming")
	}
	return cc.Stop, nil
}

// Peek reads up to limit pending messages without consuming them, via an
// ephemeral ordered consumer that never acks.
func (b *Bus) Peek(ctx context.Context, limit int) ([][]byte, error) {
	oc, err := b.js.OrderedConsumer(ctx, b.cfg.Stream, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{b.cfg.Subject},
	})
	if err != nil {
		return nil, eris.Wrap(err, "bus: create peek consumer")
	}

	batch, err := oc.FetchNoWait(limit)
	if err != nil {
		return nil, eris.Wrap(err, "bus: fetch peek batch")
	}

	var out [][]byte
	for msg := range batch.Messages() {
		out = append(out, msg.Data())
	}
	if err := batch.Error(); err != nil {
		return nil, eris.Wrap(err, "bus: drain peek batch")
	}
	return out, nil
}

// Close drains the connection so buffered publishes flush before shutdown.
func (b *Bus) Close() error {
	if err := b.conn.Drain(); err != nil {
		return eris.Wrap(err, "bus: drain connection")
	}
	return nil
}

// jsMessage adapts a JetStream delivery to the Message interface.
type jsMessage struct {
	msg jetstream.Msg
}

func (m *jsMessage) ID() string {
	if meta, err := m.msg.Metadata(); err == nil {
		return meta.Stream + "-" + strconv.FormatUint(meta.Sequence.Stream, 10)
	}
	return ""
}

func (m *jsMessage) Subject() string { return m.msg.Subject() }
func (m *jsMessage) Data() []byte    { return m.msg.Data() }

func (m *jsMessage) Timestamp() time.Time {
	if meta, err := m.msg.Metadata(); err == nil {
		return meta.Timestamp
	}
	return time.Time{}
}

func (m *jsMessage) Ack() error { return m.msg.Ack() }

func (m *jsMessage) DeadLetter(reason string) error {
	return m.msg.TermWithReason(reason)
}

func (m *jsMessage) InProgress() error { return m.msg.InProgress() }
