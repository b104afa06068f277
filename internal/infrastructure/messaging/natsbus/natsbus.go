package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"licenselink/internal/bootstrap/logging"
	"licenselink/internal/errs"
	"licenselink/internal/ports"
)

// RecordInserted is the payload published after a record is stored.
type RecordInserted struct {
	RecordID    uint64 `json:"record_id"`
	PublishedAt string `json:"published_at"`
}

func Encode(event RecordInserted) ([]byte, error) {
	if event.RecordID == 0 {
		return nil, errors.New("record_id is required")
	}
	return json.Marshal(event)
}

func Decode(data []byte) (RecordInserted, error) {
	var event RecordInserted
	if err := json.Unmarshal(data, &event); err != nil {
		return RecordInserted{}, errs.Wrap(err, "decode record event")
	}
	if event.RecordID == 0 {
		return RecordInserted{}, errors.New("record event has no record_id")
	}
	return event, nil
}

// Connect dials url, retrying in the background when the server is not up
// yet.
func Connect(ctx context.Context, url string, name string) (*nats.Conn, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "natsbus"))
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn(logCtx, "nats disconnected", slog.Any("err", errs.Loggable(err)))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info(logCtx, "nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %s", url)
	}
	return conn, nil
}

// Publisher announces stored records on one subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	now     func() time.Time
}

var _ ports.RecordEventPublisher = (*Publisher)(nil)

func NewPublisher(conn *nats.Conn, subject string) *Publisher {
	return &Publisher{conn: conn, subject: subject, now: time.Now}
}

func (p *Publisher) PublishRecordInserted(ctx context.Context, recordID uint64) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	data, err := Encode(RecordInserted{
		RecordID:    recordID,
		PublishedAt: p.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return errs.Wrapf(err, "publish record %d", recordID)
	}
	return nil
}

// Handler links one record named by an event.
type Handler func(ctx context.Context, recordID uint64) error

// DefaultDrainTimeout bounds how long Run waits for in-flight events after
// its context is done.
const DefaultDrainTimeout = 30 * time.Second

const drainPollInterval = 50 * time.Millisecond

// Subscriber consumes record events as a member of a queue group, so that
// each event is handled by one worker.
type Subscriber struct {
	conn         *nats.Conn
	subject      string
	queue        string
	handle       Handler
	onEvent      func()
	drainTimeout time.Duration
}

func NewSubscriber(conn *nats.Conn, subject string, queue string, handle Handler) *Subscriber {
	return &Subscriber{
		conn:         conn,
		subject:      subject,
		queue:        queue,
		handle:       handle,
		drainTimeout: DefaultDrainTimeout,
	}
}

// OnEvent registers a callback invoked for every received message.
func (s *Subscriber) OnEvent(fn func()) {
	s.onEvent = fn
}

// Run subscribes and blocks until ctx is done, then drains the subscription
// and returns once every delivered event has been handled.
func (s *Subscriber) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "natsbus.subscriber"),
		slog.String("subject", s.subject),
		slog.String("queue", s.queue),
	)

	sub, err := s.conn.QueueSubscribe(s.subject, s.queue, func(msg *nats.Msg) {
		s.HandleMessage(logCtx, msg)
	})
	if err != nil {
		return errs.Wrap(err, "subscribe record events")
	}
	logging.Info(logCtx, "listening for record events")

	<-ctx.Done()
	logging.Info(logCtx, "draining record event subscription")
	if err := sub.Drain(); err != nil {
		return errs.Wrap(err, "drain subscription")
	}
	if err := waitClosed(sub.IsValid, s.drainTimeout, drainPollInterval); err != nil {
		return errs.Wrap(err, "drain subscription")
	}
	logging.Info(logCtx, "record event listener stopped")
	return nil
}

// waitClosed polls valid until it reports false or timeout passes.
func waitClosed(valid func() bool, timeout time.Duration, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for valid() {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("events still in flight after %s", timeout)
		}
		time.Sleep(interval)
	}
	return nil
}

// HandleMessage decodes msg and runs the handler. The handler context keeps
// the values of ctx but not its cancellation, so events delivered while the
// subscription drains are still linked. Failures are logged; the next full
// rebuild repairs whatever a dropped event left behind.
func (s *Subscriber) HandleMessage(ctx context.Context, msg *nats.Msg) {
	ctx = context.WithoutCancel(ctx)
	if s.onEvent != nil {
		s.onEvent()
	}

	event, err := Decode(msg.Data)
	if err != nil {
		logging.Warn(ctx, "drop malformed record event", slog.Any("err", errs.Loggable(err)))
		return
	}

	recordCtx := logging.WithAttrs(ctx, slog.Uint64("record_id", event.RecordID))
	if err := s.handle(recordCtx, event.RecordID); err != nil {
		logging.Error(recordCtx, "link record from event failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	logging.Debug(recordCtx, "record event handled")
}
