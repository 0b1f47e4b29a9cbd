package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/eudrsat/internal/core/domain"
)

const (
	// CycleStream holds every fetch-cycle state transition.
	CycleStream = "IMAGERY_CYCLES"
	// CycleSubjectPrefix is followed by <session>.<state>.
	CycleSubjectPrefix = "imagery.cycle."
)

// CycleSubject returns the subject an event for session/state is published on.
func CycleSubject(sessionID string, state domain.FetchState) string {
	return CycleSubjectPrefix + subjectToken(sessionID) + "." + string(state)
}

// SessionFilter matches every event of one session, or of all sessions when
// sessionID is empty.
func SessionFilter(sessionID string) string {
	if sessionID == "" {
		return CycleSubjectPrefix + ">"
	}
	return CycleSubjectPrefix + subjectToken(sessionID) + ".*"
}

// subjectToken makes an arbitrary id safe as a single subject token.
func subjectToken(s string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(s)
}

func connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("eudrsat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the cycle stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	cfg := &nats.StreamConfig{
		Name:      CycleStream,
		Subjects:  []string{CycleSubjectPrefix + ">"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}
	if _, err := js.AddStream(cfg); err != nil {
		// Stream may already exist; update it instead.
		if _, err := js.UpdateStream(cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishCycleEvent publishes one state transition.
func (p *Publisher) PublishCycleEvent(ctx context.Context, event *domain.CycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(CycleSubject(event.SessionID, event.State), data, nats.Context(ctx))
	return err
}

// Connected reports whether the connection is up.
func (p *Publisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}
