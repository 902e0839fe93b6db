package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/person-registry/internal/pkg/logger"
)

// DefaultRelayChannel is the PostgreSQL NOTIFY channel shared by instances.
const DefaultRelayChannel = "registry_events"

type envelope struct {
	Origin string          `json:"origin"`
	Topic  string          `json:"topic"`
	Data   json.RawMessage `json:"data"`
}

// Relay forwards hub broadcasts between server instances over PostgreSQL
// LISTEN/NOTIFY. Each instance ignores notifications it sent itself.
type Relay struct {
	db      *sql.DB
	connStr string
	channel string
	origin  string
	hub     *Hub
}

// NewRelay creates a relay for hub. Call hub.SetRelay(relay) and Run to
// enable both directions.
func NewRelay(db *sql.DB, connStr, channel string, hub *Hub) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &Relay{
		db:      db,
		connStr: connStr,
		channel: channel,
		origin:  uuid.NewString(),
		hub:     hub,
	}
}

// Publish sends msg to the other instances.
func (r *Relay) Publish(msg Message) {
	payload, err := json.Marshal(envelope{Origin: r.origin, Topic: msg.Topic, Data: msg.Data})
	if err != nil {
		logger.Error("notify relay: marshal", "component", "notify", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", r.channel, string(payload)); err != nil {
		logger.Warn("notify relay: pg_notify failed", "component", "notify", "topic", msg.Topic, "error", err)
	}
}

// Run listens for notifications until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	reportProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("notify relay: listener error", "component", "notify", "error", err)
		}
	}
	listener := pq.NewListener(r.connStr, 10*time.Second, time.Minute, reportProblem)
	defer listener.Close()

	if err := listener.Listen(r.channel); err != nil {
		return err
	}
	logger.Info("notify relay: listening", "component", "notify", "channel", r.channel)

	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect
			if n != nil {
				r.handle(n.Extra)
			}
		case <-ping.C:
			go func() { _ = listener.Ping() }()
		}
	}
}

func (r *Relay) handle(payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logger.Warn("notify relay: bad payload", "component", "notify", "error", err)
		return
	}
	if env.Origin == r.origin || env.Topic == "" {
		return
	}
	r.hub.deliver(Message{Topic: env.Topic, Data: env.Data})
}
