package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
)

const (
	reconnectBackoff = 2 * time.Second
	maxReconnect     = 30 * time.Second
)

// Listener holds a dedicated pgx connection (not from the pool) listening on
// the table_changes channel and republishes every watched event in-process.
type Listener struct {
	dbURL  string
	bus    *eventbus.Bus[Event]
	logger *slog.Logger

	// OnReconnect, when set, runs after every successful re-LISTEN that
	// followed a dropped connection. Events may have been missed meanwhile.
	OnReconnect func()
}

// NewListener creates a listener for dbURL. Call Start to begin consuming.
func NewListener(dbURL string, logger *slog.Logger) *Listener {
	return &Listener{
		dbURL:  dbURL,
		bus:    eventbus.New[Event](),
		logger: logger,
	}
}

// Subscribe implements Source.
func (l *Listener) Subscribe(buffer int) (<-chan Event, func()) {
	return l.bus.Subscribe(buffer)
}

// Start listens until ctx is cancelled, reconnecting with exponential backoff
// on connection loss. Intended to be called with `go`.
func (l *Listener) Start(ctx context.Context) {
	backoff := reconnectBackoff
	connected := false

	for {
		err := l.listenLoop(ctx, func() {
			if connected && l.OnReconnect != nil {
				l.OnReconnect()
			}
			connected = true
			backoff = reconnectBackoff
		})
		if ctx.Err() != nil {
			l.logger.Info("Change feed listener stopped (context cancelled)")
			return
		}

		l.logger.Error("Change feed listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func (l *Listener) listenLoop(ctx context.Context, onListening func()) error {
	conn, err := pgx.Connect(ctx, l.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	l.logger.Info("Change feed listener connected", "channel", Channel)
	onListening()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		var event Event
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			l.logger.Warn("Failed to parse change event",
				"payload", notification.Payload, "error", err)
			continue
		}
		if !Watched(event.Table) {
			continue
		}
		l.logger.Debug("Change event received", "table", event.Table, "op", event.Op)
		l.bus.Publish(event)
	}
}
