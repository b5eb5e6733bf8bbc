package command

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
)

// Transport moves encoded messages between consoles on a named channel.
type Transport interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Listen delivers payloads published on channel until ctx is cancelled,
	// then closes the returned channel.
	Listen(ctx context.Context, channel string) (<-chan []byte, error)
}

// StateStore persists the latest snapshot per tournament.
type StateStore interface {
	LoadGameState(ctx context.Context, tournamentID string) ([]byte, error)
	SaveGameState(ctx context.Context, tournamentID string, doc []byte) error
}

// --------------------------------------------------------------------------
// In-process transport
// --------------------------------------------------------------------------

// Hub is an in-process Transport. Every console attached to the same Hub
// sees every message published on a channel it listens to.
type Hub struct {
	mu    sync.Mutex
	chans map[string]*eventbus.Bus[[]byte]
}

func NewHub() *Hub {
	return &Hub{chans: map[string]*eventbus.Bus[[]byte]{}}
}

func (h *Hub) bus(channel string) *eventbus.Bus[[]byte] {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.chans[channel]
	if !ok {
		b = eventbus.New[[]byte]()
		h.chans[channel] = b
	}
	return b
}

func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	h.bus(channel).Publish(payload)
	return nil
}

func (h *Hub) Listen(ctx context.Context, channel string) (<-chan []byte, error) {
	in, unsubscribe := h.bus(channel).Subscribe(64)
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// --------------------------------------------------------------------------
// Postgres transport
// --------------------------------------------------------------------------

const (
	reconnectBackoff = 2 * time.Second
	maxReconnect     = 30 * time.Second
)

// Notifier publishes a NOTIFY through a pooled connection.
type Notifier interface {
	Notify(ctx context.Context, channel string, payload []byte) error
}

// PGTransport publishes with pg_notify and listens on a dedicated
// connection per channel, reconnecting with backoff.
type PGTransport struct {
	notifier Notifier
	dbURL    string
	logger   *slog.Logger
}

func NewPGTransport(notifier Notifier, dbURL string, logger *slog.Logger) *PGTransport {
	return &PGTransport{notifier: notifier, dbURL: dbURL, logger: logger}
}

func (t *PGTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	return t.notifier.Notify(ctx, channel, payload)
}

func (t *PGTransport) Listen(ctx context.Context, channel string) (<-chan []byte, error) {
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		backoff := reconnectBackoff
		for {
			err := t.listenOnce(ctx, channel, out, func() { backoff = reconnectBackoff })
			if ctx.Err() != nil {
				t.logger.Info("Command listener stopped (context cancelled)", "channel", channel)
				return
			}
			t.logger.Error("Command listener disconnected, reconnecting...",
				"channel", channel, "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
				backoff = min(backoff*2, maxReconnect)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (t *PGTransport) listenOnce(ctx context.Context, channel string, out chan<- []byte, onListening func()) error {
	conn, err := pgx.Connect(ctx, t.dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	t.logger.Info("Command listener connected", "channel", channel)
	onListening()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		select {
		case out <- []byte(n.Payload):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
