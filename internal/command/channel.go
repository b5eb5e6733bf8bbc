package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/eventbus"
	"github.com/ztoevent-ui/event-os-cloud-sub000/internal/model"
)

// ErrNotMaster is returned when a non-master console tries to send a command.
var ErrNotMaster = errors.New("only the master console sends commands")

const roleMaster = "master"

// Options configures a Channel.
type Options struct {
	TournamentID string
	Role         string // master, referee, display
	Transport    Transport
	States       StateStore // optional
	RatePerSec   int        // send throttle; 0 disables it
	Logger       *slog.Logger
}

// Channel is one console's attachment to a tournament's command channel.
type Channel struct {
	tournamentID string
	name         string
	role         string
	sender       string
	transport    Transport
	states       StateStore
	limiter      *rate.Limiter
	logger       *slog.Logger

	mu       sync.RWMutex
	state    GameState
	hasState bool

	inbox  *eventbus.Bus[Message]
	cancel context.CancelFunc
	done   chan struct{}
}

// Open attaches to the tournament's channel, hydrates the last persisted
// snapshot and starts receiving. Close detaches.
func Open(ctx context.Context, opts Options) (*Channel, error) {
	if opts.TournamentID == "" {
		return nil, model.ErrNoSelection
	}
	c := &Channel{
		tournamentID: opts.TournamentID,
		name:         ChannelName(opts.TournamentID),
		role:         opts.Role,
		sender:       opts.Role + "-" + uuid.NewString()[:8],
		transport:    opts.Transport,
		states:       opts.States,
		logger:       opts.Logger.With("channel", ChannelName(opts.TournamentID)),
		inbox:        eventbus.New[Message](),
		done:         make(chan struct{}),
	}
	if opts.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec)
	}
	c.hydrate(ctx)

	listenCtx, cancel := context.WithCancel(context.Background())
	in, err := c.transport.Listen(listenCtx, c.name)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("listen %s: %w", c.name, err)
	}
	c.cancel = cancel
	go c.receive(in)
	return c, nil
}

// hydrate loads the persisted snapshot, if any. Failure is not fatal: the
// console simply starts without a snapshot.
func (c *Channel) hydrate(ctx context.Context) {
	if c.states == nil {
		return
	}
	doc, err := c.states.LoadGameState(ctx, c.tournamentID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			c.logger.Warn("Failed to load game state", "error", err)
		}
		return
	}
	var gs GameState
	if err := json.Unmarshal(doc, &gs); err != nil {
		c.logger.Warn("Ignoring malformed game state", "error", err)
		return
	}
	c.mu.Lock()
	c.state, c.hasState = gs, true
	c.mu.Unlock()
}

// TournamentID returns the tournament the channel is scoped to.
func (c *Channel) TournamentID() string { return c.tournamentID }

// Sender identifies this console on the channel.
func (c *Channel) Sender() string { return c.sender }

// State returns the local copy of the shared snapshot.
func (c *Channel) State() (GameState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state, c.hasState
}

// Subscribe delivers messages addressed to this console's role, plus every
// snapshot, including the ones this console publishes itself.
func (c *Channel) Subscribe(buffer int) (<-chan Message, func()) {
	return c.inbox.Subscribe(buffer)
}

// Close stops receiving and waits for the receive loop to exit.
func (c *Channel) Close() {
	c.cancel()
	<-c.done
}

// Send publishes a command. Only the master console may send. LOCK_UI,
// AD_CONTROL and SWITCH_VIEW also update the shared snapshot in lock-step.
func (c *Channel) Send(ctx context.Context, t Type, payload any, target Target) (Message, error) {
	if c.role != roleMaster {
		return Message{}, ErrNotMaster
	}
	if t == StateSnapshot {
		return Message{}, fmt.Errorf("%w: publish snapshots with PublishState", ErrInvalidCommand)
	}
	m, err := NewMessage(t, payload, target)
	if err != nil {
		return Message{}, err
	}
	if err := c.publish(ctx, m); err != nil {
		return Message{}, err
	}

	next, changed := c.lockStep(m)
	if changed {
		if err := c.PublishState(ctx, next); err != nil {
			return m, fmt.Errorf("command sent, snapshot not updated: %w", err)
		}
	}
	return m, nil
}

// lockStep derives the snapshot that follows a master command.
func (c *Channel) lockStep(m Message) (GameState, bool) {
	gs, _ := c.State()
	switch m.Type {
	case LockUI:
		p, _ := Decode[LockPayload](m)
		gs.Lock, gs.LockMsg = p.Locked, p.Msg
	case AdControl:
		p, _ := Decode[AdControlPayload](m)
		gs.AdMuted = p.Action == AdMute
	case SwitchView:
		p, _ := Decode[SwitchViewPayload](m)
		gs.ViewMode = p.Mode
	default:
		return gs, false
	}
	return gs, true
}

// PublishState replaces the shared snapshot for everyone. Any role may
// publish; the last write wins.
func (c *Channel) PublishState(ctx context.Context, gs GameState) error {
	gs.UpdatedBy = c.sender
	gs.UpdatedAt = time.Now().UTC()

	m, err := NewMessage(StateSnapshot, gs, TargetAll)
	if err != nil {
		return err
	}
	if c.states != nil {
		if err := c.states.SaveGameState(ctx, c.tournamentID, m.Payload); err != nil {
			return fmt.Errorf("save game state: %w", err)
		}
	}
	if err := c.publish(ctx, m); err != nil {
		return err
	}
	c.setState(gs)
	// Local subscribers see their own snapshot too.
	m.Sender = c.sender
	c.inbox.Publish(m)
	return nil
}

func (c *Channel) publish(ctx context.Context, m Message) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send throttled: %w", err)
		}
	}
	m.Sender = c.sender
	m.SentAt = time.Now().UTC()
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type, err)
	}
	if err := c.transport.Publish(ctx, c.name, raw); err != nil {
		c.logger.Warn("Command publish failed", "type", m.Type, "error", err)
		return fmt.Errorf("publish %s: %w", m.Type, err)
	}
	c.logger.Debug("Command sent", "type", m.Type, "target", m.TargetRole)
	return nil
}

func (c *Channel) setState(gs GameState) {
	c.mu.Lock()
	c.state, c.hasState = gs, true
	c.mu.Unlock()
}

func (c *Channel) receive(in <-chan []byte) {
	defer close(c.done)
	for raw := range in {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			c.logger.Warn("Dropping undecodable message", "error", err)
			continue
		}
		if m.Sender == c.sender {
			continue
		}
		if err := m.Validate(); err != nil {
			c.logger.Warn("Dropping invalid message", "type", m.Type, "sender", m.Sender, "error", err)
			continue
		}
		if m.Type == StateSnapshot {
			gs, _ := Decode[GameState](m)
			c.setState(gs)
			c.logger.Debug("Snapshot replaced", "sender", m.Sender)
			c.inbox.Publish(m)
			continue
		}
		if !m.For(c.role) {
			continue
		}
		c.logger.Debug("Command received", "type", m.Type, "sender", m.Sender)
		c.inbox.Publish(m)
	}
}
