// Package hub fans domain events out to live connections.
//
// A single goroutine owns the watcher registry; every other goroutine talks to it through
// channels. Each registered connection gets a bounded mailbox drained by its own delivery
// goroutine, so a slow connection only ever hurts itself.
package hub

import (
	"context"
	"errors"
	"time"

	"marketplace-offer-service/internal/domain/event"
	"marketplace-offer-service/internal/domain/shared"
	"marketplace-offer-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultInboxSize   = 1024
	defaultMailboxSize = 64
	defaultSendTimeout = 5 * time.Second
)

var ErrConnectionAlreadyRegistered = errors.New("connection already registered")

// Hub is the in-memory event broadcaster
type Hub struct {
	inbox    chan event.Envelope
	commands chan command
	done     chan struct{}

	mailboxSize int
	sendTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger

	// owned by the Run goroutine
	conns map[string]*watcher
	items map[uuid.UUID]map[string]*watcher
}

type Params struct {
	InboxSize   int
	MailboxSize int
	SendTimeout time.Duration
	Clock       func() time.Time
	Logger      zerolog.Logger
}

var _ outbound.Broadcaster = (*Hub)(nil)

// New creates a hub. Nothing is delivered until Run is called.
func New(params Params) *Hub {
	inboxSize := params.InboxSize
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	mailboxSize := params.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	sendTimeout := params.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Hub{
		inbox:       make(chan event.Envelope, inboxSize),
		commands:    make(chan command),
		done:        make(chan struct{}),
		mailboxSize: mailboxSize,
		sendTimeout: sendTimeout,
		now:         clock,
		logger:      params.Logger.With().Str("component", "event_hub").Logger(),
		conns:       make(map[string]*watcher),
		items:       make(map[uuid.UUID]map[string]*watcher),
	}
}

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdSubscribe
	cmdUnsubscribe
	cmdClose
	cmdEvict
)

type command struct {
	kind     commandKind
	conn     outbound.Conn
	connID   string
	itemID   uuid.UUID
	firehose bool
	watcher  *watcher
	reason   error
	reply    chan error
}

type watcher struct {
	conn     outbound.Conn
	mailbox  chan event.Envelope
	ctx      context.Context
	cancel   context.CancelFunc
	items    map[uuid.UUID]struct{}
	firehose bool
}

// Run processes commands and events until ctx is done. On exit every watcher is stopped
// and its connection closed.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info().Msg("Event hub started")
	defer func() {
		close(h.done)
		for _, w := range h.conns {
			h.drop(w)
			go w.conn.Close()
		}
		h.logger.Info().Msg("Event hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-h.commands:
			err := h.handle(cmd)
			if cmd.reply != nil {
				cmd.reply <- err
			}
		case env := <-h.inbox:
			h.dispatch(env)
		}
	}
}

// Done is closed once Run has returned
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Publish enqueues an event for delivery. It never blocks; when the inbox is full the
// event is dropped.
func (h *Hub) Publish(e event.Event) {
	env := event.Wrap(e, h.now())
	select {
	case h.inbox <- env:
	default:
		h.logger.Warn().
			Str("event_type", string(env.Type)).
			Str("item_id", env.ItemID().String()).
			Msg("Hub inbox full, dropping event")
	}
}

// Register makes conn known to the hub
func (h *Hub) Register(ctx context.Context, conn outbound.Conn, firehose bool) error {
	return h.do(ctx, command{kind: cmdRegister, conn: conn, connID: conn.ID(), firehose: firehose})
}

// Subscribe starts delivering events for itemID to connID
func (h *Hub) Subscribe(ctx context.Context, connID string, itemID uuid.UUID) error {
	return h.do(ctx, command{kind: cmdSubscribe, connID: connID, itemID: itemID})
}

// Unsubscribe stops delivering events for itemID to connID
func (h *Hub) Unsubscribe(ctx context.Context, connID string, itemID uuid.UUID) error {
	return h.do(ctx, command{kind: cmdUnsubscribe, connID: connID, itemID: itemID})
}

// OnConnectionClosed forgets connID and discards anything still queued for it.
// Unknown connections are ignored.
func (h *Hub) OnConnectionClosed(ctx context.Context, connID string) error {
	return h.do(ctx, command{kind: cmdClose, connID: connID})
}

func (h *Hub) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case h.commands <- cmd:
	case <-h.done:
		return shared.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-h.done:
		return shared.ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handle(cmd command) error {
	switch cmd.kind {
	case cmdRegister:
		if _, exists := h.conns[cmd.connID]; exists {
			return ErrConnectionAlreadyRegistered
		}
		wctx, cancel := context.WithCancel(context.Background())
		w := &watcher{
			conn:     cmd.conn,
			mailbox:  make(chan event.Envelope, h.mailboxSize),
			ctx:      wctx,
			cancel:   cancel,
			items:    make(map[uuid.UUID]struct{}),
			firehose: cmd.firehose,
		}
		h.conns[cmd.connID] = w
		go h.deliver(w)
		h.logger.Debug().Str("conn_id", cmd.connID).Bool("firehose", cmd.firehose).Msg("Connection registered")
		return nil

	case cmdSubscribe:
		w, ok := h.conns[cmd.connID]
		if !ok {
			return shared.ErrConnectionNotRegistered
		}
		w.items[cmd.itemID] = struct{}{}
		watchers, ok := h.items[cmd.itemID]
		if !ok {
			watchers = make(map[string]*watcher)
			h.items[cmd.itemID] = watchers
		}
		watchers[cmd.connID] = w
		h.logger.Debug().Str("conn_id", cmd.connID).Str("item_id", cmd.itemID.String()).Msg("Subscribed")
		return nil

	case cmdUnsubscribe:
		w, ok := h.conns[cmd.connID]
		if !ok {
			return shared.ErrConnectionNotRegistered
		}
		delete(w.items, cmd.itemID)
		h.removeFromItem(cmd.itemID, cmd.connID)
		h.logger.Debug().Str("conn_id", cmd.connID).Str("item_id", cmd.itemID.String()).Msg("Unsubscribed")
		return nil

	case cmdClose:
		if w, ok := h.conns[cmd.connID]; ok {
			h.drop(w)
			h.logger.Debug().Str("conn_id", cmd.connID).Msg("Connection closed")
		}
		return nil

	case cmdEvict:
		if w, ok := h.conns[cmd.connID]; ok && w == cmd.watcher {
			h.evict(w, cmd.reason)
		}
		return nil
	}
	return nil
}

func (h *Hub) dispatch(env event.Envelope) {
	if env.Global() {
		for _, w := range h.conns {
			h.enqueue(w, env)
		}
		return
	}

	itemID := env.ItemID()
	for _, w := range h.items[itemID] {
		h.enqueue(w, env)
	}
	for _, w := range h.conns {
		if !w.firehose {
			continue
		}
		if _, subscribed := w.items[itemID]; subscribed {
			continue
		}
		h.enqueue(w, env)
	}
}

// enqueue hands env to a watcher's mailbox. A full mailbox evicts a regular connection;
// firehose watchers keep their registration and lose only this envelope.
func (h *Hub) enqueue(w *watcher, env event.Envelope) {
	select {
	case w.mailbox <- env:
	default:
		if w.firehose {
			h.logger.Warn().
				Str("conn_id", w.conn.ID()).
				Str("event_type", string(env.Type)).
				Msg("Firehose mailbox full, dropping event")
			return
		}
		h.evict(w, errors.New("mailbox full"))
	}
}

// deliver drains one watcher's mailbox until the watcher is stopped
func (h *Hub) deliver(w *watcher) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case env := <-w.mailbox:
			if w.ctx.Err() != nil {
				return
			}
			sendCtx, cancel := context.WithTimeout(w.ctx, h.sendTimeout)
			err := w.conn.Send(sendCtx, env)
			cancel()
			if err == nil {
				continue
			}
			if w.ctx.Err() != nil {
				return
			}
			select {
			case h.commands <- command{kind: cmdEvict, connID: w.conn.ID(), watcher: w, reason: err}:
			case <-h.done:
			}
			return
		}
	}
}

// evict drops a misbehaving connection and closes it
func (h *Hub) evict(w *watcher, reason error) {
	h.logger.Warn().
		Str("conn_id", w.conn.ID()).
		Err(reason).
		Msg("Evicting connection")
	h.drop(w)
	go func() {
		if err := w.conn.Close(); err != nil {
			h.logger.Debug().Err(err).Str("conn_id", w.conn.ID()).Msg("Failed to close evicted connection")
		}
	}()
}

// drop removes every registry entry for w and stops its delivery goroutine
func (h *Hub) drop(w *watcher) {
	connID := w.conn.ID()
	for itemID := range w.items {
		h.removeFromItem(itemID, connID)
	}
	delete(h.conns, connID)
	w.cancel()
}

func (h *Hub) removeFromItem(itemID uuid.UUID, connID string) {
	watchers, ok := h.items[itemID]
	if !ok {
		return
	}
	delete(watchers, connID)
	if len(watchers) == 0 {
		delete(h.items, itemID)
	}
}
