// Package link tracks connected participants and delivers round instructions
// to each of them without letting one slow participant hold up the rest.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/absmach/flcoord/pkg/fl"
)

const (
	defOutboxSize = 8
	defLiveness   = 30 * time.Second
	sendTimeout   = 10 * time.Second
)

var ErrHubClosed = errors.New("participant hub closed")

// Transport pushes instructions to a single participant.
type Transport interface {
	Send(ctx context.Context, participantID string, ins fl.RoundInstructions) error
}

// TransportFunc adapts a plain function to Transport.
type TransportFunc func(ctx context.Context, participantID string, ins fl.RoundInstructions) error

func (f TransportFunc) Send(ctx context.Context, participantID string, ins fl.RoundInstructions) error {
	return f(ctx, participantID, ins)
}

type Config struct {
	OutboxSize int
	Liveness   time.Duration
	// OnExpire is called from the sweeper for every link that missed its liveness window.
	OnExpire func(projectID, participantID string)
}

type link struct {
	id        string
	projectID string
	lastSeen  time.Time
	outbox    chan fl.RoundInstructions
	cancel    context.CancelFunc
}

// Hub owns one delivery goroutine per connected participant.
type Hub struct {
	mu        sync.Mutex
	links     map[string]*link
	transport Transport
	cfg       Config
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
	now       func() time.Time
}

// NewHub creates a hub. A nil transport leaves delivery to the pull protocol.
func NewHub(cfg Config, transport Transport, logger *slog.Logger) *Hub {
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defOutboxSize
	}
	if cfg.Liveness <= 0 {
		cfg.Liveness = defLiveness
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		links:     make(map[string]*link),
		transport: transport,
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// Connect attaches a participant to a project, moving it if it was attached elsewhere.
func (h *Hub) Connect(projectID, participantID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	if l, ok := h.links[participantID]; ok {
		l.projectID = projectID
		l.lastSeen = h.now()

		return nil
	}

	ctx, cancel := context.WithCancel(h.ctx)
	l := &link{
		id:        participantID,
		projectID: projectID,
		lastSeen:  h.now(),
		outbox:    make(chan fl.RoundInstructions, h.cfg.OutboxSize),
		cancel:    cancel,
	}
	h.links[participantID] = l

	h.wg.Add(1)
	go h.deliver(ctx, l)

	return nil
}

// Touch records activity from a participant. It reports false for unknown participants.
func (h *Hub) Touch(participantID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.links[participantID]
	if ok {
		l.lastSeen = h.now()
	}

	return ok
}

func (h *Hub) Disconnect(participantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.remove(participantID)
}

func (h *Hub) remove(participantID string) {
	if l, ok := h.links[participantID]; ok {
		l.cancel()
		delete(h.links, participantID)
	}
}

// Active lists the live participants of a project in a stable order.
func (h *Hub) Active(projectID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.cfg.Liveness)
	ids := []string{}
	for id, l := range h.links {
		if l.projectID == projectID && l.lastSeen.After(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids
}

// Broadcast queues ins for every listed participant and returns how many were queued.
// It never blocks: a full outbox sheds its oldest entry, which is always stale.
func (h *Hub) Broadcast(participantIDs []string, ins fl.RoundInstructions) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	queued := 0
	for _, id := range participantIDs {
		l, ok := h.links[id]
		if !ok {
			h.logger.Debug("skipping instructions",
				slog.String("participant_id", id),
				slog.Any("error", fl.ErrParticipantUnreachable),
			)

			continue
		}
		if !enqueue(l.outbox, ins) {
			continue
		}
		queued++
	}

	return queued
}

func enqueue(outbox chan fl.RoundInstructions, ins fl.RoundInstructions) bool {
	select {
	case outbox <- ins:
		return true
	default:
	}
	select {
	case <-outbox:
	default:
	}
	select {
	case outbox <- ins:
		return true
	default:
		return false
	}
}

func (h *Hub) deliver(ctx context.Context, l *link) {
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case ins := <-l.outbox:
			if h.transport == nil {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
			err := h.transport.Send(sendCtx, l.id, ins)
			cancel()
			if err != nil {
				h.logger.Warn("failed to deliver round instructions",
					slog.String("participant_id", l.id),
					slog.String("session_id", ins.SessionID),
					slog.Uint64("round", ins.Round),
					slog.Any("error", fmt.Errorf("%w: %w", fl.ErrParticipantUnreachable, err)),
				)
			}
		}
	}
}

// Run sweeps links that missed their liveness window until ctx ends.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.Liveness / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep drops expired links and returns their participant IDs.
func (h *Hub) Sweep() []string {
	h.mu.Lock()
	cutoff := h.now().Add(-h.cfg.Liveness)
	type expired struct{ project, id string }
	var gone []expired
	for id, l := range h.links {
		if !l.lastSeen.After(cutoff) {
			gone = append(gone, expired{project: l.projectID, id: id})
			h.remove(id)
		}
	}
	h.mu.Unlock()

	ids := make([]string, 0, len(gone))
	for _, e := range gone {
		ids = append(ids, e.id)
		h.logger.Info("participant link expired",
			slog.String("project_id", e.project),
			slog.String("participant_id", e.id),
		)
		if h.cfg.OnExpire != nil {
			h.cfg.OnExpire(e.project, e.id)
		}
	}
	sort.Strings(ids)

	return ids
}

// Close stops every delivery goroutine. Queued instructions are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.links = make(map[string]*link)
	h.mu.Unlock()

	h.cancel()
	h.wg.Wait()
}
