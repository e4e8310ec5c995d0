package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/google/uuid"
)

type Type string

const (
	VotingStarted         Type = "voting_started"
	VoteUpdate            Type = "vote_update"
	SessionStarted        Type = "session_started"
	RoundComplete         Type = "round_complete"
	RoundRetry            Type = "round_retry"
	SessionCompleted      Type = "session_completed"
	SessionFailed         Type = "session_failed"
	SessionCancelled      Type = "session_cancelled"
	ParticipantRegistered Type = "participant_registered"
)

const defQueueSize = 64

var ErrObserverClosed = errors.New("observer closed")

type Event struct {
	Type            Type              `json:"type"`
	ProjectID       string            `json:"project_id,omitempty"`
	SessionID       string            `json:"session_id,omitempty"`
	ParticipantID   string            `json:"participant_id,omitempty"`
	Round           uint64            `json:"round"`
	TotalRounds     uint64            `json:"total_rounds,omitempty"`
	Strategy        string            `json:"strategy,omitempty"`
	Accuracy        float64           `json:"accuracy"`
	Loss            float64           `json:"loss"`
	NumParticipants int               `json:"num_participants"`
	Tally           map[string]uint64 `json:"tally,omitempty"`
	VotingPhase     string            `json:"voting_phase,omitempty"`
	Reason          string            `json:"reason,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// Publisher is implemented by anything that accepts lifecycle events.
type Publisher interface {
	Publish(ev Event)
}

// Bus fans events out to observers. Publish never blocks: each observer owns a
// bounded queue and the oldest queued event is dropped on overflow.
type Bus struct {
	mu        sync.RWMutex
	observers map[string]*Observer
	queueSize int
	dropped   metrics.Counter
	logger    *slog.Logger
}

func NewBus(queueSize int, dropped metrics.Counter, logger *slog.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = defQueueSize
	}

	return &Bus{
		observers: make(map[string]*Observer),
		queueSize: queueSize,
		dropped:   dropped,
		logger:    logger,
	}
}

func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, o := range b.observers {
		if o.projectID != "" && ev.ProjectID != "" && o.projectID != ev.ProjectID {
			continue
		}
		if dropped, ok := o.push(ev); ok {
			b.dropped.With("type", string(dropped.Type)).Add(1)
			b.logger.Warn("event queue overflow, dropped oldest event",
				slog.String("observer_id", o.ID),
				slog.String("event_type", string(dropped.Type)),
				slog.String("session_id", dropped.SessionID),
			)
		}
	}
}

// Subscribe attaches an observer. An empty projectID receives every event.
func (b *Bus) Subscribe(projectID string) *Observer {
	o := &Observer{
		ID:        uuid.NewString(),
		projectID: projectID,
		queue:     make([]Event, b.queueSize),
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
		bus:       b,
	}

	b.mu.Lock()
	b.observers[o.ID] = o
	b.mu.Unlock()

	return o
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	o, ok := b.observers[id]
	delete(b.observers, id)
	b.mu.Unlock()

	if ok {
		o.close()
	}
}

func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.observers)
}

// Close detaches every observer.
func (b *Bus) Close() {
	b.mu.Lock()
	observers := b.observers
	b.observers = make(map[string]*Observer)
	b.mu.Unlock()

	for _, o := range observers {
		o.close()
	}
}

type Observer struct {
	ID        string
	projectID string

	mu      sync.Mutex
	queue   []Event
	head    int
	size    int
	dropped uint64
	closed  bool

	notify chan struct{}
	done   chan struct{}
	bus    *Bus
}

func (o *Observer) push(ev Event) (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return Event{}, false
	}

	var (
		dropped Event
		evicted bool
	)
	if o.size == len(o.queue) {
		dropped = o.queue[o.head]
		o.head = (o.head + 1) % len(o.queue)
		o.size--
		o.dropped++
		evicted = true
	}
	o.queue[(o.head+o.size)%len(o.queue)] = ev
	o.size++

	select {
	case o.notify <- struct{}{}:
	default:
	}

	return dropped, evicted
}

func (o *Observer) pop() (Event, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.size == 0 {
		return Event{}, false
	}
	ev := o.queue[o.head]
	o.queue[o.head] = Event{}
	o.head = (o.head + 1) % len(o.queue)
	o.size--

	return ev, true
}

// Next blocks until an event is queued, the observer is closed or ctx ends.
func (o *Observer) Next(ctx context.Context) (Event, error) {
	for {
		if ev, ok := o.pop(); ok {
			return ev, nil
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case <-o.done:
			return Event{}, ErrObserverClosed
		case <-o.notify:
		}
	}
}

// Dropped reports how many events this observer lost to overflow.
func (o *Observer) Dropped() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.dropped
}

func (o *Observer) Close() {
	o.bus.Unsubscribe(o.ID)
}

func (o *Observer) close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	close(o.done)
}
