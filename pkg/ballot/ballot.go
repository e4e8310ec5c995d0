package ballot

import (
	"sync"
	"time"

	"github.com/absmach/flcoord/pkg/events"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/google/uuid"
)

// Tally maps a strategy to its number of votes.
type Tally map[fl.Strategy]uint64

// Winner returns the strategy with most votes. Ties and empty tallies resolve
// to the default strategy.
func (t Tally) Winner() fl.Strategy {
	var (
		best  fl.Strategy
		count uint64
		tied  bool
	)
	for _, s := range fl.Strategies() {
		c := t[s]
		switch {
		case c > count:
			best, count, tied = s, c, false
		case c == count && c > 0:
			tied = true
		}
	}
	if count == 0 || tied {
		return fl.DefaultStrategy
	}

	return best
}

func (t Tally) Strings() map[string]uint64 {
	out := make(map[string]uint64, len(t))
	for s, c := range t {
		out[string(s)] = c
	}

	return out
}

type phase struct {
	id       string
	open     bool
	votes    map[string]fl.Strategy
	openedAt time.Time
}

func (p *phase) tally() Tally {
	t := make(Tally, len(fl.Strategies()))
	for _, s := range fl.Strategies() {
		t[s] = 0
	}
	if p == nil {
		return t
	}
	for _, s := range p.votes {
		t[s]++
	}

	return t
}

// Ballot holds one voting phase per project. Opening a phase discards the
// previous one, so votes tagged with an older phase never leak into a newer one.
type Ballot struct {
	mu     sync.Mutex
	phases map[string]*phase
	pub    events.Publisher
}

func New(pub events.Publisher) *Ballot {
	return &Ballot{
		phases: make(map[string]*phase),
		pub:    pub,
	}
}

// Open starts a fresh voting phase for the project and returns its identifier.
func (b *Ballot) Open(projectID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	p := &phase{
		id:       uuid.NewString(),
		open:     true,
		votes:    make(map[string]fl.Strategy),
		openedAt: time.Now(),
	}
	b.phases[projectID] = p

	return p.id
}

// Cast upserts a vote into the project's open phase.
func (b *Ballot) Cast(projectID, participantID string, s fl.Strategy) (Tally, error) {
	return b.cast(projectID, "", participantID, s)
}

// CastInPhase is Cast for voters that carry the phase identifier they were
// invited to. A mismatching phase is rejected with ErrStaleVote.
func (b *Ballot) CastInPhase(projectID, phaseID, participantID string, s fl.Strategy) (Tally, error) {
	return b.cast(projectID, phaseID, participantID, s)
}

func (b *Ballot) cast(projectID, phaseID, participantID string, s fl.Strategy) (Tally, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	p, ok := b.phases[projectID]
	if !ok || !p.open || (phaseID != "" && phaseID != p.id) {
		b.mu.Unlock()

		return nil, fl.ErrStaleVote
	}
	p.votes[participantID] = s
	tally := p.tally()
	id := p.id
	b.mu.Unlock()

	b.pub.Publish(events.Event{
		Type:        events.VoteUpdate,
		ProjectID:   projectID,
		Tally:       tally.Strings(),
		VotingPhase: id,
	})

	return tally, nil
}

// Tally returns the current phase's counts.
func (b *Ballot) Tally(projectID string) Tally {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.phases[projectID].tally()
}

func (b *Ballot) Winner(projectID string) fl.Strategy {
	return b.Tally(projectID).Winner()
}

// Phase returns the identifier of the project's latest phase and whether it is open.
func (b *Ballot) Phase(projectID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.phases[projectID]
	if !ok {
		return "", false
	}

	return p.id, p.open
}

// Close freezes the given phase and returns its winner. Closing any phase
// other than the project's latest fails with ErrStaleVote.
func (b *Ballot) Close(projectID, phaseID string) (fl.Strategy, Tally, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.phases[projectID]
	if !ok || p.id != phaseID {
		return fl.DefaultStrategy, Tally{}, fl.ErrStaleVote
	}
	p.open = false
	t := p.tally()

	return t.Winner(), t, nil
}
