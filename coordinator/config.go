package coordinator

import "time"

// Config holds the timing and sizing knobs every session runs with.
type Config struct {
	VotingWindow    time.Duration `env:"FLCOORD_VOTING_WINDOW"    envDefault:"10s"`
	RoundTimeout    time.Duration `env:"FLCOORD_ROUND_TIMEOUT"    envDefault:"60s"`
	GraceWindow     time.Duration `env:"FLCOORD_GRACE_WINDOW"     envDefault:"2s"`
	RetryBudget     int           `env:"FLCOORD_RETRY_BUDGET"     envDefault:"3"`
	LivenessTimeout time.Duration `env:"FLCOORD_LIVENESS_TIMEOUT" envDefault:"30s"`
	OutboxSize      int           `env:"FLCOORD_OUTBOX_SIZE"      envDefault:"8"`
	EventQueueSize  int           `env:"FLCOORD_EVENT_QUEUE_SIZE" envDefault:"64"`
	ProximalMu      float64       `env:"FLCOORD_PROXIMAL_MU"      envDefault:"0.01"`
}

func DefaultConfig() Config {
	return Config{
		VotingWindow:    10 * time.Second,
		RoundTimeout:    60 * time.Second,
		GraceWindow:     2 * time.Second,
		RetryBudget:     3,
		LivenessTimeout: 30 * time.Second,
		OutboxSize:      8,
		EventQueueSize:  64,
		ProximalMu:      0.01,
	}
}
