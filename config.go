package flcoord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/absmach/flcoord/coordinator"
	pkgerrors "github.com/absmach/flcoord/pkg/errors"
	"github.com/absmach/flcoord/pkg/fl"
	"github.com/pelletier/go-toml"
)

// Config is the optional TOML file read at coordinator startup.
type Config struct {
	Coordinator Tunables     `toml:"coordinator"`
	Projects    []fl.Project `toml:"projects"`
}

// Tunables override coordinator defaults. Zero values leave the default in place.
type Tunables struct {
	VotingWindow    string  `toml:"voting_window"`
	RoundTimeout    string  `toml:"round_timeout"`
	GraceWindow     string  `toml:"grace_window"`
	LivenessTimeout string  `toml:"liveness_timeout"`
	RetryBudget     int     `toml:"retry_budget"`
	OutboxSize      int     `toml:"outbox_size"`
	EventQueueSize  int     `toml:"event_queue_size"`
	ProximalMu      float64 `toml:"proximal_mu"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	for i, p := range cfg.Projects {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("project %d: %w", i, err)
		}
	}

	return &cfg, nil
}

// Apply returns base with every tunable set in t.
func (t Tunables) Apply(base coordinator.Config) (coordinator.Config, error) {
	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"voting_window", t.VotingWindow, &base.VotingWindow},
		{"round_timeout", t.RoundTimeout, &base.RoundTimeout},
		{"grace_window", t.GraceWindow, &base.GraceWindow},
		{"liveness_timeout", t.LivenessTimeout, &base.LivenessTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return coordinator.Config{}, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if v < 0 {
			return coordinator.Config{}, fmt.Errorf("invalid %s: must not be negative", d.name)
		}
		*d.dst = v
	}

	if t.RetryBudget > 0 {
		base.RetryBudget = t.RetryBudget
	}
	if t.OutboxSize > 0 {
		base.OutboxSize = t.OutboxSize
	}
	if t.EventQueueSize > 0 {
		base.EventQueueSize = t.EventQueueSize
	}
	if t.ProximalMu > 0 {
		base.ProximalMu = t.ProximalMu
	}

	return base, nil
}

// SeedProjects creates the catalogue's projects. Projects that already exist are kept as they are.
func SeedProjects(ctx context.Context, svc coordinator.Service, projects []fl.Project, logger *slog.Logger) error {
	for _, p := range projects {
		_, err := svc.CreateProject(ctx, p)
		switch {
		case errors.Is(err, pkgerrors.ErrEntityExists):
			logger.Debug("project already exists", slog.String("project_id", p.ID))
		case err != nil:
			return fmt.Errorf("failed to seed project %s: %w", p.ID, err)
		default:
			logger.Info("project seeded", slog.String("project_id", p.ID))
		}
	}

	return nil
}
