package fl

import (
	"errors"
	"fmt"
	"time"
)

// Project is read-only input to a session.
type Project struct {
	ID              string    `json:"id"               toml:"id"`
	Name            string    `json:"name"             toml:"name"`
	Rounds          uint64    `json:"rounds"           toml:"rounds"`
	LocalEpochs     uint64    `json:"local_epochs"     toml:"local_epochs"`
	BatchSize       uint64    `json:"batch_size"       toml:"batch_size"`
	MinParticipants uint64    `json:"min_participants" toml:"min_participants"`
	Shape           [][]int   `json:"shape,omitempty"  toml:"shape"`
	CreatedAt       time.Time `json:"created_at"       toml:"-"`
}

func (p Project) Validate() error {
	if err := ValidateID(p.ID); err != nil {
		return errors.Join(ErrInvalidProject, err)
	}
	if p.Rounds == 0 {
		return fmt.Errorf("%w: rounds must be positive", ErrInvalidProject)
	}
	if p.MinParticipants == 0 {
		return fmt.Errorf("%w: min_participants must be positive", ErrInvalidProject)
	}
	for _, s := range p.Shape {
		for _, d := range s {
			if d <= 0 {
				return fmt.Errorf("%w: shape dimensions must be positive", ErrInvalidProject)
			}
		}
	}
	if _, err := ModelSize(p.Shape); err != nil {
		return errors.Join(ErrInvalidProject, err)
	}

	return nil
}

type Participant struct {
	ID           string    `json:"id"`
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	TotalSamples uint64    `json:"total_samples"`
	Online       bool      `json:"online"`
	RegisteredAt time.Time `json:"registered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// ValidateID accepts identifiers that are safe as path segments and object keys.
func ValidateID(id string) error {
	if id == "" {
		return ErrInvalidID
	}
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			continue
		}

		return ErrInvalidID
	}

	return nil
}
