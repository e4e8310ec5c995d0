package checkpoint

import (
	"context"
	"fmt"
)

type Config struct {
	Type string   `env:"FLCOORD_CHECKPOINT_TYPE" envDefault:"memory"`
	Dir  string   `env:"FLCOORD_CHECKPOINT_DIR"  envDefault:"./data/checkpoints"`
	S3   S3Config `envPrefix:"FLCOORD_CHECKPOINT_S3_"`
}

func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(cfg.Dir)
	case "s3":
		return NewS3Store(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported checkpoint store type: %s", cfg.Type)
	}
}
