package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/absmach/flcoord/pkg/fl"
)

const fileExt = ".cbor"

var _ Store = (*fileStore)(nil)

// fileStore lays checkpoints out as <root>/<project>/<session>/v<version>.cbor.
type fileStore struct {
	root string
	mu   sync.RWMutex
}

func NewFileStore(root string) (Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &fileStore{root: root}, nil
}

func (s *fileStore) path(projectID, sessionID string, version uint64) string {
	return filepath.Join(s.root, projectID, sessionID, fmt.Sprintf("v%d%s", version, fileExt))
}

func (s *fileStore) Save(_ context.Context, cp Checkpoint) (string, error) {
	cp, err := prepare(cp)
	if err != nil {
		return "", err
	}

	data, err := fl.MarshalCBOR(cp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	final := s.path(cp.ProjectID, cp.SessionID, cp.Version)
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create session directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return "", fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()

		return "", fmt.Errorf("failed to sync checkpoint file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	// Link fails when the target exists, which keeps versions write-once.
	if err := os.Link(tmp.Name(), final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", ErrCheckpointExists
		}

		return "", fmt.Errorf("failed to publish checkpoint file: %w", err)
	}

	return cp.ID, nil
}

func (s *fileStore) Load(_ context.Context, id string) (Checkpoint, error) {
	projectID, sessionID, version, err := ParseID(id)
	if err != nil {
		return Checkpoint{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return readCheckpoint(s.path(projectID, sessionID, version))
}

func (s *fileStore) Latest(_ context.Context, projectID string) (Checkpoint, error) {
	if fl.ValidateID(projectID) != nil {
		return Checkpoint{}, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := filepath.Glob(filepath.Join(s.root, projectID, "*", "v*"+fileExt))
	if err != nil {
		return Checkpoint{}, err
	}

	var (
		latest Checkpoint
		found  bool
	)
	for _, f := range files {
		cp, err := readCheckpoint(f)
		if err != nil {
			return Checkpoint{}, err
		}
		if !found || newer(cp, latest) {
			latest, found = cp, true
		}
	}
	if !found {
		return Checkpoint{}, ErrNotFound
	}

	return latest, nil
}

func (s *fileStore) List(_ context.Context, projectID, sessionID string) ([]Checkpoint, error) {
	if fl.ValidateID(projectID) != nil || fl.ValidateID(sessionID) != nil {
		return []Checkpoint{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(s.root, projectID, sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Checkpoint{}, nil
		}

		return nil, err
	}

	list := make([]Checkpoint, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "v") || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		cp, err := readCheckpoint(filepath.Join(s.root, projectID, sessionID, entry.Name()))
		if err != nil {
			return nil, err
		}
		list = append(list, cp)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version < list[j].Version })

	return list, nil
}

func readCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Checkpoint{}, ErrNotFound
		}

		return Checkpoint{}, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := fl.UnmarshalCBOR(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return cp, nil
}
