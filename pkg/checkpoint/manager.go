package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/quillforge/modelrouter/pkg/persist"
)

// StateBasename is the on-disk basename for the pipeline checkpoint document,
// matching the external-interfaces contract (".extraction-state").
const StateBasename = ".extraction-state"

// Directory permissions for the checkpoint directory.
const dirPerm = 0o750

// Manager loads and saves a single active ProcessingState document under a
// directory. A Manager is scoped to one R (ChunkResult) type; callers
// typically keep one Manager per pipeline run type.
type Manager[R any] struct {
	dir   string
	codec Codec
}

// NewManager creates a Manager persisting to dir with codec. A nil codec
// defaults to pretty-printed JSON, matching the external JSON-file contract.
func NewManager[R any](dir string, codec Codec) *Manager[R] {
	if codec == nil {
		codec = NewJSONCodec()
	}

	return &Manager[R]{dir: dir, codec: codec}
}

// Load reads the checkpoint document and returns it only if its
// SourceFingerprint matches fingerprint. A missing file, or a checkpoint for
// a different source, both return (nil, nil): the caller should start fresh.
func (m *Manager[R]) Load(fingerprint string) (*ProcessingState[R], error) {
	var state ProcessingState[R]

	err := persist.LoadState(m.dir, StateBasename, m.codec, &state)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	if state.SourceFingerprint != fingerprint {
		return nil, nil
	}

	return &state, nil
}

// Save writes the checkpoint document, creating the directory if needed.
// Per spec §4.6, a checkpoint write error is logged by the caller and is
// never fatal to the pipeline run; Save itself simply reports the error.
func (m *Manager[R]) Save(state *ProcessingState[R]) error {
	err := os.MkdirAll(m.dir, dirPerm)
	if err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	err = persist.SaveState(m.dir, StateBasename, m.codec, state)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}

	return nil
}

// Clear removes the checkpoint document, e.g. after a successful run.
func (m *Manager[R]) Clear() error {
	path := filepath.Join(m.dir, StateBasename+m.codec.Extension())

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}

	return nil
}
