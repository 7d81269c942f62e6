// Package filesystem provides a checkpoint store on the local filesystem.
package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/felixgeelhaar/repoagent/domain/run"
)

// Latest-state files, rewritten on every save that carries the state.
const (
	ExplorationFile = "exploration/state.json"
	PlanFile        = "planner/plan.json"
)

// RunStore implements run.Store as JSON files:
//
//	<dir>/<agent>/runs/<run_id>.json
//	<dir>/exploration/state.json   latest exploration context
//	<dir>/planner/plan.json        latest plan
type RunStore struct {
	dir string
}

// NewRunStore creates a store rooted at dir.
func NewRunStore(dir string) (*RunStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &RunStore{dir: dir}, nil
}

// Dir returns the store root.
func (s *RunStore) Dir() string {
	return s.dir
}

// Save writes the checkpoint and the latest-state files.
func (s *RunStore) Save(ctx context.Context, cp *run.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(cp.RunID); err != nil {
		return err
	}
	if err := validID(cp.Agent); err != nil {
		return fmt.Errorf("agent name: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "    ")
	if err != nil {
		return err
	}

	errs := []error{writeFile(filepath.Join(s.dir, cp.Agent, "runs", cp.RunID+".json"), data)}
	if cp.State.Context != nil {
		ctxData, err := json.MarshalIndent(cp.State.Context, "", "    ")
		if err == nil {
			err = writeFile(filepath.Join(s.dir, filepath.FromSlash(ExplorationFile)), ctxData)
		}
		errs = append(errs, err)
	}
	if len(cp.State.Plan) > 0 {
		errs = append(errs, writeFile(filepath.Join(s.dir, filepath.FromSlash(PlanFile)), []byte(cp.State.PlanJSON())))
	}
	return errors.Join(errs...)
}

// Get retrieves a checkpoint by run ID.
func (s *RunStore) Get(ctx context.Context, runID string) (*run.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(runID); err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(s.dir, "*", "runs", runID+".json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, run.ErrRunNotFound
	}
	return readCheckpoint(matches[0])
}

// List returns checkpoints matching the filter, most recently updated first.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	agentDir := "*"
	if filter.Agent != "" {
		agentDir = filter.Agent
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, agentDir, "runs", "*.json"))
	if err != nil {
		return nil, err
	}

	var out []*run.Checkpoint
	for _, path := range matches {
		cp, err := readCheckpoint(path)
		if err != nil {
			continue // Skip malformed entries
		}
		if filter.Matches(cp) {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete removes a checkpoint. The latest-state files are kept.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(runID); err != nil {
		return err
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, "*", "runs", runID+".json"))
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return run.ErrRunNotFound
	}
	return os.Remove(matches[0])
}

func readCheckpoint(path string) (*run.Checkpoint, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is built from the store root
	if errors.Is(err, fs.ErrNotExist) {
		return nil, run.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	var cp run.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &cp, nil
}

// writeFile replaces path atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\*?[`) || id == "." || id == ".." {
		return run.ErrInvalidRunID
	}
	return nil
}

var _ run.Store = (*RunStore)(nil)
