// Package store persists plan documents. Every save writes two byte-identical
// copies: a durable per-plan archive and a "current working plan" pointer used
// by resumption. Load reconciles the two by preferring the archive.
package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/phaseline/internal/errors"
	"github.com/felixgeelhaar/phaseline/internal/log"
	"github.com/felixgeelhaar/phaseline/internal/plan"
)

const (
	plansDirName    = "plans"
	currentFileName = "current.json"
)

// Store handles plan persistence under a state directory (usually .phaseline)
type Store struct {
	root   string
	logger *log.Logger
}

// New creates a Store rooted at the given state directory
func New(root string) *Store {
	return &Store{
		root:   root,
		logger: log.DefaultLogger().With("component", "store"),
	}
}

func (s *Store) plansDir() string {
	return filepath.Join(s.root, plansDirName)
}

func (s *Store) archivePath(id string) string {
	return filepath.Join(s.plansDir(), id+".json")
}

func (s *Store) currentPath() string {
	return filepath.Join(s.root, currentFileName)
}

// Save persists the plan atomically to both the archive and the current
// pointer. A process killed mid-write must never leave a half-written plan
// readable, so both writes go through a temp file followed by a rename.
func (s *Store) Save(p *plan.Plan) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("validate plan before save: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "marshal plan", err)
	}

	if err := os.MkdirAll(s.plansDir(), 0750); err != nil {
		return errors.Wrap(errors.ErrCodeDirectoryFailed, "create plans directory", err)
	}

	if err := writeAtomic(s.archivePath(p.ID), data); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "write plan archive", err)
	}
	if err := writeAtomic(s.currentPath(), data); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "write current plan pointer", err)
	}

	return nil
}

// Load reads the plan with the given identifier, reconciling the archive and
// current copies. The archive wins: a stale or unreadable current copy is
// silently rewritten from the archive. An unreadable archive with a current
// copy present for the same plan is fatal corruption and is never repaired
// automatically.
//
// A plan found in_progress on load means the previous run was killed without
// cleanup; it is marked paused here, since the dead process could not do it.
func (s *Store) Load(id string) (*plan.Plan, error) {
	archivePath := s.archivePath(id)

	data, err := os.ReadFile(archivePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewPlanNotFoundError(id)
		}
		return nil, errors.Wrap(errors.ErrCodeStoreReadFailed, "read plan archive", err)
	}

	var p plan.Plan
	if err := json.Unmarshal(data, &p); err != nil {
		// The archive is the copy of record. If the current pointer also
		// refers to this plan the two have diverged irreconcilably.
		if currentID, cerr := s.currentPlanID(); cerr == nil && currentID == id {
			return nil, errors.NewStoreCorruptError(archivePath, s.currentPath(), err)
		}
		return nil, errors.Wrap(errors.ErrCodeStoreReadFailed, "unmarshal plan archive", err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("validate loaded plan: %w", err)
	}

	s.reconcileCurrent(id, data)

	// An in_progress plan on disk means the writing process is gone: either
	// killed externally (paused, resumable) or halted deliberately on a
	// stuck phase (still in_progress, pending operator decision).
	if p.Status == plan.StatusInProgress && !p.HasStuckPhase() {
		p.Status = plan.StatusPaused
		s.logger.Info("plan was interrupted, marking paused", "plan", id)
		if err := s.Save(&p); err != nil {
			return nil, fmt.Errorf("persist paused status: %w", err)
		}
	}

	return &p, nil
}

// LoadCurrent loads the plan the current pointer refers to
func (s *Store) LoadCurrent() (*plan.Plan, error) {
	id, err := s.currentPlanID()
	if err != nil {
		return nil, err
	}
	return s.Load(id)
}

// currentPlanID reads only the identifier out of the current pointer copy
func (s *Store) currentPlanID() (string, error) {
	data, err := os.ReadFile(s.currentPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.ErrCodePlanNotFound, "no current plan").
				WithSuggestion("Run 'phaseline plan' to create one")
		}
		return "", errors.Wrap(errors.ErrCodeStoreReadFailed, "read current plan pointer", err)
	}

	var header struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &header); err != nil || header.ID == "" {
		return "", errors.Wrap(errors.ErrCodeStoreReadFailed, "parse current plan pointer", err)
	}
	return header.ID, nil
}

// reconcileCurrent rewrites the current pointer when it diverged from the
// archive after a crash between the two writes
func (s *Store) reconcileCurrent(id string, archiveData []byte) {
	currentData, err := os.ReadFile(s.currentPath())
	if err == nil && bytes.Equal(currentData, archiveData) {
		return
	}

	// Only repair if the pointer refers to this plan (or is unreadable);
	// a pointer at a different plan is simply not ours to touch.
	if err == nil {
		var header struct {
			ID string `json:"id"`
		}
		if jsonErr := json.Unmarshal(currentData, &header); jsonErr == nil && header.ID != id {
			return
		}
	}

	s.logger.Warn("current plan copy diverged from archive, repairing", "plan", id)
	if werr := writeAtomic(s.currentPath(), archiveData); werr != nil {
		s.logger.WithError(werr).Warn("failed to repair current plan copy")
	}
}

// NextSeq returns the next monotonic plan sequence number by scanning the
// archive directory
func (s *Store) NextSeq() (int, error) {
	entries, err := os.ReadDir(s.plansDir())
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, errors.Wrap(errors.ErrCodeStoreReadFailed, "read plans directory", err)
	}

	max := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		// Plan files are named <seq>-<slug>.json
		seqPart, _, ok := strings.Cut(strings.TrimSuffix(name, ".json"), "-")
		if !ok {
			continue
		}
		if seq, err := strconv.Atoi(seqPart); err == nil && seq > max {
			max = seq
		}
	}
	return max + 1, nil
}

// List loads every archived plan, newest sequence first
func (s *Store) List() ([]*plan.Plan, error) {
	entries, err := os.ReadDir(s.plansDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(errors.ErrCodeStoreReadFailed, "read plans directory", err)
	}

	var plans []*plan.Plan
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		p, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.WithError(err).Warn("skipping unreadable plan", "file", entry.Name())
			continue
		}
		plans = append(plans, p)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].Seq > plans[j].Seq
	})
	return plans, nil
}

// writeAtomic writes data via a temp file in the target directory plus a
// rename, so readers never observe a partial write
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
