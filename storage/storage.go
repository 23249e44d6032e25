// Package storage implements the on-disk project layout (§6): every
// artifact (trace, recorded trace, run, re-evaluation) is a human-readable,
// 2-space-indented JSON file written atomically (write to a temp file,
// then rename), under a content-addressed path scheme rooted at a single
// project directory.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jherleth/salvo-ai/trace"
)

// Store is the on-disk project layout rooted at Root. A Store is safe for
// concurrent use: every manifest read-modify-write is guarded by an
// in-process mutex, and every artifact write is atomic at the filesystem
// level.
type Store struct {
	Root string

	mu sync.Mutex
}

// New constructs a Store rooted at root, creating the directory layout if
// it does not already exist.
func New(root string) (*Store, error) {
	s := &Store{Root: root}
	for _, dir := range []string{"runs", "traces", "revals"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("storage: creating %s: %w", dir, err)
		}
	}
	return s, nil
}

// ManifestEntry records one trial's trace within its run, for quick
// listing without parsing every trace file.
type ManifestEntry struct {
	TraceID    string `json:"trace_id"`
	TrialIndex int    `json:"trial_index"`
	Status     string `json:"status"`
}

// Manifest is the run_id-keyed shape of traces/manifest.json (§6):
// {run_id → [{trace_id, trial_index, status}]}.
type Manifest map[string][]ManifestEntry

// IndexEntry records one suite run in the top-level index.
type IndexEntry struct {
	RunID      string    `json:"run_id"`
	ScenarioID string    `json:"scenario_id"`
	Verdict    string    `json:"verdict"`
	Timestamp  time.Time `json:"timestamp"`
}

func (s *Store) tracePath(traceID string) string {
	return filepath.Join(s.Root, "traces", traceID+".json")
}

func (s *Store) recordedTracePath(traceID string) string {
	return filepath.Join(s.Root, "traces", traceID+".recorded.json")
}

func (s *Store) manifestPath() string {
	return filepath.Join(s.Root, "traces", "manifest.json")
}

func (s *Store) latestPath() string {
	return filepath.Join(s.Root, "traces", "latest")
}

func (s *Store) runPath(runID string) string {
	return filepath.Join(s.Root, "runs", runID+".json")
}

func (s *Store) revalPath(revalID string) string {
	return filepath.Join(s.Root, "revals", revalID+".json")
}

func (s *Store) indexPath() string {
	return filepath.Join(s.Root, "index.json")
}

// SaveTrace persists t under traces/<trace_id>.json, updates the run_id's
// manifest entry with trialIndex and status, and repoints traces/latest at
// it.
func (s *Store) SaveTrace(ctx context.Context, runID string, trialIndex int, status string, t *trace.Trace) error {
	if err := writeJSONAtomic(s.tracePath(t.TraceID), t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendManifestLocked(runID, ManifestEntry{
		TraceID:    t.TraceID,
		TrialIndex: trialIndex,
		Status:     status,
	}); err != nil {
		return err
	}
	return writeFileAtomic(s.latestPath(), []byte(t.TraceID))
}

// LoadTrace reads a previously saved trace by ID.
func (s *Store) LoadTrace(traceID string) (*trace.Trace, error) {
	var t trace.Trace
	if err := readJSON(s.tracePath(traceID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveRecordedTrace persists an arbitrary recorded-trace payload (owned by
// package recorder) under traces/<trace_id>.recorded.json.
func (s *Store) SaveRecordedTrace(traceID string, recorded any) error {
	return writeJSONAtomic(s.recordedTracePath(traceID), recorded)
}

// LoadRecordedTrace reads a previously recorded trace's raw JSON into out.
func (s *Store) LoadRecordedTrace(traceID string, out any) error {
	return readJSON(s.recordedTracePath(traceID), out)
}

// SaveRun persists a suite result under runs/<run_id>.json and appends it
// to index.json.
func (s *Store) SaveRun(runID, scenarioID, verdict string, result any) error {
	if err := writeJSONAtomic(s.runPath(runID), result); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendIndexLocked(IndexEntry{
		RunID:      runID,
		ScenarioID: scenarioID,
		Verdict:    verdict,
		Timestamp:  time.Now().UTC(),
	})
}

// SaveReval persists a re-evaluation result under revals/<reval_id>.json.
func (s *Store) SaveReval(revalID string, result any) error {
	return writeJSONAtomic(s.revalPath(revalID), result)
}

func (s *Store) appendManifestLocked(runID string, entry ManifestEntry) error {
	manifest := Manifest{}
	_ = readJSON(s.manifestPath(), &manifest) // absent manifest is fine, starts empty
	manifest[runID] = append(manifest[runID], entry)
	return writeJSONAtomic(s.manifestPath(), manifest)
}

func (s *Store) appendIndexLocked(entry IndexEntry) error {
	var entries []IndexEntry
	_ = readJSON(s.indexPath(), &entries)
	entries = append(entries, entry)
	return writeJSONAtomic(s.indexPath(), entries)
}

// writeJSONAtomic marshals v as 2-space-indented JSON and writes it to
// path via a temp-file-then-rename, so a concurrent reader never observes
// a partially written file.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshaling %s: %w", path, err)
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: creating temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: writing %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: closing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("storage: renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
