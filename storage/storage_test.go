package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jherleth/salvo-ai/model"
	"github.com/jherleth/salvo-ai/trace"
)

func sampleTrace(id string) *trace.Trace {
	return &trace.Trace{
		TraceID:      id,
		ScenarioHash: "hash-abc",
		Provider:     "anthropic",
		Model:        "claude-sonnet-4",
		Messages:     []model.Message{{Role: model.RoleUser, Content: "hi"}},
		Timestamp:    time.Now().UTC(),
	}
}

func TestNew_CreatesLayout(t *testing.T) {
	root := t.TempDir()
	_, err := New(root)
	require.NoError(t, err)

	for _, dir := range []string{"runs", "traces", "revals"} {
		info, statErr := os.Stat(filepath.Join(root, dir))
		require.NoError(t, statErr)
		assert.True(t, info.IsDir())
	}
}

func TestSaveAndLoadTrace_RoundTrips(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	tr := sampleTrace("trace-1")
	require.NoError(t, s.SaveTrace(context.Background(), "run-1", 0, "PASS", tr))

	loaded, err := s.LoadTrace("trace-1")
	require.NoError(t, err)
	assert.Equal(t, tr.TraceID, loaded.TraceID)
	assert.Equal(t, tr.ScenarioHash, loaded.ScenarioHash)
}

func TestSaveTrace_UpdatesLatestPointer(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.SaveTrace(context.Background(), "run-1", 0, "PASS", sampleTrace("trace-1")))
	require.NoError(t, s.SaveTrace(context.Background(), "run-1", 1, "PASS", sampleTrace("trace-2")))

	data, err := os.ReadFile(filepath.Join(root, "traces", "latest"))
	require.NoError(t, err)
	assert.Equal(t, "trace-2", string(data))
}

func TestSaveTrace_AppendsManifestKeyedByRunID(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.SaveTrace(context.Background(), "run-1", 0, "PASS", sampleTrace("trace-1")))
	require.NoError(t, s.SaveTrace(context.Background(), "run-1", 1, "HARD_FAIL", sampleTrace("trace-2")))
	require.NoError(t, s.SaveTrace(context.Background(), "run-2", 0, "PASS", sampleTrace("trace-3")))

	var manifest Manifest
	require.NoError(t, readJSON(s.manifestPath(), &manifest))
	require.Len(t, manifest["run-1"], 2)
	assert.Equal(t, 1, manifest["run-1"][1].TrialIndex)
	assert.Equal(t, "HARD_FAIL", manifest["run-1"][1].Status)
	require.Len(t, manifest["run-2"], 1)
}

func TestSaveRun_AppendsIndex(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	require.NoError(t, err)

	require.NoError(t, s.SaveRun("run-1", "scenario-1", "PASS", map[string]any{"ok": true}))

	var entries []IndexEntry
	require.NoError(t, readJSON(s.indexPath(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "run-1", entries[0].RunID)
	assert.Equal(t, "PASS", entries[0].Verdict)
}

func TestWriteFileAtomic_NoPartialFileOnFailure(t *testing.T) {
	root := t.TempDir()
	// A nonexistent parent directory should fail cleanly rather than
	// leaving a stray temp file behind in an existing directory.
	err := writeFileAtomic(filepath.Join(root, "does-not-exist", "f.json"), []byte("{}"))
	assert.Error(t, err)

	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	assert.Len(t, entries, 0)
}
