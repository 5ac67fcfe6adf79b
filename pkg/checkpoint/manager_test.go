package checkpoint_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/modelrouter/pkg/checkpoint"
)

func TestManager_SaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr := checkpoint.NewManager[stubResult](dir, nil)

	state := checkpoint.NewState[stubResult]("fp-a", 2, 1000)
	state.MarkCompleted(0, stubResult{Summary: "chunk 0"}, 1001)

	require.NoError(t, mgr.Save(state))

	loaded, err := mgr.Load("fp-a")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, "fp-a", loaded.SourceFingerprint)
	assert.True(t, loaded.Completed[0])
	assert.Equal(t, "chunk 0", loaded.ChunkResults[0].Summary)
}

func TestManager_Load_NoFile_ReturnsNilNil(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr := checkpoint.NewManager[stubResult](dir, nil)

	loaded, err := mgr.Load("fp-a")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManager_Load_FingerprintMismatch_StartsFresh(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr := checkpoint.NewManager[stubResult](dir, nil)

	state := checkpoint.NewState[stubResult]("fp-old", 2, 1000)
	require.NoError(t, mgr.Save(state))

	loaded, err := mgr.Load("fp-new")
	require.NoError(t, err)
	assert.Nil(t, loaded, "a checkpoint for a different source must not be reused")
}

func TestManager_Clear_RemovesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr := checkpoint.NewManager[stubResult](dir, nil)

	state := checkpoint.NewState[stubResult]("fp-a", 1, 1000)
	require.NoError(t, mgr.Save(state))
	require.NoError(t, mgr.Clear())

	loaded, err := mgr.Load("fp-a")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestManager_Clear_Idempotent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr := checkpoint.NewManager[stubResult](dir, nil)

	require.NoError(t, mgr.Clear())
	require.NoError(t, mgr.Clear())
}

func TestManager_UsesJSONBasename(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	mgr := checkpoint.NewManager[stubResult](dir, checkpoint.NewJSONCodec())

	state := checkpoint.NewState[stubResult]("fp-a", 1, 1000)
	require.NoError(t, mgr.Save(state))

	_, statErr := os.Stat(filepath.Join(dir, checkpoint.StateBasename+".json"))
	require.NoError(t, statErr)
}
