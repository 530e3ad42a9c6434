package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dividis/progress-engine/config"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{
		"STORE_DRIVER": config.DriverMemory,
		"CATALOG_PATH": "../../configs/catalog.yaml",
		"LOG_LEVEL":    "error",
	})
	require.NoError(t, err)

	var out bytes.Buffer
	a, err := bootstrap(context.Background(), cfg, commands["register"], &out, io.Discard)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a, &out
}

func TestDispatch_RegisterThenOverview(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.dispatch(ctx, []string{"register", "ana"}))
	out.Reset()

	require.NoError(t, a.dispatch(ctx, []string{"overview", "-fresh", "ana"}))
	var ov struct {
		UserID          string `json:"user_id"`
		Level           int    `json:"level"`
		Title           string `json:"title"`
		ModulesUnlocked int    `json:"modules_unlocked"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &ov))
	assert.Equal(t, "ana", ov.UserID)
	assert.Equal(t, 1, ov.Level)
	assert.Equal(t, "Aventurero", ov.Title)
	assert.Equal(t, 1, ov.ModulesUnlocked)
}

func TestDispatch_Usage(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	err := a.dispatch(ctx, []string{"nope"})
	require.ErrorIs(t, err, errUsage)
	assert.Equal(t, exitUsage, a.report(err))

	err = a.dispatch(ctx, []string{"declare", "ana", "vision"})
	require.ErrorIs(t, err, errUsage)

	err = a.dispatch(ctx, []string{"migrate"})
	require.ErrorIs(t, err, errUsage, "memory store has no migrations")

	err = a.dispatch(ctx, []string{"watch"})
	require.ErrorIs(t, err, errUsage, "redis disabled")
}

func TestReport_ExitCodes(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.dispatch(ctx, []string{"register", "ana"}))

	err := a.dispatch(ctx, []string{"unlock", "ana", "personalidad"})
	require.Error(t, err)
	assert.Equal(t, exitDenied, a.report(err))

	err = a.dispatch(ctx, []string{"complete-module", "ana", "salud"})
	require.Error(t, err)
	assert.Equal(t, exitInvalidTransition, a.report(err))

	err = a.dispatch(ctx, []string{"module", "ana", "atlantis"})
	require.Error(t, err)
	assert.Equal(t, exitNotFound, a.report(err))

	err = a.dispatch(ctx, []string{"declare", "ana", "vision", "Amor", "todo"})
	require.Error(t, err)
	assert.Equal(t, exitUsage, a.report(err))
}

func TestScript(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "demo.txt")
	require.NoError(t, os.WriteFile(path, []byte(`
# first session
register ana
declare ana vision Visión Quiero una vida con sentido
declare ana vision Estrategias Leer cada mañana
missions ana
`), 0o600))

	require.NoError(t, a.dispatch(ctx, []string{"script", path}))
	assert.Contains(t, out.String(), `"Pillar": "Vision"`)

	out.Reset()
	require.NoError(t, a.dispatch(ctx, []string{"overview", "ana"}))
	var ov struct {
		TotalXP int `json:"total_xp"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &ov))
	assert.Greater(t, ov.TotalXP, 40)
}

func TestScript_StopsAtFailingLine(t *testing.T) {
	a, _ := newTestApp(t)

	path := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(path, []byte("register ana\ncomplete ana missing-mission\nregister bob\n"), 0o600))

	err := a.dispatch(context.Background(), []string{"script", path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Equal(t, exitNotFound, a.report(err))
}

func TestScript_RejectsNesting(t *testing.T) {
	a, _ := newTestApp(t)

	path := filepath.Join(t.TempDir(), "nested.txt")
	require.NoError(t, os.WriteFile(path, []byte("script other.txt\n"), 0o600))

	err := a.dispatch(context.Background(), []string{"script", path})
	require.ErrorIs(t, err, errUsage)
}

func TestCommandNamesSorted(t *testing.T) {
	names := commandNames()
	assert.Len(t, names, len(commands))
	assert.IsIncreasing(t, names)
}
