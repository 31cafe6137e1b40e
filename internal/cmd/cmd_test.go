package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/contentver/internal/app"
	"github.com/nainya/contentver/internal/config"
	"github.com/nainya/contentver/internal/logger"
	"github.com/nainya/contentver/pkg/version"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONTENTVER_STORE_BACKEND", "sqlite")
	t.Setenv("CONTENTVER_STORE_SQLITE_PATH", filepath.Join(dir, "contentver.db"))
	t.Setenv("CONTENTVER_OUTBOX_DIR", filepath.Join(dir, "outbox"))
	t.Setenv("CONTENTVER_VERSIONS_MAX_PER_FIELD", "3")
	t.Setenv("CONTENTVER_LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "absent.env")}, args...))
	err := root.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), v), out)
}

func save(t *testing.T, oldValue, newValue string) string {
	t.Helper()
	var res struct {
		ID     string `json:"id"`
		Queued bool   `json:"queued"`
	}
	runJSON(t, &res, "save", "--page-type", "home", "--field", "hero",
		"--old", oldValue, "--new", newValue, "--author", "ann", "--email", "ann@example.com")
	require.False(t, res.Queued)
	require.NotEmpty(t, res.ID)
	return res.ID
}

func TestVersionLifecycle(t *testing.T) {
	setupEnv(t)

	id1 := save(t, `"Hi"`, `"Hello"`)
	id2 := save(t, `"Hello"`, `"Hey"`)

	var versions []version.ContentVersion
	runJSON(t, &versions, "list", "home", "hero")
	require.Len(t, versions, 2)
	assert.Equal(t, id2, versions[0].ID)
	assert.Equal(t, "Hey", versions[0].NewValue)

	var approved map[string]any
	runJSON(t, &approved, "approve", id1, "--by", "lee")
	assert.Equal(t, true, approved["approved"])

	var shown version.ContentVersion
	runJSON(t, &shown, "show", id1)
	assert.True(t, shown.Approved)
	assert.Equal(t, "lee", shown.ApprovedBy)
	assert.Equal(t, "ann@example.com", shown.AuthorEmail)

	var rolled struct {
		ID string `json:"id"`
	}
	runJSON(t, &rolled, "rollback", id2, "--author", "ann")
	runJSON(t, &shown, "show", rolled.ID)
	assert.Equal(t, "Hello", shown.NewValue)
	assert.Equal(t, "Rollback to version "+id2, shown.Comment)

	var history []version.HistoryEntry
	runJSON(t, &history, "history", "home", "hero")
	require.Len(t, history, 3)
	assert.Equal(t, rolled.ID, history[0].VersionID)

	var diffRes struct {
		Changes []string `json:"changes"`
	}
	runJSON(t, &diffRes, "diff", id1, id2)
	assert.NotEmpty(t, diffRes.Changes)

	save(t, `"Hello"`, `"Howdy"`)
	save(t, `"Howdy"`, `{"text":"Howdy","bold":true}`)

	var enforced struct {
		Deleted int `json:"deleted"`
	}
	runJSON(t, &enforced, "enforce", "home", "hero")
	assert.Zero(t, enforced.Deleted, "saves already enforced the bound")

	runJSON(t, &versions, "list", "home", "hero")
	require.Len(t, versions, 3)
	assert.Equal(t, map[string]any{"text": "Howdy", "bold": true}, versions[0].NewValue)

	var limited []version.ContentVersion
	runJSON(t, &limited, "list", "home", "hero", "--limit", "1")
	assert.Len(t, limited, 1)
}

func TestShowMissing(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "show", "no-such-version")
	assert.ErrorIs(t, err, version.ErrNotFound)
}

func TestSaveRejectsEmptyScope(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "save", "--page-type", " ", "--field", "hero", "--new", "x")
	assert.ErrorIs(t, err, version.ErrInvalidArgument)
}

func TestReplayAndMigrate(t *testing.T) {
	setupEnv(t)

	var stats map[string]int
	runJSON(t, &stats, "replay")
	assert.Equal(t, map[string]int{"saved": 0, "discarded": 0, "remaining": 0}, stats)

	var migrated map[string]any
	runJSON(t, &migrated, "migrate")
	assert.Equal(t, "sqlite", migrated["backend"])

	t.Setenv("CONTENTVER_STORE_BACKEND", "memory")
	_, err := run(t, "migrate")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("CONTENTVER_STORE_BACKEND", "mongo")

	_, err := run(t, "list", "home", "hero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.backend")
}

func TestParseValue(t *testing.T) {
	assert.Equal(t, "plain text", parseValue("plain text"))
	assert.Equal(t, "quoted", parseValue(`"quoted"`))
	assert.Equal(t, float64(3), parseValue("3"))
	assert.Equal(t, "", parseValue(""))
	assert.Equal(t, map[string]any{"a": "b"}, parseValue(`{"a":"b"}`))
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Store.Backend = config.BackendMemory
	cfg.Outbox.Dir = t.TempDir()
	cfg.Outbox.ReplaySchedule = "@every 1s"

	a, err := app.New(context.Background(), cfg, logger.NewLogger(logger.Config{Level: "error", Output: &bytes.Buffer{}}))
	require.NoError(t, err)
	defer a.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, a, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/ready")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
