package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/institution-sync/internal/snapshot"
)

const firstPage = `{
  "meta": {"count": 3, "per_page": 50, "next_cursor": "c2"},
  "results": [
    {"id": "W1", "doi": "https://doi.org/10.1/a", "title": "First", "publication_year": 2020,
     "host_venue": {"display_name": "Nature", "issn": "0028-0836"}},
    {"id": "W2", "doi": null, "title": "Second", "publication_year": null}
  ]
}`

const secondPage = `{
  "meta": {"count": 3, "per_page": 50, "next_cursor": "c3"},
  "results": [
    {"id": "W3", "doi": "10.1/c", "title": "Third"}
  ]
}`

const emptyPage = `{"meta": {"count": 3, "per_page": 50, "next_cursor": null}, "results": []}`

// setupEnv isolates the command from the caller's environment and points it at server.
func setupEnv(t *testing.T, serverURL string) string {
	t.Helper()
	for _, env := range os.Environ() {
		key, _, _ := strings.Cut(env, "=")
		if strings.HasPrefix(key, "INSTSYNC_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("INSTSYNC_OPENALEX_BASE_URL", serverURL)
	t.Setenv("INSTSYNC_PAGING_POLITENESS_DELAY", "0s")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestFetchWorks_Success(t *testing.T) {
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		w.Header().Set("Content-Type", "application/json")
		switch cursor {
		case "*":
			_, _ = w.Write([]byte(firstPage))
		case "c2":
			_, _ = w.Write([]byte(secondPage))
		default:
			_, _ = w.Write([]byte(emptyPage))
		}
	}))
	defer server.Close()

	dir := setupEnv(t, server.URL)
	outPath := filepath.Join(dir, "works.json")
	metricsPath := filepath.Join(dir, "instsync.prom")

	logs, err := execute(t,
		"--email", "librarian@university.edu",
		"--ror", "04q2jes40",
		"--out", outPath,
		"--metrics-file", metricsPath,
	)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, exitCode(err))
	assert.Equal(t, []string{"*", "c2", "c3"}, cursors)

	snap, err := snapshot.Read(outPath)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Count)
	require.Len(t, snap.Items, 3)
	assert.Equal(t, "10.1/a", snap.Items[0].DOI)
	assert.Equal(t, []string{"0028-0836"}, snap.Items[0].ISSNs)
	assert.Nil(t, snap.Items[1].Year)

	metrics, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "instsync_pages_fetched_total 3")
	assert.Contains(t, string(metrics), "instsync_works_fetched_total 3")

	assert.Contains(t, logs, "snapshot written")
	assert.NotContains(t, logs, "librarian@university.edu")
	assert.NotContains(t, logs, "librarian%40university.edu")
}

func TestFetchWorks_FatalErrorPersistsPartialResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("cursor") == "*" {
			_, _ = w.Write([]byte(firstPage))
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	dir := setupEnv(t, server.URL)
	outPath := filepath.Join(dir, "works.json")

	_, err := execute(t, "--email", "librarian@university.edu", "--out", outPath)
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))
	assert.Contains(t, err.Error(), "harvest aborted")

	snap, readErr := snapshot.Read(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, 2, snap.Count)
}

func TestFetchWorks_MalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	dir := setupEnv(t, server.URL)
	outPath := filepath.Join(dir, "works.json")

	_, err := execute(t, "--email", "librarian@university.edu", "--out", outPath)
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))

	snap, readErr := snapshot.Read(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, 0, snap.Count)
	assert.NotNil(t, snap.Items)
}

func TestFetchWorks_NetworkErrorKeepsEmailOutOfOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	closedURL := server.URL
	server.Close()

	dir := setupEnv(t, closedURL)
	outPath := filepath.Join(dir, "works.json")

	logs, err := execute(t, "--email", "librarian@university.edu", "--out", outPath)
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))

	for _, text := range []string{logs, err.Error()} {
		assert.NotContains(t, text, "librarian@university.edu")
		assert.NotContains(t, text, "librarian%40university.edu")
	}
	assert.Contains(t, err.Error(), "hidden%40example.org")

	snap, readErr := snapshot.Read(outPath)
	require.NoError(t, readErr)
	assert.Equal(t, 0, snap.Count)
}

func TestFetchWorks_ConfigErrors(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	t.Run("missing email", func(t *testing.T) {
		_, err := execute(t)
		require.Error(t, err)
		assert.Equal(t, ExitConfigError, exitCode(err))
	})

	t.Run("bad date", func(t *testing.T) {
		_, err := execute(t, "--email", "a@b.org", "--from", "yesterday")
		require.Error(t, err)
		assert.Equal(t, ExitConfigError, exitCode(err))
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := execute(t, "--bogus")
		require.Error(t, err)
		assert.Equal(t, ExitConfigError, exitCode(err))
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := execute(t, "--email", "a@b.org", "--config", "nope.yaml")
		require.Error(t, err)
		assert.Equal(t, ExitConfigError, exitCode(err))
	})
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitError, exitCode(errors.New("plain")))
	assert.Equal(t, ExitConfigError, exitCode(withExitCode(ExitConfigError, errors.New("cfg"))))
	assert.NoError(t, withExitCode(ExitError, nil))

	wrapped := withExitCode(ExitError, context.Canceled)
	assert.ErrorIs(t, wrapped, context.Canceled)
}
