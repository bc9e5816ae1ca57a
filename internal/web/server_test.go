package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ssuji15/scriptd/internal/jobstore"
	"github.com/ssuji15/scriptd/internal/runner"
	"github.com/ssuji15/scriptd/internal/scheduler"
	jobservice "github.com/ssuji15/scriptd/internal/service/job_service"
	"github.com/ssuji15/scriptd/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv  *httptest.Server
	pool *scheduler.Pool
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := jobstore.NewStore(filepath.Join(t.TempDir(), "jobs"))
	require.NoError(t, err)
	pool, err := scheduler.NewPool(2)
	require.NoError(t, err)

	svc := jobservice.NewJobService(store, pool, runner.NewRunner(runner.WithTempDir(t.TempDir())), jobservice.Settings{
		InterpreterPath: "/bin/sh",
		Timeout:         5 * time.Second,
		Variables:       map[string]string{"name": "world"},
	}, nil, nil, nil)

	srv := httptest.NewServer(NewServer(svc).Router())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	return &testEnv{srv: srv, pool: pool}
}

func (e *testEnv) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func (e *testEnv) submit(t *testing.T, script string) (int, string) {
	t.Helper()
	resp, err := http.Post(e.srv.URL+"/script", "text/plain", strings.NewReader(script))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, string(b)
	}
	var out submitResponse
	require.NoError(t, json.Unmarshal(b, &out))
	return resp.StatusCode, out.ID
}

func (e *testEnv) waitCompleted(t *testing.T, id string) model.Status {
	t.Helper()
	var st model.Status
	require.Eventually(t, func() bool {
		code, body := e.get(t, "/job/"+id+"/status")
		if code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal([]byte(body), &st))
		return st.Completed()
	}, 15*time.Second, 25*time.Millisecond)
	return st
}

func TestSubmitAndFetchArtifacts(t *testing.T) {
	env := newTestEnv(t)

	code, id := env.submit(t, "echo hello {{name}}\nprintf '[1,2,3]' > '{{output_file}}'\n")
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, id)

	st := env.waitCompleted(t, id)
	assert.False(t, st.Error)

	code, body := env.get(t, "/job/"+id+"/output")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello world\n", body)

	code, body = env.get(t, "/job/"+id+"/data")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, "[1,2,3]", body)

	code, body = env.get(t, "/job/"+id+"/error")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, body)

	code, body = env.get(t, "/job")
	require.Equal(t, http.StatusOK, code)
	var jobs []model.Job
	require.NoError(t, json.Unmarshal([]byte(body), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"unknown status", "/job/nope/status", http.StatusNotFound},
		{"unknown data", "/job/nope/data", http.StatusNotFound},
		{"unknown output", "/job/nope/output", http.StatusNotFound},
		{"unknown error", "/job/nope/error", http.StatusNotFound},
		{"unknown route", "/job/nope/other", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := env.get(t, tt.path)
			assert.Equal(t, tt.status, code)
		})
	}
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)

	code, _ := env.submit(t, "   \n")
	assert.Equal(t, http.StatusBadRequest, code)

	require.NoError(t, env.pool.Shutdown(t.Context()))
	code, _ = env.submit(t, "echo late")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestDataMissingWhileFailed(t *testing.T) {
	env := newTestEnv(t)

	_, id := env.submit(t, "echo nope >&2\n")
	st := env.waitCompleted(t, id)
	assert.True(t, st.Error)

	code, _ := env.get(t, "/job/"+id+"/data")
	assert.Equal(t, http.StatusNotFound, code)

	code, body := env.get(t, "/job/"+id+"/error")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "nope\n", body)
}
