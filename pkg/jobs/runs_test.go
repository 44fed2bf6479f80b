package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gostratus/pkg/platform"
)

func TestRunState_Terminal(t *testing.T) {
	tests := []struct {
		state RunState
		want  bool
	}{
		{RunStateQueued, false},
		{RunStateRunning, false},
		{RunStateSucceeded, true},
		{RunStateFailed, true},
		{RunStateCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.Terminal())
		})
	}
}

func TestRunNow(t *testing.T) {
	var got runNowRequest
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathRunNow, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"run_id": 777}`))
	}))

	run, err := svc.RunNow(context.Background(), 4321, RunNowOptions{
		Parameters: map[string]string{"date": "2026-08-25"},
	})
	require.NoError(t, err)

	// The trigger returns immediately: the run is queued, not finished.
	assert.Equal(t, int64(777), run.RunID)
	assert.Equal(t, int64(4321), run.JobID)
	assert.Equal(t, RunStateQueued, run.State)
	assert.False(t, run.State.Terminal())

	assert.Equal(t, int64(4321), got.JobID)
	assert.Equal(t, map[string]string{"date": "2026-08-25"}, got.Parameters)
	assert.Empty(t, got.IdempotencyToken)
}

func TestRunNow_IdempotencyToken(t *testing.T) {
	var got runNowRequest
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"run_id": 778}`))
	}))

	_, err := svc.RunNow(context.Background(), 4321, RunNowOptions{
		IdempotencyToken: "2e0eeb2f-5013-4a49-8a5d-9c8ba0b6d8f3",
	})
	require.NoError(t, err)
	assert.Equal(t, "2e0eeb2f-5013-4a49-8a5d-9c8ba0b6d8f3", got.IdempotencyToken)
}

func TestRunNowByName(t *testing.T) {
	listing := ListPage{Jobs: []Job{
		mkJob(10, "unique"),
		mkJob(11, "dup"),
		mkJob(12, "dup"),
	}, HasMore: false}

	newSvc := func(t *testing.T, runNowCalls *atomic.Int64) *Service {
		return testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case pathList:
				require.NoError(t, json.NewEncoder(w).Encode(listing))
			case pathRunNow:
				runNowCalls.Add(1)
				_, _ = w.Write([]byte(`{"run_id": 900}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
	}

	t.Run("unique name runs the matching job", func(t *testing.T) {
		var calls atomic.Int64
		svc := newSvc(t, &calls)
		run, err := svc.RunNowByName(context.Background(), "unique", RunNowOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(10), run.JobID)
		assert.Equal(t, RunStateQueued, run.State)
		assert.NotZero(t, run.RunID)
	})

	t.Run("unknown name is not found, nothing runs", func(t *testing.T) {
		var calls atomic.Int64
		svc := newSvc(t, &calls)
		_, err := svc.RunNowByName(context.Background(), "absent", RunNowOptions{})
		require.Error(t, err)
		assert.True(t, platform.IsNotFound(err))
		assert.Equal(t, int64(0), calls.Load())
	})

	t.Run("ambiguous name fails loudly, nothing runs", func(t *testing.T) {
		var calls atomic.Int64
		svc := newSvc(t, &calls)
		_, err := svc.RunNowByName(context.Background(), "dup", RunNowOptions{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrAmbiguousName))
		assert.Equal(t, int64(0), calls.Load(), "an ambiguous name must never trigger an arbitrary job")
	})
}

func TestGetRun(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathRunsGet, r.URL.Path)
		assert.Equal(t, "777", r.URL.Query().Get("run_id"))
		_, _ = w.Write([]byte(`{
			"run_id": 777,
			"job_id": 4321,
			"state": "running",
			"run_page_url": "https://acme.cloud.example.com/#job/4321/run/777",
			"start_time": 1756100000000
		}`))
	}))

	run, err := svc.GetRun(context.Background(), 777)
	require.NoError(t, err)
	assert.Equal(t, int64(777), run.RunID)
	assert.Equal(t, int64(4321), run.JobID)
	assert.Equal(t, RunStateRunning, run.State)
	assert.NotEmpty(t, run.RunPageURL)
	assert.Zero(t, run.EndTime)
}

func TestGetRun_NotFound(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "Run 1 does not exist."}`))
	}))

	_, err := svc.GetRun(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, platform.IsNotFound(err))
}

func TestListRuns_Pagination(t *testing.T) {
	pages := map[string]RunsPage{
		"":   {Runs: []Run{{RunID: 3, JobID: 1, State: RunStateRunning}, {RunID: 2, JobID: 1, State: RunStateSucceeded}}, HasMore: true, NextPageToken: "p2"},
		"p2": {Runs: []Run{{RunID: 1, JobID: 1, State: RunStateFailed}}, HasMore: false},
	}
	var gotJobID string
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathRunsList, r.URL.Path)
		gotJobID = r.URL.Query().Get("job_id")
		page, ok := pages[r.URL.Query().Get("page_token")]
		require.True(t, ok)
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))

	var ids []int64
	it := svc.ListRuns(ListRunsOptions{JobID: 1})
	for it.Next(context.Background()) {
		ids = append(ids, it.Run().RunID)
	}
	require.NoError(t, it.Err())

	assert.Equal(t, []int64{3, 2, 1}, ids)
	assert.Equal(t, "1", gotJobID)
}

func TestListRuns_NoJobFilter(t *testing.T) {
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, r.URL.Query().Has("job_id"))
		_, _ = w.Write([]byte(`{"runs": [], "has_more": false}`))
	}))

	it := svc.ListRuns(ListRunsOptions{})
	assert.False(t, it.Next(context.Background()))
	require.NoError(t, it.Err())
}

func TestListRunsByName_Ambiguous(t *testing.T) {
	listing := ListPage{Jobs: []Job{mkJob(11, "dup"), mkJob(12, "dup")}, HasMore: false}
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathList, r.URL.Path)
		require.NoError(t, json.NewEncoder(w).Encode(listing))
	}))

	_, err := svc.ListRunsByName(context.Background(), "dup", ListRunsOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousName))
}

func TestListRunsByName_ResolvesJobID(t *testing.T) {
	var gotJobID string
	svc := testService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathList:
			require.NoError(t, json.NewEncoder(w).Encode(ListPage{Jobs: []Job{mkJob(42, "only")}}))
		case pathRunsList:
			gotJobID = r.URL.Query().Get("job_id")
			_, _ = w.Write([]byte(`{"runs": [{"run_id": 5, "job_id": 42, "state": "succeeded"}], "has_more": false}`))
		}
	}))

	it, err := svc.ListRunsByName(context.Background(), "only", ListRunsOptions{})
	require.NoError(t, err)
	require.True(t, it.Next(context.Background()))
	assert.Equal(t, int64(5), it.Run().RunID)
	assert.Equal(t, "42", gotJobID)
}
