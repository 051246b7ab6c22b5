package jobs_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chambers-pm/chambers/internal/observability"
	"github.com/chambers-pm/chambers/jobs"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type syncerFunc func(ctx context.Context) (int64, error)

func (f syncerFunc) SyncSuperadmin(ctx context.Context) (int64, error) { return f(ctx) }

type purgerFunc func(ctx context.Context, now time.Time) (int64, error)

func (f purgerFunc) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return f(ctx, now)
}

func TestSuperadminSyncHandler(t *testing.T) {
	calls := 0
	handler := jobs.SuperadminSyncHandler(syncerFunc(func(context.Context) (int64, error) {
		calls++
		return 3, nil
	}), quiet, observability.NewMetrics())

	task, err := jobs.NewSuperadminSyncTask("permission_added")
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, 1, calls)
}

func TestSuperadminSyncHandlerPropagatesFailure(t *testing.T) {
	metrics := observability.NewMetrics()
	handler := jobs.SuperadminSyncHandler(syncerFunc(func(context.Context) (int64, error) {
		return 0, errors.New("db down")
	}), quiet, metrics)

	task, err := jobs.NewSuperadminSyncTask("cron")
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `chambers_jobs_total{status="failure",task="rbac:superadmin_sync"} 1`)
}

func TestSuperadminSyncHandlerSkipsMalformedPayload(t *testing.T) {
	handler := jobs.SuperadminSyncHandler(syncerFunc(func(context.Context) (int64, error) {
		t.Fatal("sync must not run")
		return 0, nil
	}), quiet, nil)

	err := handler(context.Background(), asynq.NewTask(jobs.TaskSuperadminSync, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSessionPurgeHandlerUsesClock(t *testing.T) {
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	var seen time.Time
	handler := jobs.SessionPurgeHandler(purgerFunc(func(_ context.Context, now time.Time) (int64, error) {
		seen = now
		return 12, nil
	}), func() time.Time { return fixed }, quiet, nil)

	require.NoError(t, handler(context.Background(), jobs.NewSessionPurgeTask()))
	assert.Equal(t, fixed, seen)
}

func TestNewWorkerValidatesConfiguration(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}

	_, err := jobs.NewWorker(jobs.WorkerConfig{RedisOpts: opts, Logger: quiet})
	require.Error(t, err)

	handler := jobs.SessionPurgeHandler(purgerFunc(func(context.Context, time.Time) (int64, error) { return 0, nil }), nil, quiet, nil)
	_, err = jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: opts,
		Logger:    quiet,
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskSessionPurge, Handler: handler}},
		Cron:      []jobs.CronRegistration{{Spec: "not a cron", Task: jobs.NewSessionPurgeTask()}},
	})
	require.Error(t, err)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: opts,
		Logger:    quiet,
		Handlers:  []jobs.TaskHandler{{Type: jobs.TaskSessionPurge, Handler: handler}},
		Cron:      []jobs.CronRegistration{{Spec: "@every 1h", Task: jobs.NewSessionPurgeTask()}},
	})
	require.NoError(t, err)
	require.NotNil(t, worker)
}

func TestEnqueueSuperadminSync(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.EnqueueSuperadminSync(context.Background()))

	pending, err := mr.List("asynq:{default}:pending")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func TestHealthEndpoint(t *testing.T) {
	serve := func(h *jobs.Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}

	rr := serve(jobs.NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Failed: 1}}, quiet))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(4), body["pending"])

	rr = serve(jobs.NewHandler(stubInspector{err: errors.New("redis gone")}, quiet))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(jobs.NewHandler(nil, quiet))
	assert.Equal(t, http.StatusOK, rr.Code)
}
