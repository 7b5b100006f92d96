package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autostats/config"
	"autostats/models"
	"autostats/services"
)

type fakeRunner struct {
	result *models.RunResult
	err    error
	calls  int
}

func (r *fakeRunner) Run(context.Context) (*models.RunResult, error) {
	r.calls++
	return r.result, r.err
}

type fakeHistory struct {
	enabled bool
	rows    []models.RowRecord
	latest  map[string]*models.RowRecord
	counts  map[string]int64
	err     error
	network string
	start   time.Time
	end     time.Time
}

func (f *fakeHistory) Enabled() bool { return f.enabled }

func (f *fakeHistory) GetRowsRange(_ context.Context, network string, start, end time.Time) ([]models.RowRecord, error) {
	f.network, f.start, f.end = network, start, end
	return f.rows, f.err
}

func (f *fakeHistory) GetLatestRow(_ context.Context, network string) (*models.RowRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.latest[network], nil
}

func (f *fakeHistory) CountRows(context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

func newTestServer(t *testing.T, runner services.Runner, history RowHistory) (*echo.Echo, *Handler) {
	t.Helper()
	cfg := config.Default()
	cache := services.NewCacheService(cfg)
	t.Cleanup(cache.Stop)

	h := NewHandler(cfg, cache, runner, history)
	e := echo.New()
	h.Register(e)
	return e, h
}

func do(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCollect(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     *models.RunResult
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "updated echoes next_run",
			body:       `{"next_run":"2024-05-03T00:00:00Z"}`,
			result:     &models.RunResult{Status: models.RunSuccess, Message: services.MessageUpdated},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Data updated successfully","nextRun":"2024-05-03T00:00:00Z"}`,
		},
		{
			name:       "skipped without body",
			result:     &models.RunResult{Status: models.RunSkipped, Message: services.MessageSkipped},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"Data was recently updated. Skipping this run.","nextRun":null}`,
		},
		{
			name:       "run in progress",
			err:        services.ErrRunInProgress,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "run failed",
			err:        errors.New("navigation failed"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"navigation failed"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: tt.result, err: tt.err}
			e, _ := newTestServer(t, runner, nil)

			rec := do(e, http.MethodPost, "/api/collect", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, 1, runner.calls)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	e, h := newTestServer(t, &fakeRunner{}, nil)

	rec := do(e, http.MethodGet, "/api/stats/devnet", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, "/api/stats/mainnet", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	nodes := "1234"
	h.Cache.SetLatestSnapshot(&models.Snapshot{
		Network:      "mainnet",
		Sheet:        "mainnet",
		Stats:        models.NetworkStats{NodeCount: &nodes},
		SpacePledged: big.NewInt(1 << 50),
	})

	rec = do(e, http.MethodGet, "/api/stats/mainnet", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "mainnet", snap.Network)
	assert.Equal(t, "1234", *snap.Stats.NodeCount)
	assert.Equal(t, 0, big.NewInt(1<<50).Cmp(snap.SpacePledged))

	rec = do(e, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Contains(t, all, "mainnet")
	assert.NotContains(t, all, "chronos")
}

func TestGetStats_FallsBackToMirror(t *testing.T) {
	ts := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	nodes := "980"
	history := &fakeHistory{
		enabled: true,
		latest: map[string]*models.RowRecord{
			"chronos": {
				Network:      "chronos",
				Sheet:        "Chronos",
				Timestamp:    ts,
				Stats:        models.NetworkStats{NodeCount: &nodes},
				SpacePledged: "1152921504606846976",
				Row:          []string{"2024-05-02T10:00:00.000Z", "980"},
			},
		},
	}
	e, h := newTestServer(t, &fakeRunner{}, history)

	rec := do(e, http.MethodGet, "/api/stats/chronos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "Chronos", snap.Sheet)
	assert.True(t, ts.Equal(snap.Timestamp))
	assert.Equal(t, "1152921504606846976", snap.SpacePledged.String())

	// the mirrored row is cached for the next read
	cached, found := h.Cache.GetLatestSnapshot("chronos")
	require.True(t, found)
	assert.Equal(t, "980", *cached.Stats.NodeCount)

	rec = do(e, http.MethodGet, "/api/stats/mainnet", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStats_MirrorErrorIsNotFound(t *testing.T) {
	e, _ := newTestServer(t, &fakeRunner{}, &fakeHistory{enabled: true, err: errors.New("boom")})
	rec := do(e, http.MethodGet, "/api/stats/chronos", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		e, _ := newTestServer(t, &fakeRunner{}, &fakeHistory{})
		rec := do(e, http.MethodGet, "/api/history/mainnet", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("nil history", func(t *testing.T) {
		e, _ := newTestServer(t, &fakeRunner{}, nil)
		rec := do(e, http.MethodGet, "/api/history/mainnet", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unknown network", func(t *testing.T) {
		e, _ := newTestServer(t, &fakeRunner{}, &fakeHistory{enabled: true})
		rec := do(e, http.MethodGet, "/api/history/devnet", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("window", func(t *testing.T) {
		history := &fakeHistory{
			enabled: true,
			rows:    []models.RowRecord{{Network: "chronos", Sheet: "Chronos"}},
		}
		e, _ := newTestServer(t, &fakeRunner{}, history)

		rec := do(e, http.MethodGet, "/api/history/chronos?hours=48", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "chronos", history.network)
		assert.Equal(t, 48*time.Hour, history.end.Sub(history.start))

		var rows []models.RowRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
		assert.Len(t, rows, 1)
	})

	t.Run("bad hours falls back to a day", func(t *testing.T) {
		history := &fakeHistory{enabled: true}
		e, _ := newTestServer(t, &fakeRunner{}, history)

		rec := do(e, http.MethodGet, "/api/history/chronos?hours=abc", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 24*time.Hour, history.end.Sub(history.start))
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("storage error", func(t *testing.T) {
		e, _ := newTestServer(t, &fakeRunner{}, &fakeHistory{enabled: true, err: errors.New("boom")})
		rec := do(e, http.MethodGet, "/api/history/chronos", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetStatus(t *testing.T) {
	e, h := newTestServer(t, &fakeRunner{}, nil)
	next := time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)
	h.NextRun = func() time.Time { return next }
	h.Cache.SetLastRun(&models.RunResult{Status: models.RunSkipped, Message: services.MessageSkipped})

	rec := do(e, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Status)
	assert.Equal(t, []string{"chronos", "mainnet"}, resp.Networks)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, models.RunSkipped, resp.LastRun.Status)
	require.NotNil(t, resp.NextRun)
	assert.True(t, next.Equal(*resp.NextRun))
	assert.Equal(t, "in-memory", resp.Cache["mode"])
	assert.Nil(t, resp.Mirrored)
}

func TestGetStatus_MirroredRowCounts(t *testing.T) {
	history := &fakeHistory{enabled: true, counts: map[string]int64{"chronos": 12, "mainnet": 9}}
	e, _ := newTestServer(t, &fakeRunner{}, history)

	rec := do(e, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, map[string]int64{"chronos": 12, "mainnet": 9}, resp.Mirrored)
}

func TestHealthAndCacheStatus(t *testing.T) {
	e, _ := newTestServer(t, &fakeRunner{}, nil)

	rec := do(e, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(e, http.MethodGet, "/cache/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "in-memory", body["mode"])
	assert.Equal(t, true, body["healthy"])
}
