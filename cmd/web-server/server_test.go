package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unklstewy/intercept-sim/internal/auth"
	"github.com/unklstewy/intercept-sim/internal/db"
	"github.com/unklstewy/intercept-sim/pkg/batch"
	"github.com/unklstewy/intercept-sim/pkg/config"
	"github.com/unklstewy/intercept-sim/pkg/engagement"
	"github.com/unklstewy/intercept-sim/pkg/guidance"
)

// memory implements every store the server needs.
type memory struct {
	mu          sync.Mutex
	users       map[string]*db.User
	engagements map[uuid.UUID]*engagement.Result
	batches     map[uuid.UUID]*db.BatchRecord
	scenarios   map[string]*db.Scenario
}

func newMemory() *memory {
	return &memory{
		users:       map[string]*db.User{},
		engagements: map[uuid.UUID]*engagement.Result{},
		batches:     map[uuid.UUID]*db.BatchRecord{},
		scenarios:   map[string]*db.Scenario{},
	}
}

func (m *memory) GetByUsername(_ context.Context, username string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[username]; ok {
		return u, nil
	}
	return nil, db.ErrUserNotFound
}

func (m *memory) UpdateLastLogin(context.Context, int) error { return nil }

type engagementMemory struct{ *memory }

func (m engagementMemory) Save(_ context.Context, r *engagement.Result, _ *uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engagements[r.ID] = r
	return nil
}

func (m engagementMemory) Get(_ context.Context, id uuid.UUID) (*engagement.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.engagements[id]; ok {
		return r, nil
	}
	return nil, db.ErrEngagementNotFound
}

type batchMemory struct{ *memory }

func (m batchMemory) Save(_ context.Context, rep *batch.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches[rep.ID] = &db.BatchRecord{
		ID:       rep.ID,
		Strategy: rep.Strategy.String(),
		Runs:     len(rep.Runs),
		Workers:  rep.Workers,
		Serial:   rep.Serial,
		Summary:  rep.Summary,
		RunList:  rep.Runs,
	}
	return nil
}

func (m batchMemory) Get(_ context.Context, id uuid.UUID) (*db.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.batches[id]; ok {
		return r, nil
	}
	return nil, db.ErrBatchNotFound
}

type scenarioMemory struct{ *memory }

func (m scenarioMemory) Create(_ context.Context, s *db.Scenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scenarios[s.Name]; ok {
		return db.ErrScenarioExists
	}
	s.ID = len(m.scenarios) + 1
	m.scenarios[s.Name] = s
	return nil
}

func (m scenarioMemory) GetByName(_ context.Context, name string) (*db.Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scenarios[name]; ok {
		return s, nil
	}
	return nil, db.ErrScenarioNotFound
}

func (m scenarioMemory) List(context.Context) ([]*db.Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*db.Scenario
	for _, s := range m.scenarios {
		out = append(out, s)
	}
	return out, nil
}

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	mem    *memory
	tokens map[string]string
}

// headOn is a short legacy engagement that intercepts within seconds.
func headOn() config.ScenarioConfig {
	sc := config.DefaultScenario()
	sc.Target.InitialPosition = mgl64.Vec3{0, 0, -60000}
	sc.Target.FlightPathDeg = 0
	sc.Target.Maneuver.AoADeg = 0
	sc.Salvo.LaunchPosition = mgl64.Vec3{120000, 0, -60000}
	sc.Salvo.LaunchOffsets = []float64{0}
	return sc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Scenario = headOn()
	cfg.Batch.Workers = 1
	cfg.Server.MaxBatchRuns = 5

	authSvc := auth.NewService(auth.Config{JWTSecret: "test", BCryptCost: bcrypt.MinCost})
	hash, err := authSvc.HashPassword("pw")
	require.NoError(t, err)

	mem := newMemory()
	env := &testEnv{mem: mem, tokens: map[string]string{}}
	for i, role := range []string{auth.RoleAdmin, auth.RoleAnalyst, auth.RoleViewer} {
		mem.users[role] = &db.User{ID: i + 1, Username: role, PasswordHash: hash, Role: role, IsActive: true}
		token, err := authSvc.GenerateToken(i+1, role, role)
		require.NoError(t, err)
		env.tokens[role] = token
	}

	env.srv = NewServer(context.Background(), cfg, Stores{
		Users:       mem,
		Engagements: engagementMemory{mem},
		Batches:     batchMemory{mem},
		Scenarios:   scenarioMemory{mem},
	}, authSvc)
	env.http = httptest.NewServer(env.srv.Router())
	t.Cleanup(func() {
		env.http.Close()
		env.srv.Wait()
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, role string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[role])
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "analyst", "password": "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Token string  `json:"token"`
		User  db.User `json:"user"`
	}
	decode(t, resp, &body)
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, auth.RoleAnalyst, body.User.Role)

	resp = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"username": "analyst", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/scenarios", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/scenarios", auth.RoleViewer, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleViewer, runRequest{})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "viewers cannot run engagements")

	resp = env.do(t, http.MethodGet, "/api/v1/auth/me", auth.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me map[string]interface{}
	decode(t, resp, &me)
	assert.Equal(t, auth.RoleAdmin, me["role"])
}

func TestRunEngagement(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleAnalyst, runRequest{Strategy: "legacy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result engagement.Result
	decode(t, resp, &result)
	assert.Equal(t, engagement.OutcomeIntercepted, result.Outcome)
	assert.Equal(t, guidance.StrategyLegacy, result.Strategy)
	assert.Empty(t, result.History, "history only when recording")

	resp = env.do(t, http.MethodGet, "/api/v1/engagements/"+result.ID.String(), auth.RoleViewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored engagement.Result
	decode(t, resp, &stored)
	assert.Equal(t, result.ID, stored.ID)

	resp = env.do(t, http.MethodGet, "/api/v1/engagements/"+uuid.NewString(), auth.RoleViewer, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunEngagementOverlay(t *testing.T) {
	env := newTestEnv(t)

	var seen config.ScenarioConfig
	env.srv.engage = func(sc config.ScenarioConfig, st guidance.Strategy, _ ...engagement.Option) (*engagement.Result, error) {
		seen = sc
		return &engagement.Result{ID: uuid.New(), Strategy: st, HitBy: -1}, nil
	}

	body := map[string]interface{}{
		"strategy": "phase-based",
		"config":   map[string]interface{}{"launch_delay": 150, "salvo": map[string]interface{}{"launch_offsets": []float64{1, 2}}},
	}
	resp := env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleAnalyst, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 150.0, seen.LaunchDelay)
	assert.Equal(t, []float64{1, 2}, seen.Salvo.LaunchOffsets)
	assert.Equal(t, []float64{0}, env.srv.cfg.Scenario.Salvo.LaunchOffsets, "overlay must not touch the server default")
}

func TestRunEngagementRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleAnalyst,
		map[string]interface{}{"config": map[string]interface{}{"time_step": -1}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleAnalyst, runRequest{Strategy: "random"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleAnalyst, runRequest{Scenario: "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScenarios(t *testing.T) {
	env := newTestEnv(t)

	create := map[string]interface{}{
		"name":        "late-launch",
		"description": "salvo launched after the run ends",
		"config":      map[string]interface{}{"launch_delay": 150},
	}
	resp := env.do(t, http.MethodPost, "/api/v1/scenarios", auth.RoleAnalyst, create)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/scenarios", auth.RoleAnalyst, create)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/scenarios/late-launch", auth.RoleViewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sc db.Scenario
	decode(t, resp, &sc)
	assert.Equal(t, 150.0, sc.Config.LaunchDelay)
	require.NotNil(t, sc.CreatedBy)
	assert.Equal(t, 2, *sc.CreatedBy)

	resp = env.do(t, http.MethodPost, "/api/v1/engagements", auth.RoleAnalyst, runRequest{Scenario: "late-launch", Strategy: "legacy"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result engagement.Result
	decode(t, resp, &result)
	assert.Equal(t, engagement.OutcomeTimedOut, result.Outcome)
}

func TestBatchLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/batches", auth.RoleAnalyst, runRequest{Strategy: "legacy", Runs: 2})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var job batchJob
	decode(t, resp, &job)
	assert.Equal(t, 2, job.Total)

	require.Eventually(t, func() bool {
		j, ok := env.srv.jobs.get(job.ID)
		return ok && j.Status != jobRunning
	}, 30*time.Second, 20*time.Millisecond)

	resp = env.do(t, http.MethodGet, "/api/v1/batches/"+job.ID.String(), auth.RoleViewer, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec db.BatchRecord
	decode(t, resp, &rec)
	assert.Equal(t, job.ID, rec.ID)
	assert.Equal(t, 2, rec.Summary.Runs)
	assert.Equal(t, 0, rec.Summary.Failed)

	resp = env.do(t, http.MethodPost, "/api/v1/batches", auth.RoleAnalyst, runRequest{Runs: 50})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/batches/not-a-uuid", auth.RoleViewer, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") +
		"/api/v1/engagements/stream?strategy=legacy&stride=50&token=" + env.tokens[auth.RoleAnalyst]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var start struct {
		Type string      `json:"type"`
		Data streamStart `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&start))
	assert.Equal(t, msgStart, start.Type)
	assert.Equal(t, 50, start.Data.Stride)
	assert.Greater(t, start.Data.Frames, 0)

	frames := 0
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgFrame {
			frames++
			continue
		}
		require.Equal(t, msgResult, msg.Type)
		var result engagement.Result
		require.NoError(t, json.Unmarshal(msg.Data, &result))
		assert.Equal(t, engagement.OutcomeIntercepted, result.Outcome)
		assert.Empty(t, result.History)
		break
	}
	assert.Equal(t, start.Data.Frames, frames)
}

func TestStreamRequiresAnalyst(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") +
		"/api/v1/engagements/stream?token=" + env.tokens[auth.RoleViewer]
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFrameInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), frameInterval(10, 0.01, 0), "speed 0 streams unpaced")
	assert.Equal(t, 100*time.Millisecond, frameInterval(10, 0.01, 1))
	assert.Equal(t, 50*time.Millisecond, frameInterval(10, 0.01, 2))
	assert.Equal(t, time.Duration(0), frameInterval(10, 0.01, 1e12), "sub-nanosecond pauses are dropped")
	assert.Equal(t, time.Duration(0), frameInterval(10, 0.01, math.Inf(1)))
	assert.Equal(t, maxFramePause, frameInterval(10, 0.01, 1e-12))
}

func TestStreamRejectsBadSpeed(t *testing.T) {
	env := newTestEnv(t)
	for _, speed := range []string{"-1", "NaN", "Inf", "+Inf", "fast"} {
		t.Run(speed, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(env.http.URL, "http") +
				"/api/v1/engagements/stream?strategy=legacy&speed=" + speed + "&token=" + env.tokens[auth.RoleAnalyst]
			_, resp, err := websocket.DefaultDialer.Dial(url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestStreamHugeSpeedIsUnpaced(t *testing.T) {
	env := newTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") +
		"/api/v1/engagements/stream?strategy=legacy&stride=100&speed=1e12&token=" + env.tokens[auth.RoleAnalyst]
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	for {
		var msg struct {
			Type string `json:"type"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgResult {
			break
		}
	}
}
