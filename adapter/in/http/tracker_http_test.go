package http

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"reply_tracker/adapter/out/persistence"
	"reply_tracker/core/domain"
	"reply_tracker/core/port/in"
	"reply_tracker/pkg/apperr"
)

type fakeRunner struct {
	stages []string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, stage string) (*in.RunReport, error) {
	f.stages = append(f.stages, stage)
	if f.err != nil {
		return nil, f.err
	}
	report := &in.RunReport{RunID: "run-1", Stage: stage}
	if stage == in.StageClassify {
		report.Classify = &in.ClassifyReport{Approved: 1}
	} else {
		report.Match = &in.MatchReport{Stage: stage, Matched: 2}
	}
	return report, nil
}

func (f *fakeRunner) RunAll(ctx context.Context) ([]*in.RunReport, error) {
	var reports []*in.RunReport
	for _, s := range []string{in.StageThread, in.StageHeuristic, in.StageClassify} {
		r, err := f.Run(ctx, s)
		if err != nil {
			return reports, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

type fakeLogs struct {
	limit int
}

func (f *fakeLogs) RecentClassifierLogs(_ context.Context, limit int) ([]*domain.ClassifierLogEntry, error) {
	f.limit = limit
	return []*domain.ClassifierLogEntry{{ID: 1, ReplyID: 9, Type: domain.LogTypeSkip, Message: "empty"}}, nil
}

type fakeFlow struct {
	configured bool
	lastState  string
	token      *oauth2.Token
	err        error
}

func (f *fakeFlow) Configured() bool { return f.configured }

func (f *fakeFlow) AuthURL(state string) string {
	f.lastState = state
	return "https://accounts.example.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (f *fakeFlow) Exchange(context.Context, string) (*oauth2.Token, error) {
	return f.token, f.err
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, body io.Reader) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(body).Decode(&env))
	return env
}

func readBody(t *testing.T, body io.Reader) string {
	t.Helper()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(data)
}

func newTestApp(runner in.PipelineRunner, flow OAuthFlow, token string, checks map[string]PingFunc) (*fiber.App, *fakeLogs) {
	logs := &fakeLogs{}
	app := NewApp(ServerConfig{TriggerToken: token, TriggerRate: 1000, TriggerBurst: 100}, Handlers{
		Health: NewHealthHandler(checks),
		OAuth:  NewOAuthHandler(flow, persistence.NewMemoryOAuthStateStore()),
		Run:    NewRunHandler(runner, logs),
	})
	return app, logs
}

func TestLiveAndHealth(t *testing.T) {
	app, _ := newTestApp(&fakeRunner{}, &fakeFlow{}, "", nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, LiveText, readBody(t, resp.Body))

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestHealth_Stats(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(nil).WithStats("postgres", func() any { return map[string]int{"total_conns": 3} }).Register(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	var body struct {
		Stats map[string]map[string]int `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Stats["postgres"]["total_conns"])
}

func TestReady(t *testing.T) {
	healthy := func(context.Context) error { return nil }
	broken := func(context.Context) error { return errors.New("connection refused") }

	app, _ := newTestApp(&fakeRunner{}, &fakeFlow{}, "", map[string]PingFunc{"postgres": healthy, "redis": nil})
	resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	app, _ = newTestApp(&fakeRunner{}, &fakeFlow{}, "", map[string]PingFunc{"postgres": broken})
	resp, err = app.Test(httptest.NewRequest("GET", "/ready", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, readBody(t, resp.Body), "unhealthy: connection refused")
}

func TestRunEndpoints(t *testing.T) {
	tests := []struct {
		method string
		path   string
		stage  string
	}{
		{"GET", "/run-check", in.StageThread},
		{"POST", "/run-check", in.StageThread},
		{"GET", "/run-heuristic", in.StageHeuristic},
		{"POST", "/run-classify", in.StageClassify},
	}
	for _, tt := range tests {
		t.Run(tt.method+tt.path, func(t *testing.T) {
			runner := &fakeRunner{}
			app, _ := newTestApp(runner, &fakeFlow{}, "", nil)

			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusOK, resp.StatusCode)
			assert.Equal(t, []string{tt.stage}, runner.stages)

			env := decode(t, resp.Body)
			assert.True(t, env.Success)
			var report in.RunReport
			require.NoError(t, json.Unmarshal(env.Data, &report))
			assert.Equal(t, tt.stage, report.Stage)
			assert.Equal(t, "run-1", report.RunID)
		})
	}
}

func TestRunAllEndpoint(t *testing.T) {
	runner := &fakeRunner{}
	app, _ := newTestApp(runner, &fakeFlow{}, "", nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/run-all", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{in.StageThread, in.StageHeuristic, in.StageClassify}, runner.stages)
}

func TestRunEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"locked", apperr.Locked(in.StageThread), fiber.StatusConflict, apperr.CodeLocked},
		{"store", apperr.DatabaseError("find submissions", errors.New("down")), fiber.StatusInternalServerError, apperr.CodeDatabaseError},
		{"config", apperr.ConfigError("mailbox is not configured"), fiber.StatusServiceUnavailable, apperr.CodeConfigError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(&fakeRunner{err: tt.err}, &fakeFlow{}, "", nil)
			resp, err := app.Test(httptest.NewRequest("GET", "/run-check", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode(t, resp.Body).Error.Code)
		})
	}
}

func TestRunEndpoint_TriggerToken(t *testing.T) {
	runner := &fakeRunner{}
	app, _ := newTestApp(runner, &fakeFlow{}, "s3cret", nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/run-check", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, runner.stages)

	req := httptest.NewRequest("GET", "/run-check", nil)
	req.Header.Set("X-Trigger-Token", "s3cret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestClassifierLog(t *testing.T) {
	app, logs := newTestApp(&fakeRunner{}, &fakeFlow{}, "", nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/classifier-log?limit=5000", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, maxLogLimit, logs.limit)

	var entries []domain.ClassifierLogEntry
	require.NoError(t, json.Unmarshal(decode(t, resp.Body).Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LogTypeSkip, entries[0].Type)

	_, err = app.Test(httptest.NewRequest("GET", "/classifier-log", nil))
	require.NoError(t, err)
	assert.Equal(t, defaultLogLimit, logs.limit)
}

func TestOAuthFlow(t *testing.T) {
	flow := &fakeFlow{configured: true, token: &oauth2.Token{AccessToken: "a", RefreshToken: "1//refresh", Expiry: time.Now().Add(time.Hour)}}
	app, _ := newTestApp(&fakeRunner{}, flow, "", nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/auth", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	require.NotEmpty(t, flow.lastState)
	assert.Contains(t, resp.Header.Get("Location"), flow.lastState)

	callback := "/oauth2callback?code=abc&state=" + url.QueryEscape(flow.lastState)
	resp, err = app.Test(httptest.NewRequest("GET", callback, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp.Body), "1//refresh")

	// states are single use
	resp, err = app.Test(httptest.NewRequest("GET", callback, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOAuthCallback_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		flow   *fakeFlow
		query  string
		status int
	}{
		{"not configured", &fakeFlow{}, "?code=abc", fiber.StatusServiceUnavailable},
		{"denied", &fakeFlow{configured: true}, "?error=access_denied", fiber.StatusBadRequest},
		{"missing code", &fakeFlow{configured: true}, "?state=x", fiber.StatusBadRequest},
		{"unknown state", &fakeFlow{configured: true}, "?code=abc&state=forged", fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := newTestApp(&fakeRunner{}, tt.flow, "", nil)
			resp, err := app.Test(httptest.NewRequest("GET", "/oauth2callback"+tt.query, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
