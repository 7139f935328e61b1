package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/internal/classifier"
	"github.com/telhawk-systems/feedgen/internal/config"
	"github.com/telhawk-systems/feedgen/internal/models"
	"github.com/telhawk-systems/feedgen/internal/repository"
	"github.com/telhawk-systems/feedgen/internal/sink"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.Load("")
	require.NoError(t, err)
	c.Store.Backend = config.BackendMemory
	c.Poller.Checkpoint = config.BackendMemory
	require.NoError(t, c.Validate())
	return c
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string]bool{
		"ingest":  false,
		"poll":    false,
		"serve":   false,
		"run":     false,
		"migrate": false,
		"config":  false,
	}

	for _, c := range rootCmd.Commands() {
		name := strings.Fields(c.Use)[0]
		if _, ok := expected[name]; ok {
			expected[name] = true
		}
	}

	for name, found := range expected {
		assert.True(t, found, "expected command %q to be registered", name)
	}
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	t.Setenv("FEEDGEN_DATABASE_URL", "postgres://feedgen:hunter2@db:5432/feedgen")
	t.Setenv("FEEDGEN_NATS_TOKEN", "s3cret-token")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, Execute())

	printed := out.String()
	assert.Contains(t, printed, "port: 8000")
	assert.Contains(t, printed, "xxxxx")
	assert.NotContains(t, printed, "hunter2")
	assert.NotContains(t, printed, "s3cret-token")
}

func TestMigrateCommand_RejectsUnknownDirection(t *testing.T) {
	rootCmd.SetArgs([]string{"migrate", "sideways"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	assert.Error(t, Execute())
}

func TestApp_MemoryWiring(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, memoryConfig(t), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	p, err := a.poller(ctx)
	require.NoError(t, err)
	assert.NotNil(t, p)

	srv, err := a.httpServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, ":8000", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health.OK)
	assert.Equal(t, "memory", health.DB)
}

func TestApp_Classifier(t *testing.T) {
	c := memoryConfig(t)
	a := &app{cfg: c, logger: logging.Discard()}

	assert.IsType(t, classifier.AcceptAll{}, a.classifier())

	c.Classifier.Type = config.ClassifierKeyword
	assert.IsType(t, &classifier.Keyword{}, a.classifier())

	c.Classifier.Type = config.ClassifierHTTP
	c.Classifier.URL = "http://classifier.local/classify"
	assert.IsType(t, &classifier.HTTP{}, a.classifier())
}

func TestApp_Sink(t *testing.T) {
	c := memoryConfig(t)
	a := &app{cfg: c, logger: logging.Discard()}

	s, err := a.sink()
	require.NoError(t, err)
	assert.IsType(t, &sink.Log{}, s)

	c.Sink.Types = []string{config.SinkLog, config.SinkLog}
	s, err = a.sink()
	require.NoError(t, err)
	assert.Len(t, s.(sink.Multi), 2)

	c.Sink.Types = []string{"kafka"}
	_, err = a.sink()
	assert.Error(t, err)
}

func TestApp_RedisBackedComponents(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c := memoryConfig(t)
	c.Redis.URL = "redis://" + mr.Addr()
	c.Poller.Checkpoint = config.BackendRedis
	c.RateLimit.Enabled = true
	c.RateLimit.Requests = 1
	c.RateLimit.Window = time.Minute

	a, err := newApp(ctx, c, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	checkpoints, err := a.checkpoints(ctx)
	require.NoError(t, err)
	assert.IsType(t, &repository.RedisCheckpointStore{}, checkpoints)

	limiter, err := a.limiter(ctx)
	require.NoError(t, err)

	allowed, err := limiter.Allow(ctx, "ip:198.51.100.7")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "ip:198.51.100.7")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestApp_PostgresCheckpointsNeedPostgresStore(t *testing.T) {
	c := memoryConfig(t)
	c.Poller.Checkpoint = config.BackendPostgres
	a, err := newApp(context.Background(), c, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.checkpoints(context.Background())
	assert.Error(t, err)
}

func TestServeHTTP_StopsOnCancel(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serveHTTP(ctx, srv, time.Second, logging.Discard()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveHTTP did not return after cancel")
	}
}

func TestRunAll_PollerOnly(t *testing.T) {
	runNoIngest, runNoServe = true, true
	t.Cleanup(func() { runNoIngest, runNoServe = false, false })

	c := memoryConfig(t)
	c.Poller.Interval = 10 * time.Millisecond
	c.Sink.Types = []string{config.SinkLog}

	a, err := newApp(context.Background(), c, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	_, err = a.store.InsertIfAbsent(context.Background(), &models.Event{
		URI:        "at://did:plc:alice/app.bsky.feed.post/1",
		DID:        "did:plc:alice",
		Collection: models.DefaultCollection,
		RKey:       "1",
		TimeUS:     10,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	assert.NoError(t, runAll(ctx, a))
}
