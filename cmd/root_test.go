package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-feeds/internal/app"
	"github.com/JakeFAU/paper-feeds/internal/config"
)

func stubEnv(t *testing.T, cfg config.Config) {
	t.Helper()
	orig := loadEnv
	loadEnv = func(string) (*Env, error) {
		return &Env{Config: cfg, Logger: zap.NewNop()}, nil
	}
	t.Cleanup(func() { loadEnv = orig })
}

func memoryConfig(upstreamURL string) config.Config {
	return config.Config{
		Env:      "dev",
		Server:   config.ServerConfig{Port: 8000},
		DB:       config.DBConfig{DSN: app.MemoryDSN},
		API:      config.APIConfig{TimeoutSeconds: 5},
		Crossref: config.CrossrefConfig{BaseURL: upstreamURL + "/"},
		OpenAlex: config.OpenAlexConfig{BaseURL: upstreamURL + "/", BatchSize: 50},
		Fetch:    config.FetchConfig{PageRows: 100, Limit: 100, Concurrency: 1, QueueDepth: 1},
	}
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestMigrateRequiresPostgres(t *testing.T) {
	stubEnv(t, memoryConfig("http://unused"))

	_, err := execute("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a postgres")
}

func TestFetchRequiresISSN(t *testing.T) {
	stubEnv(t, memoryConfig("http://unused"))

	_, err := execute("fetch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestFetchUnknownJournal(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	stubEnv(t, memoryConfig(srv.URL))

	_, err := execute("fetch", "0000-0000", "--limit", "10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch 0000-0000")
	assert.Zero(t, calls, "unknown journals should not reach Crossref")
}

func TestLoadEnvInstallsGlobalLogger(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zap.NewNop()))

	env, err := loadEnv("")
	require.NoError(t, err)
	assert.Same(t, env.Logger, zap.L())
}

func TestLoadEnvFailureIsReported(t *testing.T) {
	_, err := execute("--config", "/nonexistent/paperfeeds.yaml", "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}
