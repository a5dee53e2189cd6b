package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/config"
	"support-agent/internal/domain"
	"support-agent/internal/integrations/gemini"
	"support-agent/internal/integrations/openai"
	"support-agent/internal/repository"
)

func TestNewRootCmd(t *testing.T) {
	cmd := NewRootCmd()
	require.Equal(t, "support-agent", cmd.Use)
	require.NotEmpty(t, cmd.Short)
	require.NotEmpty(t, cmd.Long)

	for _, name := range []string{"config", "log-level"} {
		require.NotNil(t, cmd.PersistentFlags().Lookup(name), "--%s flag not found", name)
	}
	require.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	for _, want := range []string{"chat", "ask", "reset", "history", "lambda", "telegram", "mcp", "version"} {
		require.Contains(t, names, want)
	}
}

func TestSessionCommands_RequireSessionFlag(t *testing.T) {
	for _, name := range []string{"reset", "history"} {
		t.Run(name, func(t *testing.T) {
			root := NewRootCmd()
			root.SetArgs([]string{name})
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			err := root.Execute()
			require.ErrorContains(t, err, `required flag(s) "session" not set`)
		})
	}
}

func TestAskCmd_RequiresQuery(t *testing.T) {
	root := NewRootCmd()
	root.SetArgs([]string{"ask"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.Execute())
}

func TestVersionCmd(t *testing.T) {
	prev := versionInfo
	t.Cleanup(func() { versionInfo = prev })
	SetVersion("1.2.3", "abc123", "2026-10-01")

	var out bytes.Buffer
	cmd := NewVersionCmd()
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	require.Contains(t, out.String(), "support-agent 1.2.3")
	require.Contains(t, out.String(), "abc123")
}

func TestNewCompleter(t *testing.T) {
	cfg := &config.Config{Completion: config.CompletionConfig{
		Provider: config.ProviderOpenAI,
		APIKey:   "sk-test",
		Timeout:  time.Second,
	}}

	llm, err := newCompleter(context.Background(), cfg, &awsLoader{})
	require.NoError(t, err)
	require.IsType(t, &openai.Client{}, llm)

	cfg.Completion.Provider = config.ProviderGemini
	llm, err = newCompleter(context.Background(), cfg, &awsLoader{})
	require.NoError(t, err)
	require.IsType(t, &gemini.Client{}, llm)

	cfg.Completion.Provider = "anthropic"
	_, err = newCompleter(context.Background(), cfg, &awsLoader{})
	require.ErrorContains(t, err, "unknown completion provider")

	cfg.Completion.Provider = config.ProviderOpenAI
	cfg.Completion.Temperature = 5
	_, err = newCompleter(context.Background(), cfg, &awsLoader{})
	require.Error(t, err)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	store, closeFn, err := newStore(ctx, &config.Config{Store: config.StoreConfig{Backend: config.BackendMemory}}, &awsLoader{})
	require.NoError(t, err)
	require.Nil(t, closeFn)
	require.IsType(t, &repository.MemoryStore{}, store)

	path := filepath.Join(t.TempDir(), "nested", "agent.db")
	store, closeFn, err = newStore(ctx, &config.Config{Store: config.StoreConfig{Backend: config.BackendSQLite, SQLitePath: path}}, &awsLoader{})
	require.NoError(t, err)
	require.NotNil(t, closeFn)
	t.Cleanup(func() { require.NoError(t, closeFn()) })

	state := domain.NewConversationState("s-1")
	state.Turns = []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "hi", CreatedAt: time.Now().UTC()},
		{Role: domain.RoleAgent, Content: "hello", CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, store.Put(ctx, state))
	_, found, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	require.True(t, found)

	_, _, err = newStore(ctx, &config.Config{Store: config.StoreConfig{Backend: "redis"}}, &awsLoader{})
	require.ErrorContains(t, err, "unknown store backend")
}

func TestNewRuntime_FromConfigFile(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "SUPPORT_COMPLETION_API_KEY", "SUPPORT_STORE_BACKEND"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	raw, err := os.ReadFile(filepath.Join(repoRoot(t), "internal", "usecase", "prompts.yaml"))
	require.NoError(t, err)
	dir := t.TempDir()
	t.Chdir(dir)

	promptsPath := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(promptsPath, raw, 0o600))

	cfgPath := filepath.Join(dir, "support-agent.yaml")
	body := strings.Join([]string{
		"completion:",
		"  api_key: sk-test",
		"store:",
		"  backend: sqlite",
		"  sqlite_path: " + filepath.Join(dir, "agent.db"),
		"agent:",
		"  prompts_file: " + promptsPath,
		"log:",
		"  level: warn",
	}, "\n")
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))

	prevPath, prevLevel := configPath, logLevel
	t.Cleanup(func() { configPath, logLevel = prevPath, prevLevel })
	configPath, logLevel = cfgPath, "error"

	rt, err := newRuntime(context.Background())
	require.NoError(t, err)
	require.NotNil(t, rt.svc)
	require.Equal(t, "error", rt.cfg.Log.Level)
	require.Equal(t, config.BackendSQLite, rt.cfg.Store.Backend)
	require.NoError(t, rt.Close())
}

func TestNewRuntime_MissingKey(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "SUPPORT_COMPLETION_API_KEY", "SUPPORT_COMPLETION_PARAM_PREFIX"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Chdir(t.TempDir())

	prevPath := configPath
	t.Cleanup(func() { configPath = prevPath })
	configPath = ""

	_, err := newRuntime(context.Background())
	require.ErrorContains(t, err, "no API key")
}

// repoRoot walks up from the package directory to the module root.
func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	for dir := wd; ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		require.NotEqual(t, dir, filepath.Dir(dir), "go.mod not found above %s", wd)
	}
}
