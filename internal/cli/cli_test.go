package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"quiz-arena/internal/app"
	"quiz-arena/internal/auth"
	"quiz-arena/internal/config"
	"quiz-arena/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	path := writeConfig(t, "auth:\n  jwtSecret: cli-secret\n  tokenTTL: 1h\n")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", path, "token", "--player", "p1", "--name", "Alice"})
	require.NoError(t, cmd.Execute())

	tokens, err := auth.NewJWTManager("cli-secret", time.Hour)
	require.NoError(t, err)
	identity, err := tokens.Verify(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{PlayerID: "p1", Name: "Alice"}, identity)
}

func TestReapRefusesMemoryStore(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: memory\n")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "reap"})
	require.Error(t, cmd.Execute())
}

func TestBuildArenaWithMemoryStore(t *testing.T) {
	var cfg config.Config
	cfg.QuestionSets.File = writeConfig(t, `
- id: set-1
  questions:
    - prompt: "2+2"
      options: ["3", "4", "5", "6"]
      correctIndex: 1
`)
	deps, err := buildArena(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	room, err := deps.service.CreateRoom(context.Background(), domain.Identity{PlayerID: "host"}, app.CreateRoomRequest{QuestionSetID: "set-1"})
	require.NoError(t, err)
	assert.Len(t, room.Questions, 1)
}

func TestBuildArenaRequiresBackendForDriver(t *testing.T) {
	var cfg config.Config
	cfg.Store.Driver = config.DriverPostgres
	_, err := buildArena(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var cfg config.Config
	cfg.Log.Level = "warn"
	logger, err := newLogger(cfg)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	cfg.Log.Level = "chatty"
	_, err = newLogger(cfg)
	require.Error(t, err)
}

func TestArenaOptions(t *testing.T) {
	var cfg config.Config
	cfg.Arena.PointsPerQuestion = 5
	cfg.Arena.MaxPlayers = 30
	cfg.Store.Timeout = "2s"
	opts := arenaOptions(cfg)
	assert.Equal(t, 5, opts.PointsPerQuestion)
	assert.Equal(t, 30, opts.MaxPlayers)
	assert.Equal(t, 2*time.Second, opts.StoreTimeout)
}
