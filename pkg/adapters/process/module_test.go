package process

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/keel/internal/logging"
	"github.com/aretw0/keel/internal/testutils"
	"github.com/aretw0/keel/pkg/adapters/memory"
	"github.com/aretw0/keel/pkg/domain"
	"github.com/aretw0/keel/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func sh(name, phase, script string) map[string]any {
	return map[string]any{
		"name":    name,
		"phase":   phase,
		"command": "sh",
		"args":    []any{"-c", script},
	}
}

func newModule(t *testing.T, values map[string]any) (*Module, *testutils.FakeHost) {
	t.Helper()
	host := testutils.NewFakeHost(values)
	m, err := New(host)
	require.NoError(t, err)
	return m, host
}

func processConfig(appDir string, commands ...map[string]any) map[string]any {
	list := make([]any, len(commands))
	for i, c := range commands {
		list[i] = c
	}
	return map[string]any{
		"app_dir": appDir,
		"process": map[string]any{"commands": list, "stop_timeout": "200ms"},
	}
}

func TestNew_NoCommands(t *testing.T) {
	m, host := newModule(t, nil)

	assert.Empty(t, m.Config().Commands)
	assert.Equal(t, 0, host.Launch.Len())
	assert.Equal(t, 0, host.Run.Len())
	assert.Equal(t, 0, host.Shutdown.Len())
}

func TestNew_Registration(t *testing.T) {
	appDir := t.TempDir()
	m, host := newModule(t, processConfig(appDir,
		sh("migrate", "launch", "true"),
		sh("seed", "launch", "true"),
		map[string]any{"name": "worker", "command": "sleep", "dir": "bin"},
	))

	assert.Equal(t, 2, host.Launch.Len())
	assert.Equal(t, 1, host.Run.Len())
	assert.Equal(t, 1, host.Shutdown.Len())

	cmds := m.Config().Commands
	assert.Equal(t, PhaseRun, cmds[2].Phase)
	assert.Equal(t, filepath.Join(appDir, "bin"), cmds[2].Dir)
	assert.Equal(t, appDir, cmds[0].Dir)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		commands []map[string]any
	}{
		{"missing command", []map[string]any{{"name": "x"}}},
		{"missing name", []map[string]any{{"command": "true"}}},
		{"unknown phase", []map[string]any{{"name": "x", "command": "true", "phase": "later"}}},
		{"duplicate name", []map[string]any{{"name": "x", "command": "true"}, {"name": "x", "command": "false"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(testutils.NewFakeHost(processConfig(t.TempDir(), tt.commands...)))
			assert.Error(t, err)
		})
	}
}

func TestNew_RejectsTinyLockTTL(t *testing.T) {
	values := processConfig(t.TempDir(), sh("migrate", "launch", "true"))
	values["process"].(map[string]any)["lock_ttl"] = "2ns"

	_, err := New(testutils.NewFakeHost(values))
	assert.Error(t, err)
}

func TestLaunch_RunsInOrder(t *testing.T) {
	requireShell(t)
	appDir := t.TempDir()
	_, host := newModule(t, processConfig(appDir,
		sh("first", "launch", `echo first >> trace.txt`),
		sh("second", "launch", `echo "second $KEEL_APP" >> trace.txt`),
	))

	require.NoError(t, host.RunPhase(context.Background(), domain.PhaseLaunch))

	out, err := os.ReadFile(filepath.Join(appDir, "trace.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond "+filepath.Base(appDir)+"\n", string(out))
}

func TestLaunch_FailureStopsPhase(t *testing.T) {
	requireShell(t)
	appDir := t.TempDir()
	_, host := newModule(t, processConfig(appDir,
		sh("broken", "launch", `echo "no database" >&2; exit 3`),
		sh("after", "launch", `touch after.txt`),
	))

	err := host.RunPhase(context.Background(), domain.PhaseLaunch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "no database")

	_, statErr := os.Stat(filepath.Join(appDir, "after.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLaunch_CancelledByContext(t *testing.T) {
	requireShell(t)
	_, host := newModule(t, processConfig(t.TempDir(), sh("slow", "launch", "sleep 10")))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := host.RunPhase(ctx, domain.PhaseLaunch)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestLaunch_Exclusive(t *testing.T) {
	requireShell(t)
	appDir := t.TempDir()
	cmd := sh("migrate", "launch", "true")
	cmd["exclusive"] = true
	m, host := newModule(t, processConfig(appDir, cmd))

	locker, ok := m.locker.(*memory.Locker)
	require.True(t, ok)

	unlock, err := locker.Lock(context.Background(), filepath.Base(appDir)+":migrate", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, host.RunPhase(ctx, domain.PhaseLaunch), context.DeadlineExceeded)

	require.NoError(t, unlock(context.Background()))
	require.NoError(t, host.RunPhase(context.Background(), domain.PhaseLaunch))
	assert.Equal(t, 0, locker.Len())
}

type lockerModule struct{ locker ports.DistributedLocker }

func (l lockerModule) DistributedLocker() ports.DistributedLocker { return l.locker }

func TestNew_UsesSharedLocker(t *testing.T) {
	shared := memory.NewLocker()
	host := testutils.NewFakeHost(nil)
	host.Modules["redis"] = lockerModule{locker: shared}

	m, err := New(host)
	require.NoError(t, err)
	assert.Same(t, shared, m.locker)
}

func TestRun_SupervisesUntilShutdown(t *testing.T) {
	requireShell(t)
	m, host := newModule(t, processConfig(t.TempDir(),
		sh("worker", "run", "sleep 10"),
		sh("idle", "run", "sleep 10"),
	))
	ctx := context.Background()

	require.NoError(t, host.RunPhase(ctx, domain.PhaseRun))
	assert.Equal(t, []string{"idle", "worker"}, m.Running())

	start := time.Now()
	require.NoError(t, host.RunPhase(ctx, domain.PhaseShutdown))
	assert.Less(t, time.Since(start), 5*time.Second)

	assert.Empty(t, m.Running())
	assert.Empty(t, host.Errors())
}

func TestRun_KillsAfterStopTimeout(t *testing.T) {
	requireShell(t)
	m, host := newModule(t, processConfig(t.TempDir(),
		sh("stubborn", "run", `trap "" INT; sleep 10`),
	))
	ctx := context.Background()

	require.NoError(t, host.RunPhase(ctx, domain.PhaseRun))
	require.Len(t, m.Running(), 1)

	start := time.Now()
	require.NoError(t, host.RunPhase(ctx, domain.PhaseShutdown))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Empty(t, m.Running())
}

func TestRun_UnexpectedExitIsReported(t *testing.T) {
	requireShell(t)
	m, host := newModule(t, processConfig(t.TempDir(), sh("crashy", "run", "exit 1")))

	require.NoError(t, host.RunPhase(context.Background(), domain.PhaseRun))

	testutils.WaitFor(t, 2*time.Second, func() bool { return len(host.Errors()) == 1 }, "exit not reported")
	assert.Contains(t, host.Errors()[0].Error(), "process crashy")
	assert.Empty(t, m.Running())

	require.NoError(t, host.RunPhase(context.Background(), domain.PhaseShutdown))
	assert.Len(t, host.Errors(), 1)
}

func TestRun_StartFailure(t *testing.T) {
	_, host := newModule(t, processConfig(t.TempDir(),
		map[string]any{"name": "ghost", "command": "definitely-not-a-binary-keel"},
	))

	err := host.RunPhase(context.Background(), domain.PhaseRun)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "process ghost")
}

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(slog.LevelDebug, logging.FormatText, &buf)
	w := newLineWriter(logger, "stdout", slog.LevelInfo)

	w.Write([]byte("hel"))
	w.Write([]byte("lo\nwor"))
	assert.Equal(t, "hello", w.Last())
	w.Write([]byte("ld\r\n\npartial"))
	assert.Equal(t, "world", w.Last())
	w.Flush()
	assert.Equal(t, "partial", w.Last())

	out := buf.String()
	assert.Equal(t, 3, strings.Count(out, "stream=stdout"))
}
