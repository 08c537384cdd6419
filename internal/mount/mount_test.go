package mount

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/logger"
)

// TestHelperProcess stands in for mount and umount.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if os.Getenv("HELPER_FAIL") == "1" {
		fmt.Fprintf(os.Stderr, "%s: permission denied\n", args[0])
		os.Exit(32)
	}
	os.Exit(0)
}

type recorder struct {
	calls [][]string
	fail  bool
}

func (r *recorder) commandContext(ctx context.Context, name string, arg ...string) *exec.Cmd {
	r.calls = append(r.calls, append([]string{name}, arg...))
	cs := append([]string{"-test.run=TestHelperProcess", "--", name}, arg...)
	cmd := exec.CommandContext(ctx, os.Args[0], cs...)
	cmd.Env = []string{"GO_WANT_HELPER_PROCESS=1"}
	if r.fail {
		cmd.Env = append(cmd.Env, "HELPER_FAIL=1")
	}
	return cmd
}

func nfsConfig(t *testing.T) config.MountConfig {
	t.Helper()
	return config.MountConfig{
		Enabled:   true,
		Type:      TypeNFS,
		Point:     filepath.Join(t.TempDir(), "nasbackup"),
		ServerIP:  "192.168.1.20",
		ServerDir: "/volume1/fog",
	}
}

func TestNew_Validation(t *testing.T) {
	cfg := nfsConfig(t)
	cfg.Type = "cifs"
	_, err := New(cfg, logger.Nop())
	require.ErrorIs(t, err, ErrUnsupportedType)

	cfg = nfsConfig(t)
	cfg.ServerDir = ""
	_, err = New(cfg, logger.Nop())
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestMounter_MountAndUnmount(t *testing.T) {
	cfg := nfsConfig(t)
	rec := &recorder{}
	m, err := New(cfg, logger.Nop(), WithCommandContext(rec.commandContext))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.20:/volume1/fog", m.Address())

	require.NoError(t, m.Mount(context.Background()))
	assert.DirExists(t, cfg.Point)
	require.NoError(t, m.Unmount(context.Background()))

	assert.Equal(t, [][]string{
		{"mount", "-t", "nfs", "192.168.1.20:/volume1/fog", cfg.Point},
		{"umount", cfg.Point},
	}, rec.calls)
}

func TestMounter_CommandFailure(t *testing.T) {
	rec := &recorder{fail: true}
	m, err := New(nfsConfig(t), logger.Nop(), WithCommandContext(rec.commandContext))
	require.NoError(t, err)

	err = m.Mount(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "permission denied"), err.Error())
}

func TestMounter_CancelledContext(t *testing.T) {
	rec := &recorder{}
	m, err := New(nfsConfig(t), logger.Nop(), WithCommandContext(rec.commandContext))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, m.Mount(ctx), context.Canceled)
	require.NoError(t, m.Unmount(context.Background()))
	assert.Len(t, rec.calls, 1)
}

func TestMounter_UnmountWithoutMount(t *testing.T) {
	rec := &recorder{}
	m, err := New(nfsConfig(t), logger.Nop(), WithCommandContext(rec.commandContext))
	require.NoError(t, err)
	require.NoError(t, m.Unmount(context.Background()))
	assert.Empty(t, rec.calls)
}
