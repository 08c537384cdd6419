package mount

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/kebairia/digibankup/internal/config"
	"github.com/kebairia/digibankup/internal/logger"
)

const TypeNFS = "nfs"

var (
	ErrUnsupportedType = errors.New("unsupported mount type")
	ErrIncomplete      = errors.New("incomplete mount configuration")
)

// CommandContext builds the command used to mount and unmount. It matches
// exec.CommandContext so tests can substitute it.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Mounter attaches the network share that holds the backups.
type Mounter struct {
	cfg            config.MountConfig
	log            logger.Logger
	commandContext CommandContext

	// mounted is set when Mount attached the share itself.
	mounted bool
}

// Option customizes a Mounter.
type Option func(*Mounter)

// WithCommandContext overrides how commands are created.
func WithCommandContext(fn CommandContext) Option {
	return func(m *Mounter) {
		if fn != nil {
			m.commandContext = fn
		}
	}
}

// New validates cfg and returns a Mounter for it.
func New(cfg config.MountConfig, log logger.Logger, opts ...Option) (*Mounter, error) {
	if cfg.Type != TypeNFS {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, cfg.Type)
	}
	if cfg.ServerIP == "" || cfg.ServerDir == "" || cfg.Point == "" {
		return nil, fmt.Errorf("%w: server_ip, server_dir and point are required", ErrIncomplete)
	}
	m := &Mounter{cfg: cfg, log: log, commandContext: exec.CommandContext}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Address is the remote export in server:dir form.
func (m *Mounter) Address() string {
	return m.cfg.ServerIP + ":" + m.cfg.ServerDir
}

// Mount creates the mount point if needed and mounts the export on it. A
// point that is already a mount point is left as it is.
func (m *Mounter) Mount(ctx context.Context) error {
	if err := os.MkdirAll(m.cfg.Point, 0o755); err != nil {
		return fmt.Errorf("create mount point %q: %w", m.cfg.Point, err)
	}
	mounted, err := isMountPoint(m.cfg.Point)
	if err != nil {
		return fmt.Errorf("inspect mount point %q: %w", m.cfg.Point, err)
	}
	if mounted {
		m.log.Info("mount point already in use, not mounting", "point", m.cfg.Point)
		return nil
	}

	m.log.Info("mounting NFS directory", "address", m.Address(), "point", m.cfg.Point)
	if err := m.run(ctx, "mount", "-t", TypeNFS, m.Address(), m.cfg.Point); err != nil {
		return fmt.Errorf("mount %s at %s: %w", m.Address(), m.cfg.Point, err)
	}
	m.mounted = true
	return nil
}

// Unmount detaches the mount point if Mount attached it.
func (m *Mounter) Unmount(ctx context.Context) error {
	if !m.mounted {
		return nil
	}
	m.log.Info("unmounting NFS mount point", "point", m.cfg.Point)
	if err := m.run(ctx, "umount", m.cfg.Point); err != nil {
		return fmt.Errorf("unmount %s: %w", m.cfg.Point, err)
	}
	m.mounted = false
	return nil
}

func (m *Mounter) run(ctx context.Context, name string, args ...string) error {
	cmd := m.commandContext(ctx, name, args...)
	setProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}
