package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/ent0n29/plastmaid/internal/session"
)

// Error reports a workspace filesystem failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("workspace %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("workspace %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Handle is one request's private directory.
type Handle struct {
	sessionID string
	dir       string
	once      sync.Once
}

func (h *Handle) Dir() string       { return h.dir }
func (h *Handle) SessionID() string { return h.sessionID }

// Path resolves name inside the workspace.
func (h *Handle) Path(name string) string {
	return filepath.Join(h.dir, filepath.Base(name))
}

// Manager hands out isolated temporary directories and removes them again.
type Manager struct {
	root   string
	logger *log.Logger
	// removeAll is swapped in tests to simulate cleanup failures.
	removeAll func(string) error
}

// NewManager creates workspaces under root, or the OS temp dir when root is empty.
func NewManager(root string, logger *log.Logger) *Manager {
	return &Manager{root: root, logger: logger, removeAll: os.RemoveAll}
}

func (m *Manager) Acquire(sessionID string) (*Handle, error) {
	if m.root != "" {
		if err := os.MkdirAll(m.root, 0o755); err != nil {
			return nil, &Error{Op: "create", Path: m.root, Err: err}
		}
	}
	dir, err := os.MkdirTemp(m.root, "debris-"+session.Short(sessionID)+"-*")
	if err != nil {
		return nil, &Error{Op: "create", Path: m.root, Err: err}
	}
	m.logger.Debug("workspace acquired", "session", sessionID, "dir", dir)
	return &Handle{sessionID: sessionID, dir: dir}, nil
}

// Release removes the workspace tree. Failures are logged, never returned,
// and a handle is only removed once.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if err := m.removeAll(h.dir); err != nil {
			m.logger.Error("workspace cleanup failed", "session", h.sessionID, "dir", h.dir, "err", err)
			return
		}
		m.logger.Debug("workspace released", "session", h.sessionID, "dir", h.dir)
	})
}

// Scope acquires a workspace, runs fn and releases the workspace on every
// exit path, including a panic inside fn.
func (m *Manager) Scope(sessionID string, fn func(*Handle) error) error {
	h, err := m.Acquire(sessionID)
	if err != nil {
		return err
	}
	defer m.Release(h)
	return fn(h)
}
