package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ent0n29/plastmaid/internal/logging"
)

const testSession = "deadbeefcafef00d0123456789abcdef"

func TestAcquireCreatesIsolatedDirs(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Discard())

	a, err := m.Acquire(testSession)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	b, err := m.Acquire(testSession)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer m.Release(a)
	defer m.Release(b)

	if a.Dir() == b.Dir() {
		t.Fatalf("workspaces share a directory: %q", a.Dir())
	}
	if !strings.Contains(filepath.Base(a.Dir()), "deadbeef") {
		t.Fatalf("Dir() = %q, want session prefix in name", a.Dir())
	}
	if got := a.Path("../../escape.mp4"); filepath.Dir(got) != a.Dir() {
		t.Fatalf("Path() = %q, want file inside %q", got, a.Dir())
	}
}

func TestReleaseRemovesTree(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Discard())
	h, err := m.Acquire(testSession)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	nested := filepath.Join(h.Dir(), "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(nested, "f.bin"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	m.Release(h)
	m.Release(h)
	m.Release(nil)

	if _, err := os.Stat(h.Dir()); !os.IsNotExist(err) {
		t.Fatalf("workspace still present after Release: err = %v", err)
	}
}

func TestReleaseFailureIsNotRaised(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Discard())
	m.removeAll = func(string) error { return errors.New("device busy") }

	h, err := m.Acquire(testSession)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	m.Release(h)
}

func TestScopeReleasesOnErrorAndPanic(t *testing.T) {
	m := NewManager(t.TempDir(), logging.Discard())
	wantErr := errors.New("detector exploded")

	var dir string
	err := m.Scope(testSession, func(h *Handle) error {
		dir = h.Dir()
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Scope() error = %v, want %v", err, wantErr)
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Fatalf("workspace survived error path: %v", statErr)
	}

	func() {
		defer func() { _ = recover() }()
		_ = m.Scope(testSession, func(h *Handle) error {
			dir = h.Dir()
			panic("boom")
		})
	}()
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Fatalf("workspace survived panic path: %v", statErr)
	}
}

func TestAcquireFailureIsWorkspaceError(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(root, []byte("not a dir"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	m := NewManager(root, logging.Discard())

	_, err := m.Acquire(testSession)
	var wsErr *Error
	if !errors.As(err, &wsErr) {
		t.Fatalf("Acquire() error = %v, want *workspace.Error", err)
	}
	if wsErr.Op != "create" {
		t.Fatalf("Op = %q, want create", wsErr.Op)
	}
}
