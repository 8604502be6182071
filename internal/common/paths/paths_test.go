package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestProjectIdentityStable(t *testing.T) {
	dir := t.TempDir()
	first := ProjectIdentity(dir)
	second := ProjectIdentity(dir)
	if first != second {
		t.Fatalf("identity not stable: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, filepath.Base(dir)+"-") {
		t.Fatalf("identity %q does not start with leaf %q", first, filepath.Base(dir))
	}
	// leaf + dash + 12 hex chars
	suffix := strings.TrimPrefix(first, filepath.Base(dir)+"-")
	if len(suffix) != 12 {
		t.Fatalf("digest suffix %q is not 12 chars", suffix)
	}
}

func TestProjectIdentityDistinguishesRoots(t *testing.T) {
	a := ProjectIdentity(t.TempDir())
	b := ProjectIdentity(t.TempDir())
	if a == b {
		t.Fatalf("different roots share identity %q", a)
	}
}

func TestProjectIdentityResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "proj")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	if got, want := ProjectIdentity("proj"), ProjectIdentity(sub); got != want {
		t.Fatalf("relative path identity %q != absolute %q", got, want)
	}
}

func TestStateRootHonorsXDGOverride(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG variables are not used on windows")
	}
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", base)

	root, err := StateRoot()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "bufo"); root != want {
		t.Fatalf("state root %q, want %q", root, want)
	}
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("state root not created: %v", err)
	}
}

func TestProjectDataDirCreated(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG variables are not used on windows")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	project := t.TempDir()
	dir, err := ProjectDataDir(project)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("project data dir not created: %v", err)
	}
	if !strings.Contains(dir, ProjectIdentity(project)) {
		t.Fatalf("data dir %q does not embed project identity", dir)
	}
}

func TestSessionDBPathUnderStateRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("XDG variables are not used on windows")
	}
	base := t.TempDir()
	t.Setenv("XDG_STATE_HOME", base)

	path, err := SessionDBPath()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(base, "bufo", "sessions.sqlite3"); path != want {
		t.Fatalf("db path %q, want %q", path, want)
	}
}
