package project

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func mkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("# marker\n"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestFindRootInStartDir(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, MarkerFile))

	got, err := FindRoot(root, "")
	if err != nil {
		t.Fatalf("FindRoot failed: %v", err)
	}
	if got != root {
		t.Errorf("FindRoot = %q, want %q", got, root)
	}
}

func TestFindRootWalksAncestors(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, MarkerFile))

	// Marker at depth 0, 1, 2 and 3 from the start directory.
	start := root
	for _, sub := range []string{"src", "deep", "deeper"} {
		start = filepath.Join(start, sub)
		mkdirAll(t, start)

		got, err := FindRoot(start, "")
		if err != nil {
			t.Fatalf("FindRoot(%s) failed: %v", start, err)
		}
		if got != root {
			t.Errorf("FindRoot(%s) = %q, want %q", start, got, root)
		}
	}
}

func TestFindRootPrefersNearestAncestor(t *testing.T) {
	outer := t.TempDir()
	touch(t, filepath.Join(outer, MarkerFile))

	inner := filepath.Join(outer, "nested")
	mkdirAll(t, inner)
	touch(t, filepath.Join(inner, MarkerFile))

	start := filepath.Join(inner, "src")
	mkdirAll(t, start)

	got, err := FindRoot(start, "")
	if err != nil {
		t.Fatalf("FindRoot failed: %v", err)
	}
	if got != inner {
		t.Errorf("FindRoot = %q, want nearest root %q", got, inner)
	}
}

func TestFindRootIgnoresMarkerDirectory(t *testing.T) {
	// A directory named Vagrantfile is not a marker.
	dir := t.TempDir()
	mkdirAll(t, filepath.Join(dir, MarkerFile))

	_, err := FindRoot(dir, "")
	var notFound *RootNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *RootNotFoundError, got %v", err)
	}
}

func TestFindRootFallback(t *testing.T) {
	start := t.TempDir()

	got, err := FindRoot(start, "/srv/boxes/default")
	if err != nil {
		t.Fatalf("FindRoot failed: %v", err)
	}
	// The fallback is returned exactly as configured, unverified.
	if got != "/srv/boxes/default" {
		t.Errorf("FindRoot = %q, want fallback unmodified", got)
	}
}

func TestFindRootNotFoundCarriesStartDir(t *testing.T) {
	start := t.TempDir()

	_, err := FindRoot(start, "")
	var notFound *RootNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected *RootNotFoundError, got %v", err)
	}
	if notFound.StartDir != start {
		t.Errorf("StartDir = %q, want %q", notFound.StartDir, start)
	}
}

func TestListMachines(t *testing.T) {
	root := t.TempDir()
	machines := filepath.Join(root, ".vagrant", "machines")
	mkdirAll(t, filepath.Join(machines, "web"))
	mkdirAll(t, filepath.Join(machines, "db"))
	touch(t, filepath.Join(machines, "readme.txt"))

	names, err := ListMachines(root)
	if err != nil {
		t.Fatalf("ListMachines failed: %v", err)
	}

	want := map[string]bool{"web": true, "db": true}
	if len(names) != len(want) {
		t.Fatalf("ListMachines = %v, want web and db only", names)
	}
	for _, name := range names {
		if !want[name] {
			t.Errorf("unexpected machine %q (pseudo-entries and files must be excluded)", name)
		}
		if name == "." || name == ".." {
			t.Errorf("pseudo-entry %q leaked into machine list", name)
		}
	}
}

func TestListMachinesMissingMetadataDir(t *testing.T) {
	names, err := ListMachines(t.TempDir())
	if err != nil {
		t.Fatalf("missing metadata dir should not be an error, got %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ListMachines = %v, want empty", names)
	}
}

func TestIDStableAndDistinct(t *testing.T) {
	a := t.TempDir()
	b := t.TempDir()

	if ID(a) != ID(a) {
		t.Error("ID is not stable for the same path")
	}
	if ID(a) == ID(b) {
		t.Error("ID collides for distinct paths")
	}
	if len(ID(a)) != 12 {
		t.Errorf("ID length = %d, want 12", len(ID(a)))
	}
}
