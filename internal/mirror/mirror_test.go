package mirror

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/hashing"
	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/progress"
	"github.com/klauern/mirrorsync/internal/util"
)

// setupDeletionScenario lays out a target tree with stale files and a source
// tree that only covers part of it.
func setupDeletionScenario(t *testing.T) (string, model.Mapping) {
	t.Helper()
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "target")
	source := filepath.Join(tmpDir, "source")

	util.WriteFile(t, filepath.Join(target, "file1"), "file1_other")
	util.WriteFile(t, filepath.Join(target, "file4"), "file4")
	util.WriteFile(t, filepath.Join(target, "dir1", "file2"), "file2")
	util.WriteFile(t, filepath.Join(target, "dir1", "file5"), "file5")

	util.WriteFile(t, filepath.Join(source, "file1"), "file1")
	util.WriteFile(t, filepath.Join(source, "dir1", "file2"), "file2")
	util.WriteFile(t, filepath.Join(source, "dir2", "file3"), "file3")

	mapping := model.Mapping{
		filepath.Join(target, "file1"):         filepath.Join(source, "file1"),
		filepath.Join(target, "dir1", "file2"): filepath.Join(source, "dir1", "file2"),
		filepath.Join(target, "dir2"):          filepath.Join(source, "dir2"),
	}
	return target, mapping
}

func TestReconcile_DeletesUnlistedFiles(t *testing.T) {
	target, mapping := setupDeletionScenario(t)

	rec := &progress.Recorder{}
	stats, err := New(nil).Reconcile(context.Background(), target, mapping, rec)
	util.AssertNoError(t, err)

	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "file1")), "file1")
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "dir1", "file2")), "file2")
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "dir2", "file3")), "file3")
	util.AssertNotExists(t, filepath.Join(target, "file4"))
	util.AssertNotExists(t, filepath.Join(target, "dir1", "file5"))

	want := Stats{Copied: 2, Skipped: 1, Deleted: 2}
	if stats != want {
		t.Errorf("Reconcile() stats = %+v, want %+v", stats, want)
	}

	snap := rec.Snapshot()
	if snap.Length != 3 || snap.Done != 3 {
		t.Errorf("progress length=%d done=%d, want 3/3", snap.Length, snap.Done)
	}
	if len(snap.Stages) == 0 || snap.Stages[0] != progress.StageMirroringFiles {
		t.Errorf("stages = %v, want %q", snap.Stages, progress.StageMirroringFiles)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	target, mapping := setupDeletionScenario(t)
	r := New(nil)

	_, err := r.Reconcile(context.Background(), target, mapping, nil)
	util.AssertNoError(t, err)

	before := snapshotTree(t, target)
	stats, err := r.Reconcile(context.Background(), target, mapping, nil)
	util.AssertNoError(t, err)

	if stats.Copied != 0 || stats.Deleted != 0 || stats.PrunedDirs != 0 {
		t.Errorf("second Reconcile() stats = %+v, want no changes", stats)
	}
	if stats.Skipped != 3 {
		t.Errorf("second Reconcile() skipped = %d, want 3", stats.Skipped)
	}

	after := snapshotTree(t, target)
	if len(before) != len(after) {
		t.Fatalf("tree changed: before %v, after %v", before, after)
	}
	for path, content := range before {
		if after[path] != content {
			t.Errorf("%s changed from %q to %q", path, content, after[path])
		}
	}
}

func TestReconcile_PrunesEmptyDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "target")
	util.WriteFile(t, filepath.Join(target, "old", "deep", "nested", "stale"), "x")
	util.WriteFile(t, filepath.Join(target, "keep"), "x")
	if err := os.MkdirAll(filepath.Join(target, "empty", "also-empty"), 0o750); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	util.WriteFile(t, filepath.Join(tmpDir, "src"), "x")

	stats, err := New(nil).Reconcile(context.Background(), target, model.Mapping{
		"keep": filepath.Join(tmpDir, "src"),
	}, nil)
	util.AssertNoError(t, err)

	util.AssertNotExists(t, filepath.Join(target, "old"))
	util.AssertNotExists(t, filepath.Join(target, "empty"))
	util.AssertExists(t, target)
	if stats.PrunedDirs != 5 {
		t.Errorf("PrunedDirs = %d, want 5", stats.PrunedDirs)
	}
	if stats.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", stats.Skipped)
	}
}

func TestReconcile_ReplacesDirectoryAtTargetFile(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "target")
	util.WriteFile(t, filepath.Join(target, "lib.jar", "leftover"), "x")
	util.WriteFile(t, filepath.Join(tmpDir, "lib.jar"), "jar")

	_, err := New(nil).Reconcile(context.Background(), target, model.Mapping{
		"lib.jar": filepath.Join(tmpDir, "lib.jar"),
	}, nil)
	util.AssertNoError(t, err)

	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "lib.jar")), "jar")
}

func TestReconcile_RejectsPathOutsideRoot(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "target")
	util.WriteFile(t, filepath.Join(target, "existing"), "keep me")
	util.WriteFile(t, filepath.Join(tmpDir, "src"), "x")

	tests := []struct {
		name string
		key  string
	}{
		{"parent traversal", "../escape"},
		{"sibling absolute", filepath.Join(tmpDir, "target-sibling", "f")},
		{"file onto root", target},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Reconcile(context.Background(), target, model.Mapping{
				tt.key: filepath.Join(tmpDir, "src"),
			}, nil)

			var invalid *InvalidPathError
			if !errors.As(err, &invalid) {
				t.Fatalf("Reconcile() error = %v, want *InvalidPathError", err)
			}
			if invalid.Root != target {
				t.Errorf("Root = %q, want %q", invalid.Root, target)
			}
			// Nothing is touched before validation passes.
			util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "existing")), "keep me")
		})
	}
}

func TestReconcile_MissingSource(t *testing.T) {
	tmpDir := t.TempDir()
	target := filepath.Join(tmpDir, "target")
	util.WriteFile(t, filepath.Join(target, "existing"), "keep me")

	_, err := New(nil).Reconcile(context.Background(), target, model.Mapping{
		"f": filepath.Join(tmpDir, "nope"),
	}, nil)

	var missing *SourceMissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Reconcile() error = %v, want *SourceMissingError", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("SourceMissingError should match fs.ErrNotExist")
	}
	util.AssertEqual(t, util.ReadFile(t, filepath.Join(target, "existing")), "keep me")
}

func TestReconcile_WholeRootFromDirectory(t *testing.T) {
	memFs := afero.NewMemMapFs()
	for path, content := range map[string]string{
		"/src/a":       "a",
		"/src/sub/b":   "b",
		"/out/stale":   "stale",
		"/out/sub/old": "old",
	} {
		if err := afero.WriteFile(memFs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}

	r := New(hashing.New(hashing.WithFs(memFs)), WithMaxConcurrentOps(2))
	stats, err := r.Reconcile(context.Background(), "/out", model.Mapping{"/out": "/src"}, nil)
	util.AssertNoError(t, err)

	for path, want := range map[string]string{"/out/a": "a", "/out/sub/b": "b"} {
		got, err := afero.ReadFile(memFs, path)
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v; want %q", path, got, err, want)
		}
	}
	for _, path := range []string{"/out/stale", "/out/sub/old"} {
		if ok, _ := afero.Exists(memFs, path); ok {
			t.Errorf("%s should have been deleted", path)
		}
	}
	if stats.Copied != 2 || stats.Deleted != 2 {
		t.Errorf("stats = %+v, want 2 copied and 2 deleted", stats)
	}
}

func TestReconcile_CancelledContext(t *testing.T) {
	target, mapping := setupDeletionScenario(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil).Reconcile(ctx, target, mapping, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Reconcile() error = %v, want context.Canceled", err)
	}
}

func TestMappingFromWorkDir(t *testing.T) {
	work := filepath.Join(string(filepath.Separator), "work")
	out := filepath.Join(string(filepath.Separator), "out")

	got, err := MappingFromWorkDir(out, work, []string{
		filepath.Join(work, "mods", "a.jar"),
		filepath.Join("config", "b.toml"),
	})
	util.AssertNoError(t, err)

	want := model.Mapping{
		filepath.Join(out, "mods", "a.jar"):    filepath.Join(work, "mods", "a.jar"),
		filepath.Join(out, "config", "b.toml"): filepath.Join(work, "config", "b.toml"),
	}
	if len(got) != len(want) {
		t.Fatalf("MappingFromWorkDir() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("mapping[%q] = %q, want %q", k, got[k], v)
		}
	}

	_, err = MappingFromWorkDir(out, work, []string{filepath.Join(string(filepath.Separator), "elsewhere", "x")})
	var invalid *InvalidPathError
	if !errors.As(err, &invalid) {
		t.Errorf("MappingFromWorkDir() error = %v, want *InvalidPathError", err)
	}
}

func TestIsWithin(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "root")
	tests := []struct {
		path string
		want bool
	}{
		{root, true},
		{filepath.Join(root, "a"), true},
		{filepath.Join(root, "..data"), true},
		{filepath.Join(root, "..", "a"), false},
		{filepath.Join(string(filepath.Separator), "rootless"), false},
	}
	for _, tt := range tests {
		if got := isWithin(root, tt.path); got != tt.want {
			t.Errorf("isWithin(%q, %q) = %v, want %v", root, tt.path, got, tt.want)
		}
	}
}

func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()
	tree := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			tree[path+"/"] = ""
			return nil
		}
		tree[path] = util.ReadFile(t, path)
		return nil
	})
	util.AssertNoError(t, err)
	return tree
}
