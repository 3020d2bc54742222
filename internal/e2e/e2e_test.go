package e2e

import (
	"context"
	"errors"
	"testing"
)

func TestFetchThenMirror_PublishesInstance(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()
	out := h.TempFixture()

	coreURL := remote.Publish("/libs/core.jar", "core v1")
	utilURL := remote.Publish("/libs/util.jar", "util v1")
	manifest := work.WriteManifest("manifest.yaml", "instance",
		ManifestEntry{URL: coreURL, Content: "core v1", Path: "libs/core.jar"},
		ManifestEntry{URL: utilURL, Content: "util v1", Path: "libs/util.jar"},
	)
	work.WriteFile("instance/config/options.txt", "fov=90")

	r := h.Run("fetch", "--manifest", manifest)
	r.MustSucceed(t)
	r.Printed(t, "Downloaded 2 files")

	r = h.Run("mirror", "--target", out.Path(""),
		"--map", "libs="+work.Path("instance/libs"),
		"--map", "config/options.txt="+work.Path("instance/config/options.txt"))
	r.MustSucceed(t)
	r.Printed(t, "3 files copied")
	out.HasContent("libs/core.jar", "core v1")
	out.HasContent("config/options.txt", "fov=90")

	// A new release of one library only moves that library.
	remote.Publish("/libs/core.jar", "core v2")
	manifest = work.WriteManifest("manifest.yaml", "instance",
		ManifestEntry{URL: coreURL, Content: "core v2", Path: "libs/core.jar"},
		ManifestEntry{URL: utilURL, Content: "util v1", Path: "libs/util.jar"},
	)

	r = h.Run("fetch", "--manifest", manifest)
	r.MustSucceed(t)
	r.Printed(t, "Downloaded 1 file (1 already up to date)")
	if got := remote.Requests("/libs/util.jar"); got != 1 {
		t.Errorf("util.jar requested %d times, want 1", got)
	}

	r = h.Run("mirror", "--target", out.Path(""),
		"--map", "libs="+work.Path("instance/libs"),
		"--map", "config/options.txt="+work.Path("instance/config/options.txt"))
	r.MustSucceed(t)
	r.Printed(t, "1 file copied, 2 files unchanged")
	out.HasContent("libs/core.jar", "core v2")
}

func TestFetch_UpToDateFilesAreNotRequested(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()

	url := remote.Publish("/a.bin", "payload")
	work.WriteFile("a.bin", "payload")
	manifest := work.WriteManifest("m.yaml", "", ManifestEntry{URL: url, Content: "payload", Path: "a.bin"})

	r := h.Run("fetch", "--manifest", manifest)
	r.MustSucceed(t)
	r.Printed(t, "All 1 file up to date")
	if got := remote.Requests("/a.bin"); got != 0 {
		t.Errorf("up-to-date file requested %d times", got)
	}
}

func TestFetch_RemovesLeftoverTempFiles(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()

	url := remote.Publish("/a.bin", "fresh")
	work.WriteFile("a.bin.tmp", "half a download")
	manifest := work.WriteManifest("m.yaml", "", ManifestEntry{URL: url, Content: "fresh", Path: "a.bin"})

	r := h.Run("fetch", "--manifest", manifest)
	r.MustSucceed(t)
	work.HasContent("a.bin", "fresh")
	work.Missing("a.bin.tmp")
}

func TestFetch_HashMismatchOnDiskIsRepaired(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()

	url := remote.Publish("/a.bin", "good")
	work.WriteFile("a.bin", "tampered")
	manifest := work.WriteManifest("m.yaml", "", ManifestEntry{URL: url, Content: "good", Path: "a.bin"})

	h.Run("fetch", "--manifest", manifest).MustSucceed(t)
	work.HasContent("a.bin", "good")
}

func TestFetch_MissingRemoteFileFails(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()

	manifest := work.WriteManifest("m.yaml", "", ManifestEntry{URL: remote.URL + "/gone", Path: "gone"})

	r := h.Run("fetch", "--manifest", manifest)
	r.MustFail(t, "404")
	work.Missing("gone")
	work.Missing("gone.tmp")
}

func TestFetch_ConfigFileIsHonored(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()

	url := remote.Publish("/a.bin", "x")
	manifest := work.WriteManifest("m.yaml", "", ManifestEntry{URL: url, Path: "a.bin"})
	configPath := work.WriteFile("config.yaml", "download:\n  min_concurrency: 0\n")

	r := h.Run("--config", configPath, "fetch", "--manifest", manifest)
	r.MustFail(t, "min_concurrency")

	h.Run("--config", configPath, "config", "init", "--force").MustSucceed(t)
	h.Run("--config", configPath, "fetch", "--manifest", manifest).MustSucceed(t)
	work.HasContent("a.bin", "x")
}

func TestFetch_CancelledRun(t *testing.T) {
	h := NewHarness(t)
	remote := NewRemote(t)
	work := h.TempFixture()

	url := remote.Publish("/a.bin", "x")
	manifest := work.WriteManifest("m.yaml", "", ManifestEntry{URL: url, Path: "a.bin"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := h.RunContext(ctx, "fetch", "--manifest", manifest)
	r.MustFail(t)
	if !errors.Is(r.Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", r.Err)
	}
	work.Missing("a.bin")
}

func TestMirror_MappingFileDropsRemovedEntries(t *testing.T) {
	h := NewHarness(t)
	src := h.TempFixture()
	out := h.TempFixture()

	src.WriteFile("a.txt", "a")
	src.WriteFile("b/c.txt", "c")
	mapping := src.WriteFile("layout.yaml", `mappings:
  - target: a.txt
    source: a.txt
  - target: deep/c.txt
    source: b/c.txt
`)

	h.Run("mirror", "--mapping", mapping, "--target", out.Path("")).MustSucceed(t)
	out.HasContent("deep/c.txt", "c")

	src.WriteFile("layout.yaml", `mappings:
  - target: a.txt
    source: a.txt
`)
	r := h.Run("mirror", "--mapping", mapping, "--target", out.Path(""))
	r.MustSucceed(t)
	r.Printed(t, "1 file deleted, 1 empty dir pruned")
	out.Missing("deep")
	if !out.Exists("a.txt") {
		t.Error("expected a.txt to remain")
	}
}

func TestHashOutputFeedsManifest(t *testing.T) {
	h := NewHarness(t)
	work := h.TempFixture()
	path := work.WriteFile("a.bin", "payload")

	r := h.Run("hash", path)
	r.MustSucceed(t)
	r.Printed(t, SHA1("payload")+"  "+path)
}
