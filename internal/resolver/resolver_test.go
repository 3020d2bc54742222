package resolver

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/klauern/mirrorsync/internal/hashing"
	"github.com/klauern/mirrorsync/internal/model"
	"github.com/klauern/mirrorsync/internal/progress"
)

func digestOf(t *testing.T, content string) string {
	t.Helper()
	d, err := hashing.Digest(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Digest() error = %v", err)
	}
	return d
}

func newTestResolver(t *testing.T, files map[string]string) *Resolver {
	t.Helper()
	memFs := afero.NewMemMapFs()
	for path, content := range files {
		if err := afero.WriteFile(memFs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
	return New(hashing.New(hashing.WithFs(memFs)))
}

func TestResolve_AllUpToDate(t *testing.T) {
	files := map[string]string{
		"/libs/a.jar": "a",
		"/libs/b.jar": "b",
		"/libs/c.jar": "c",
	}
	r := newTestResolver(t, files)

	var entries []model.CheckEntry
	for _, path := range []string{"/libs/a.jar", "/libs/b.jar", "/libs/c.jar"} {
		entries = append(entries, model.CheckEntry{
			URL:          "https://example.com" + path,
			ExpectedHash: digestOf(t, files[path]),
			Path:         path,
		})
	}

	rec := &progress.Recorder{}
	got, err := r.Resolve(context.Background(), entries, rec)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve() = %v, want no downloads", got)
	}

	snap := rec.Snapshot()
	if len(snap.Stages) == 0 || snap.Stages[0] != progress.StageCheckingFiles {
		t.Errorf("stages = %v, want %q first", snap.Stages, progress.StageCheckingFiles)
	}
	if snap.Length != 3 || snap.Done != 3 {
		t.Errorf("progress length=%d done=%d, want 3/3", snap.Length, snap.Done)
	}
}

func TestResolve_SelectsStaleEntries(t *testing.T) {
	r := newTestResolver(t, map[string]string{
		"/libs/ok.jar":      "ok",
		"/libs/changed.jar": "old",
		"/libs/nohash.jar":  "anything",
	})

	entries := []model.CheckEntry{
		{URL: "u-ok", ExpectedHash: digestOf(t, "ok"), Path: "/libs/ok.jar"},
		{URL: "u-changed", ExpectedHash: digestOf(t, "new"), Path: "/libs/changed.jar"},
		{URL: "u-missing", ExpectedHash: digestOf(t, "x"), Path: "/libs/missing.jar"},
		{URL: "u-nohash", Path: "/libs/nohash.jar"},
		{URL: "u-nohash-missing", Path: "/libs/nohash-missing.jar"},
	}

	got, err := r.Resolve(context.Background(), entries, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []model.DownloadEntry{
		{URL: "u-changed", Path: "/libs/changed.jar"},
		{URL: "u-missing", Path: "/libs/missing.jar"},
		{URL: "u-nohash-missing", Path: "/libs/nohash-missing.jar"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_UppercaseDigestMatches(t *testing.T) {
	r := newTestResolver(t, map[string]string{"/a": "a"})

	got, err := r.Resolve(context.Background(), []model.CheckEntry{
		{URL: "u", ExpectedHash: strings.ToUpper(digestOf(t, "a")), Path: "/a"},
	}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Resolve() = %v, want no downloads", got)
	}
}

func TestResolve_DeduplicatesByPathLastWins(t *testing.T) {
	r := newTestResolver(t, nil)

	entries := []model.CheckEntry{
		{URL: "first", Path: "/libs/a.jar"},
		{URL: "other", Path: "/libs/b.jar"},
		{URL: "second", Path: "/libs/a.jar"},
	}

	got, err := r.Resolve(context.Background(), entries, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []model.DownloadEntry{
		{URL: "second", Path: "/libs/a.jar"},
		{URL: "other", Path: "/libs/b.jar"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolve_DirectoryAtPathIsFetched(t *testing.T) {
	memFs := afero.NewMemMapFs()
	if err := memFs.MkdirAll("/libs/a.jar", 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	r := New(hashing.New(hashing.WithFs(memFs)))

	got, err := r.Resolve(context.Background(), []model.CheckEntry{
		{URL: "u", ExpectedHash: digestOf(t, "a"), Path: "/libs/a.jar"},
	}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 1 || got[0].Path != "/libs/a.jar" {
		t.Errorf("Resolve() = %v, want the directory path fetched", got)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	r := newTestResolver(t, map[string]string{"/a": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Resolve(ctx, []model.CheckEntry{
		{URL: "u", ExpectedHash: digestOf(t, "a"), Path: "/a"},
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestNeedsFetch_HashMissing(t *testing.T) {
	entry := model.CheckEntry{URL: "u", ExpectedHash: "abc", Path: "/a"}

	_, err := needsFetch(entry, true, map[string]string{})

	var hm *HashMissingError
	if !errors.As(err, &hm) {
		t.Fatalf("needsFetch() error = %v, want *HashMissingError", err)
	}
	if hm.Path != "/a" {
		t.Errorf("HashMissingError.Path = %q, want /a", hm.Path)
	}
	if !strings.Contains(err.Error(), "/a") {
		t.Errorf("error message %q should name the path", err.Error())
	}
}
