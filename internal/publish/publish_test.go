package publish

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/campusfeed/campusfeed/internal/fetch"
)

func TestAuthURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		token string
		want  string
	}{
		{
			"embeds token",
			"https://github.com/example/content.git", "tok123",
			"https://tok123@github.com/example/content.git",
		},
		{
			"already authenticated",
			"https://user@github.com/example/content.git", "tok123",
			"https://user@github.com/example/content.git",
		},
		{
			"empty token",
			"https://github.com/example/content.git", "",
			"https://github.com/example/content.git",
		},
		{
			"non-github host",
			"https://gitlab.example.jp/x/y.git", "tok123",
			"https://gitlab.example.jp/x/y.git",
		},
	}
	for _, tt := range tests {
		if got := AuthURL(tt.url, tt.token); got != tt.want {
			t.Errorf("%s: AuthURL() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestStageCopiesTree(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "2026B"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(src, "2026B", "1_0.json"), `{"data":[]}`)
	writeFile(t, filepath.Join(src, "index.json"), `{}`)

	repoDir := t.TempDir()
	p := New(Config{Dir: repoDir}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	copied, err := p.Stage("classes", src)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if copied != 2 {
		t.Errorf("copied = %d, want 2", copied)
	}
	got, err := os.ReadFile(filepath.Join(repoDir, "v1", "classes", "2026B", "1_0.json"))
	if err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if string(got) != `{"data":[]}` {
		t.Errorf("staged content = %q", got)
	}
}

func TestStageMissingSource(t *testing.T) {
	p := New(Config{Dir: t.TempDir()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	copied, err := p.Stage("meals", filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if copied != 0 {
		t.Errorf("copied = %d, want 0", copied)
	}
}

func TestMergeHashes(t *testing.T) {
	repoDir := t.TempDir()
	p := New(Config{Dir: repoDir}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	writeFile(t, p.HashStorePath("meals"), `{"https://school.example.jp/a.pdf":"old"}`)

	err := p.MergeHashes("meals", map[string]string{
		"https://school.example.jp/a.pdf": "new",
		"https://school.example.jp/b.pdf": "b1",
	})
	if err != nil {
		t.Fatalf("MergeHashes() error = %v", err)
	}

	store, err := fetch.LoadHashStore(p.HashStorePath("meals"))
	if err != nil {
		t.Fatal(err)
	}
	if !store.Seen("https://school.example.jp/a.pdf", "new") {
		t.Error("fresh digest should win")
	}
	if !store.Seen("https://school.example.jp/b.pdf", "b1") {
		t.Error("new entry missing")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
