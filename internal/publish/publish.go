package publish

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/campusfeed/campusfeed/internal/fetch"
)

// Config describes the content repository.
type Config struct {
	RepoURL     string
	Branch      string
	Token       string
	AuthorName  string
	AuthorEmail string
	// Dir is the local checkout path.
	Dir string
}

// Publisher stages assembled outputs into a checkout of the content
// repository and pushes them.
type Publisher struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Publisher.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "campusfeed-bot"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "campusfeed-bot@users.noreply.github.com"
	}
	return &Publisher{cfg: cfg, logger: logger}
}

// Dir returns the local checkout path.
func (p *Publisher) Dir() string {
	return p.cfg.Dir
}

// Init clones or updates the checkout. Call before reading existing
// published state and again-safe before staging.
func (p *Publisher) Init(ctx context.Context) error {
	p.logger.Info("initializing content repository", "branch", p.cfg.Branch, "dir", p.cfg.Dir)
	if err := initRepo(ctx, p.cfg.Dir, p.cfg.RepoURL, p.cfg.Token, p.cfg.Branch); err != nil {
		return fmt.Errorf("failed to initialize content repository: %w", err)
	}
	return nil
}

// Stage copies an assembled output tree into v1/<target> inside the
// checkout and returns the number of files copied. A missing source
// directory stages nothing.
func (p *Publisher) Stage(target, srcDir string) (int, error) {
	if _, err := os.Stat(srcDir); err != nil {
		p.logger.Debug("nothing to stage", "target", target, "src", srcDir)
		return 0, nil
	}
	dstDir := filepath.Join(p.cfg.Dir, "v1", target)

	copied := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, rel)
		if d.IsDir() {
			return os.MkdirAll(dst, 0o755)
		}
		if err := copyFile(path, dst); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("failed to stage %s: %w", target, err)
	}
	p.logger.Info("staged output", "target", target, "files", copied)
	return copied, nil
}

// MergeHashes folds newly processed document digests into the hash
// store kept inside the repository, so future runs skip them.
func (p *Publisher) MergeHashes(target string, fresh map[string]string) error {
	if len(fresh) == 0 {
		return nil
	}
	path := p.HashStorePath(target)
	store, err := fetch.LoadHashStore(path)
	if err != nil {
		return err
	}
	for url, digest := range fresh {
		store.Record(url, digest)
	}
	if err := store.Save(); err != nil {
		return err
	}
	p.logger.Info("merged processed hashes", "target", target, "total", store.Len())
	return nil
}

// HashStorePath returns the processed-hash store location for a target
// inside the checkout.
func (p *Publisher) HashStorePath(target string) string {
	return filepath.Join(p.cfg.Dir, "v1", target, "processed_hashes.json")
}

// CommitAndPush commits all staged content as the configured author and
// pushes. Returns false when there was nothing to commit; that is not an
// error.
func (p *Publisher) CommitAndPush(ctx context.Context, message string) (bool, error) {
	dir := p.cfg.Dir
	if err := git(ctx, dir, "config", "user.name", p.cfg.AuthorName); err != nil {
		return false, err
	}
	if err := git(ctx, dir, "config", "user.email", p.cfg.AuthorEmail); err != nil {
		return false, err
	}
	if err := git(ctx, dir, "add", "."); err != nil {
		return false, err
	}

	changed, err := hasStagedChanges(ctx, dir)
	if err != nil {
		return false, err
	}
	if !changed {
		p.logger.Info("no changes to publish")
		return false, nil
	}

	if err := git(ctx, dir, "commit", "-m", message); err != nil {
		return false, err
	}
	if err := git(ctx, dir, "remote", "set-url", "origin", AuthURL(p.cfg.RepoURL, p.cfg.Token)); err != nil {
		return false, err
	}
	if err := git(ctx, dir, "push", "origin", p.cfg.Branch); err != nil {
		return false, err
	}
	p.logger.Info("pushed content update", "branch", p.cfg.Branch)
	return true, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
