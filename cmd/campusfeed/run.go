package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/campusfeed/campusfeed/internal/config"
	"github.com/campusfeed/campusfeed/internal/fetch"
	"github.com/campusfeed/campusfeed/internal/notify"
	"github.com/campusfeed/campusfeed/internal/ocr"
	"github.com/campusfeed/campusfeed/internal/pageproc"
	"github.com/campusfeed/campusfeed/internal/pipeline"
	"github.com/campusfeed/campusfeed/internal/providers"
	"github.com/campusfeed/campusfeed/internal/publish"
	"github.com/campusfeed/campusfeed/internal/render"
	"github.com/campusfeed/campusfeed/internal/scrape"
	"github.com/campusfeed/campusfeed/internal/svcctx"
	"github.com/campusfeed/campusfeed/internal/workdir"
)

var knownTargets = []string{"classes", "meals", "events", "rules"}

var runCmd = &cobra.Command{
	Use:   "run [target...]",
	Short: "Run the extraction pipeline",
	Long: `Run scrapes each target's listing page, downloads new PDFs, extracts
their contents, and assembles the final JSON outputs. With no arguments
every enabled target runs; naming targets restricts the run to those.

When publishing is enabled the assembled outputs are committed and
pushed to the content repository afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd.Context(), args)
	},
}

// app bundles the per-run service graph. Target settings are read from
// the manager at target start, so a config edit during a long run
// affects the targets that have not started yet.
type app struct {
	cm        *config.Manager
	scraper   *scrape.Scraper
	fetcher   *fetch.Fetcher
	ocr       ocr.Provider
	publisher *publish.Publisher // nil when publishing is disabled
}

func runPipeline(ctx context.Context, args []string) error {
	cm, err := config.NewManager(cfgFile)
	if err != nil {
		return err
	}
	cm.OnChange(func(*config.Config) {
		rootLogger.Info("configuration reloaded")
	})
	cm.WatchConfig()
	cfg := cm.Get()

	targets, err := selectTargets(cfg, args)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		rootLogger.Warn("no enabled targets")
		return nil
	}

	wd, err := workdir.New(workDir)
	if err != nil {
		return err
	}
	if err := wd.EnsureExists(); err != nil {
		return err
	}

	registry := providers.NewRegistry(rootLogger)
	defer registry.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Discord.Enabled {
		notifier = notify.NewDiscordClient(config.ResolveEnvVars(cfg.Discord.WebhookURL))
	}

	a := &app{
		cm:      cm,
		scraper: scrape.New(nil),
		fetcher: fetch.New(nil),
		ocr:     buildOCR(cfg),
	}
	if cfg.Publish.Enabled {
		a.publisher = publish.New(publish.Config{
			RepoURL:     cfg.Publish.Repo,
			Branch:      cfg.Publish.Branch,
			Token:       config.ResolveEnvVars(cfg.Publish.Token),
			AuthorName:  cfg.Publish.AuthorName,
			AuthorEmail: cfg.Publish.AuthorEmail,
			Dir:         filepath.Join(wd.Path(), "content-repo"),
		}, rootLogger)
		if err := a.publisher.Init(ctx); err != nil {
			return err
		}
	}

	ctx = svcctx.WithServices(ctx, &svcctx.Services{
		Logger:   rootLogger,
		Registry: registry,
		Notifier: notifier,
		Workdir:  wd,
	})

	var failed, updated []string
	outcomes := map[string]*pipeline.Outcome{}
	for _, name := range targets {
		outcome, err := a.runTarget(ctx, name)
		if err != nil {
			svcctx.LoggerFrom(ctx).Error("target failed", "target", name, "error", err)
			notifyError(ctx, name, err)
			failed = append(failed, name)
			continue
		}
		outcomes[name] = outcome
		notifyOutcome(ctx, outcome)
		if !outcome.OK() {
			failed = append(failed, name)
		}
		if outcome.Updated() {
			updated = append(updated, name)
		}
	}

	if err := a.persistHashes(ctx, outcomes); err != nil {
		return err
	}
	if a.publisher != nil && len(updated) > 0 {
		if err := a.publishUpdates(ctx, updated, outcomes); err != nil {
			notifyError(ctx, "publish", err)
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("targets failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

// selectTargets resolves the run's target list: explicit arguments, or
// every enabled target.
func selectTargets(cfg *config.Config, args []string) ([]string, error) {
	if len(args) == 0 {
		return cfg.EnabledTargets(), nil
	}
	for _, name := range args {
		found := false
		for _, known := range knownTargets {
			if name == known {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown target %q (valid: %s)", name, strings.Join(knownTargets, ", "))
		}
		if _, ok := cfg.Target(name); !ok {
			return nil, fmt.Errorf("target %q is not configured", name)
		}
	}
	return args, nil
}

func buildOCR(cfg *config.Config) ocr.Provider {
	if !cfg.OCR.Enabled {
		return ocr.Nop{}
	}
	return ocr.NewMistralClient(ocr.MistralConfig{
		APIKey: config.ResolveEnvVars(cfg.OCR.APIKey),
		Logger: rootLogger,
	})
}

func (a *app) runTarget(ctx context.Context, name string) (*pipeline.Outcome, error) {
	tcfg, ok := a.cm.Get().Target(name)
	if !ok {
		return nil, fmt.Errorf("target %q is not configured", name)
	}
	hashes, err := a.loadHashes(ctx, name)
	if err != nil {
		return nil, err
	}
	if name == "rules" {
		return a.runRules(ctx, tcfg, hashes)
	}
	return a.runDocTarget(ctx, name, tcfg, hashes)
}

// runDocTarget handles the page-image extraction targets: classes,
// meals, and events.
func (a *app) runDocTarget(ctx context.Context, name string, tcfg config.TargetCfg, hashes *fetch.HashStore) (*pipeline.Outcome, error) {
	logger := svcctx.LoggerFrom(ctx)
	wd := svcctx.WorkdirFrom(ctx)

	mode, err := pageproc.ParseCallMode(tcfg.CallMode)
	if err != nil {
		return nil, err
	}
	strategy, err := pageproc.ParseMergeStrategy(tcfg.MergeStrategy)
	if err != nil {
		return nil, err
	}
	dpi := tcfg.DPI
	if dpi == 0 {
		dpi = render.DefaultDPI
	}

	cfg := a.cm.Get()
	caller, err := svcctx.RegistryFrom(ctx).Caller(cfg.ModelConfig(""))
	if err != nil {
		return nil, err
	}

	links, err := a.scraper.FetchPDFLinks(ctx, tcfg.URL)
	if err != nil {
		return nil, err
	}
	links = scrape.SortByUpcoming(links, time.Now())
	outcome := pipeline.NewOutcome(name)
	if len(links) == 0 {
		logger.Warn("no document links found", "target", name, "url", tcfg.URL)
		return outcome, nil
	}
	// The timetable and calendar pages carry superseded PDFs; only the
	// most relevant one is processed. The menu page publishes one PDF per
	// month and all of them matter.
	if name != "meals" {
		links = links[:1]
	}

	for i, link := range links {
		docID := docLabel(link, i)
		doc, err := a.fetcher.Fetch(ctx, link.URL)
		if err != nil {
			logger.Error("download failed", "target", name, "doc", docID, "error", err)
			outcome.Failed = append(outcome.Failed, docID)
			continue
		}
		if hashes.Seen(link.URL, doc.Digest) {
			logger.Info("document unchanged, skipping", "target", name, "doc", docID)
			outcome.Skipped = append(outcome.Skipped, docID)
			continue
		}

		pdfPath := filepath.Join(wd.TargetPath(name), docID+".pdf")
		if err := os.MkdirAll(filepath.Dir(pdfPath), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(pdfPath, doc.Data, 0o644); err != nil {
			return nil, err
		}

		runner := &pipeline.DocRunner{
			Proc: pageproc.New(pageproc.Config{
				Caller:      caller,
				OCR:         a.ocr,
				Reporter:    pageproc.SlogReporter{Logger: logger, Doc: docID},
				Temperature: cfg.Model.Temperature,
				MaxTokens:   cfg.Model.MaxTokens,
				Schema:      targetSchema(name),
			}),
			Workdir: wd,
			Logger:  logger,
		}

		var docOutcome *pipeline.DocOutcome
		switch name {
		case "meals":
			p := &pipeline.Meals{Runner: runner, CallMode: mode, Strategy: strategy, DPI: dpi}
			docOutcome, err = p.Process(ctx, docID, pdfPath)
		case "classes":
			p := &pipeline.Classes{Runner: runner, CallMode: mode, Strategy: strategy, DPI: dpi}
			docOutcome, err = p.Process(ctx, docID, pdfPath)
		case "events":
			p := &pipeline.Events{Runner: runner, CallMode: mode, Strategy: strategy, DPI: dpi}
			docOutcome, err = p.Process(ctx, docID, pdfPath, link.Text)
		default:
			return nil, fmt.Errorf("no pipeline for target %q", name)
		}
		if err != nil {
			logger.Error("processing failed", "target", name, "doc", docID, "error", err)
			outcome.Failed = append(outcome.Failed, docID)
			continue
		}
		if !docOutcome.Clean() {
			logger.Error("document had failed pages",
				"target", name, "doc", docID, "failed_pages", len(docOutcome.FailedPages))
			outcome.Failed = append(outcome.Failed, docID)
			continue
		}
		outcome.Processed = append(outcome.Processed, docID)
		outcome.Hashes[link.URL] = doc.Digest
	}
	return outcome, nil
}

func (a *app) runRules(ctx context.Context, tcfg config.TargetCfg, hashes *fetch.HashStore) (*pipeline.Outcome, error) {
	chapters, err := a.scraper.FetchRuleChapters(ctx, tcfg.URL)
	if err != nil {
		return nil, err
	}
	structure := make([]pipeline.RuleChapterLink, 0, len(chapters))
	for _, ch := range chapters {
		entry := pipeline.RuleChapterLink{Name: ch.Name}
		for _, link := range ch.Links {
			entry.Contents = append(entry.Contents, pipeline.RuleLink{Name: link.Text, URL: link.URL})
		}
		structure = append(structure, entry)
	}

	cfg := a.cm.Get()
	registry := svcctx.RegistryFrom(ctx)
	var callers []providers.Caller
	for _, model := range append([]string{""}, cfg.Model.Fallbacks...) {
		caller, err := registry.Caller(cfg.ModelConfig(model))
		if err != nil {
			return nil, err
		}
		callers = append(callers, caller)
	}

	dpi := tcfg.DPI
	if dpi == 0 {
		dpi = render.DefaultDPI
	}
	repoDir := ""
	if a.publisher != nil {
		repoDir = a.publisher.Dir()
	}
	rules := &pipeline.Rules{
		Callers: callers,
		Fetcher: a.fetcher,
		OCR:     a.ocr,
		Workdir: svcctx.WorkdirFrom(ctx),
		Logger:  svcctx.LoggerFrom(ctx),
		DPI:     dpi,
		RepoDir: repoDir,
	}
	return rules.Process(ctx, structure, hashes)
}

// loadHashes assembles the processed-digest view for a target: the local
// store plus, when publishing, the store kept in the content repository.
func (a *app) loadHashes(ctx context.Context, name string) (*fetch.HashStore, error) {
	store, err := fetch.LoadHashStore(svcctx.WorkdirFrom(ctx).HashesPath(name))
	if err != nil {
		return nil, err
	}
	if a.publisher != nil {
		repoStore, err := fetch.LoadHashStore(a.publisher.HashStorePath(name))
		if err != nil {
			return nil, err
		}
		store.Merge(repoStore)
	}
	return store, nil
}

// persistHashes records freshly processed digests in the local stores.
func (a *app) persistHashes(ctx context.Context, outcomes map[string]*pipeline.Outcome) error {
	wd := svcctx.WorkdirFrom(ctx)
	for name, outcome := range outcomes {
		if len(outcome.Hashes) == 0 {
			continue
		}
		store, err := fetch.LoadHashStore(wd.HashesPath(name))
		if err != nil {
			return err
		}
		for url, digest := range outcome.Hashes {
			store.Record(url, digest)
		}
		if err := store.Save(); err != nil {
			return err
		}
	}
	return nil
}

// publishUpdates stages updated targets into the content repository and
// pushes one commit. The per-target digest stores inside the repository
// are updated in the same commit.
func (a *app) publishUpdates(ctx context.Context, updated []string, outcomes map[string]*pipeline.Outcome) error {
	wd := svcctx.WorkdirFrom(ctx)
	for _, name := range updated {
		if _, err := a.publisher.Stage(name, wd.FinalDir(name)); err != nil {
			return err
		}
		if outcome := outcomes[name]; outcome != nil {
			if err := a.publisher.MergeHashes(name, outcome.Hashes); err != nil {
				return err
			}
		}
	}
	_, err := a.publisher.CommitAndPush(ctx,
		fmt.Sprintf("Update %s (%s)", strings.Join(updated, ", "), time.Now().Format("2006-01-02 15:04")))
	return err
}

// targetSchema returns the structured-output schema for a target.
// Only the event calendar has one; the other prompts embed their
// expected shape as text.
func targetSchema(name string) json.RawMessage {
	if name == "events" {
		return pipeline.EventsSchema()
	}
	return nil
}

// docLabel derives a stable document label from the link, preferring the
// publication year-month encoded in its text or URL.
func docLabel(link scrape.Link, index int) string {
	if ym, ok := scrape.ExtractYearMonth(link.Text + " " + link.URL); ok {
		return fmt.Sprintf("%d-%02d", ym.Year, ym.Month)
	}
	return fmt.Sprintf("pdf_%02d", index+1)
}

func notifyOutcome(ctx context.Context, outcome *pipeline.Outcome) {
	msg := notify.Message{Title: outcome.Target}
	switch {
	case !outcome.OK():
		msg.Level = notify.LevelError
		msg.Description = "一部のドキュメントの処理に失敗しました。"
		msg.Fields = append(msg.Fields, notify.Field{Name: "失敗", Value: strings.Join(outcome.Failed, "\n")})
	case outcome.Updated():
		msg.Level = notify.LevelSuccess
		msg.Description = "コンテンツを更新しました。"
		msg.Fields = append(msg.Fields, notify.Field{Name: "処理済み", Value: strings.Join(outcome.Processed, "\n")})
	default:
		msg.Level = notify.LevelNoUpdate
		msg.Description = "更新はありませんでした。"
	}
	if len(outcome.Skipped) > 0 {
		msg.Fields = append(msg.Fields, notify.Field{
			Name: "スキップ", Value: fmt.Sprintf("%d件", len(outcome.Skipped)), Inline: true,
		})
	}
	deliver(ctx, msg)
}

func notifyError(ctx context.Context, target string, err error) {
	deliver(ctx, notify.Message{
		Title:       target,
		Level:       notify.LevelError,
		Description: err.Error(),
	})
}

func deliver(ctx context.Context, msg notify.Message) {
	if err := svcctx.NotifierFrom(ctx).Notify(ctx, msg); err != nil {
		svcctx.LoggerFrom(ctx).Warn("notification failed", "error", err)
	}
}
