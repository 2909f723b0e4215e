package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/campusfeed/campusfeed/internal/fetch"
	"github.com/campusfeed/campusfeed/internal/jsonx"
	"github.com/campusfeed/campusfeed/internal/ocr"
	"github.com/campusfeed/campusfeed/internal/providers"
	"github.com/campusfeed/campusfeed/internal/render"
	"github.com/campusfeed/campusfeed/internal/workdir"
)

var (
	articleLabelRe = regexp.MustCompile(`^(第[〇零一二三四五六七八九十百千万0-9]+条)`)
	controlCharRe  = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f]")
)

// rulesExpectedKeys gate acceptance of extracted rule payloads.
var rulesExpectedKeys = []string{"summary", "sections", "other_texts"}

const (
	rulesMaxAttempts   = 3
	rulesThrottle      = time.Second
	rulesVersionLayout = "20060102T150405Z"
)

// RuleChapterLink is one chapter scraped from the rules listing page.
type RuleChapterLink struct {
	Name     string     `json:"name"`
	Contents []RuleLink `json:"contents"`
}

// RuleLink is one rule document inside a chapter.
type RuleLink struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RuleItem is one rule slotted into the published ID space.
type RuleItem struct {
	ChapterID    string
	ChapterTitle string
	ChapterOrder int
	RuleID       string
	RuleTitle    string
	RuleOrder    int
	PDFURL       string
}

// ChapterEntry is one chapter in the published index.
type ChapterEntry struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Order   int      `json:"order"`
	RuleIDs []string `json:"ruleIds"`
}

// RuleMeta is one rule's entry in the published index.
type RuleMeta struct {
	ID          string  `json:"id"`
	ChapterID   string  `json:"chapterId"`
	Title       string  `json:"title"`
	Summary     *string `json:"summary"`
	Order       int     `json:"order"`
	PDFURL      string  `json:"pdfUrl"`
	SourcePage  *string `json:"sourcePage"`
	LastUpdated *string `json:"lastUpdated"`
}

// RulesIndex is the published index.json shape.
type RulesIndex struct {
	Version     string         `json:"version"`
	GeneratedAt string         `json:"generatedAt"`
	Chapters    []ChapterEntry `json:"chapters"`
	Rules       []RuleMeta     `json:"rules"`
}

// RuleArticle is one article in a published rule detail.
type RuleArticle struct {
	ID         string   `json:"id"`
	Label      *string  `json:"label"`
	Body       string   `json:"body"`
	Notes      *string  `json:"notes"`
	RelatedIDs []string `json:"relatedIds"`
}

// RuleSection groups titled articles in a published rule detail.
type RuleSection struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Order    int           `json:"order"`
	Articles []RuleArticle `json:"articles"`
}

// RuleDetail is the published per-rule document.
type RuleDetail struct {
	ID          string        `json:"id"`
	ChapterID   string        `json:"chapterId"`
	Title       string        `json:"title"`
	Summary     *string       `json:"summary"`
	Order       int           `json:"order"`
	PDFURL      string        `json:"pdfUrl"`
	SourcePage  *string       `json:"sourcePage"`
	LastUpdated *string       `json:"lastUpdated"`
	Sections    []RuleSection `json:"sections"`
	Articles    []RuleArticle `json:"articles"`
	RelatedIDs  []string      `json:"relatedIds"`
}

// MinimalArticle is one article as extracted by the model.
type MinimalArticle struct {
	Label   *string
	Content string
}

// MinimalSection is one titled block as extracted by the model.
type MinimalSection struct {
	Title    string
	Articles []MinimalArticle
}

// MinimalPayload is the reduced extraction shape requested from the
// model before composition into the published detail.
type MinimalPayload struct {
	Summary    *string
	Sections   []MinimalSection
	OtherTexts string
}

// Empty reports whether the payload carries no usable content.
func (p *MinimalPayload) Empty() bool {
	return len(p.Sections) == 0 && p.OtherTexts == ""
}

// SplitArticleLabel separates a leading article label (第N条) from the
// body. When nothing follows the label, the full text stays as the body
// so content is never lost.
func SplitArticleLabel(text string) (*string, string) {
	stripped := strings.TrimSpace(text)
	m := articleLabelRe.FindStringSubmatch(stripped)
	if m == nil {
		return nil, stripped
	}
	label := m[1]
	remainder := strings.TrimLeft(stripped[len(label):], " :：　")
	if remainder != "" {
		return &label, remainder
	}
	return &label, stripped
}

// SanitizeRulesMarkdown strips control characters the OCR occasionally
// emits; they break JSON encoding downstream.
func SanitizeRulesMarkdown(markdown string) string {
	return controlCharRe.ReplaceAllString(markdown, "")
}

// SanitizeMinimalPayload validates and normalizes a raw extracted
// mapping into a MinimalPayload. Articles may arrive as objects or bare
// strings; strings get their label split off.
func SanitizeMinimalPayload(data map[string]any) (*MinimalPayload, error) {
	payload := &MinimalPayload{}

	if summary, ok := data["summary"].(string); ok && strings.TrimSpace(summary) != "" {
		payload.Summary = &summary
	}

	if rawSections, present := data["sections"]; present && rawSections != nil {
		sections, ok := rawSections.([]any)
		if !ok {
			return nil, errors.New("sections must be a list")
		}
		for _, rawSection := range sections {
			section, ok := rawSection.(map[string]any)
			if !ok {
				continue
			}
			title, _ := section["title"].(string)
			out := MinimalSection{Title: title}

			if rawArticles, present := section["articles"]; present && rawArticles != nil {
				articles, ok := rawArticles.([]any)
				if !ok {
					return nil, errors.New("articles must be a list")
				}
				for _, rawArticle := range articles {
					if rawArticle == nil {
						continue
					}
					switch article := rawArticle.(type) {
					case map[string]any:
						var label *string
						if l, ok := article["label"].(string); ok {
							label = &l
						}
						content, _ := article["content"].(string)
						if content == "" {
							content, _ = article["body"].(string)
						}
						out.Articles = append(out.Articles, MinimalArticle{Label: label, Content: content})
					case string:
						label, body := SplitArticleLabel(article)
						out.Articles = append(out.Articles, MinimalArticle{Label: label, Content: body})
					default:
						label, body := SplitArticleLabel(fmt.Sprintf("%v", article))
						out.Articles = append(out.Articles, MinimalArticle{Label: label, Content: body})
					}
				}
			}
			payload.Sections = append(payload.Sections, out)
		}
	}

	if otherTexts, ok := data["other_texts"].(string); ok {
		payload.OtherTexts = otherTexts
	}
	return payload, nil
}

// ComposeRuleDetail builds the published rule document from a minimal
// payload. Article IDs are sequential across the whole rule; articles in
// untitled sections fall back to the rule-level article list, and
// other_texts becomes a trailing unlabeled article.
func ComposeRuleDetail(rule RuleItem, minimal *MinimalPayload, summaryOverride *string, lastUpdated *string) *RuleDetail {
	articleCounter := 1
	nextArticleID := func() string {
		id := fmt.Sprintf("%s-article-%04d", rule.RuleID, articleCounter)
		articleCounter++
		return id
	}

	var sections []RuleSection
	var fallback []RuleArticle

	for _, rawSection := range minimal.Sections {
		title := strings.TrimSpace(rawSection.Title)
		var articles []RuleArticle
		for _, rawArticle := range rawSection.Articles {
			if rawArticle.Content == "" {
				continue
			}
			label := rawArticle.Label
			if label != nil && strings.TrimSpace(*label) == "" {
				label = nil
			}
			entry := RuleArticle{
				ID:    nextArticleID(),
				Label: label,
				Body:  rawArticle.Content,
			}
			if title != "" {
				articles = append(articles, entry)
			} else {
				fallback = append(fallback, entry)
			}
		}
		if title != "" && len(articles) > 0 {
			sections = append(sections, RuleSection{
				ID:       fmt.Sprintf("%s-section-%02d", rule.RuleID, len(sections)+1),
				Title:    title,
				Order:    len(sections) + 1,
				Articles: articles,
			})
		}
	}

	if minimal.OtherTexts != "" {
		fallback = append(fallback, RuleArticle{
			ID:   nextArticleID(),
			Body: strings.TrimSpace(minimal.OtherTexts),
		})
	}

	summary := minimal.Summary
	if summary == nil {
		summary = summaryOverride
	}

	return &RuleDetail{
		ID:          rule.RuleID,
		ChapterID:   rule.ChapterID,
		Title:       rule.RuleTitle,
		Summary:     summary,
		Order:       rule.RuleOrder,
		PDFURL:      rule.PDFURL,
		LastUpdated: lastUpdated,
		Sections:    sections,
		Articles:    fallback,
	}
}

func parseNumericID(id, prefix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}

// nextRuleID allocates the first unused rule-NNNN at or after start.
func nextRuleID(used map[string]bool, start int) (string, int) {
	for current := start; ; current++ {
		candidate := fmt.Sprintf("rule-%04d", current)
		if !used[candidate] {
			used[candidate] = true
			return candidate, current + 1
		}
	}
}

// existingMaps indexes a previously published RulesIndex for ID reuse.
type existingMaps struct {
	rulesByID       map[string]RuleMeta
	rulesByURL      map[string]string
	rulesByKey      map[[2]string]string // (chapter title, rule title), unique keys only
	chaptersByTitle map[string]string
}

func buildExistingMaps(index *RulesIndex) existingMaps {
	m := existingMaps{
		rulesByID:       map[string]RuleMeta{},
		rulesByURL:      map[string]string{},
		rulesByKey:      map[[2]string]string{},
		chaptersByTitle: map[string]string{},
	}
	if index == nil {
		return m
	}

	chapterTitles := map[string]string{}
	for _, chapter := range index.Chapters {
		chapterTitles[chapter.ID] = chapter.Title
		if _, taken := m.chaptersByTitle[chapter.Title]; !taken {
			m.chaptersByTitle[chapter.Title] = chapter.ID
		}
	}

	keyCounts := map[[2]string]int{}
	for _, rule := range index.Rules {
		m.rulesByID[rule.ID] = rule
		if rule.PDFURL != "" {
			m.rulesByURL[rule.PDFURL] = rule.ID
		}
		if title, ok := chapterTitles[rule.ChapterID]; ok {
			keyCounts[[2]string{title, rule.Title}]++
		}
	}
	for _, rule := range index.Rules {
		title, ok := chapterTitles[rule.ChapterID]
		if !ok {
			continue
		}
		key := [2]string{title, rule.Title}
		if keyCounts[key] == 1 {
			m.rulesByKey[key] = rule.ID
		}
	}
	return m
}

// BuildRuleItems assigns stable IDs to the scraped structure: IDs are
// reused by PDF URL first, then by unique (chapter, title) pair, and
// freshly allocated otherwise.
func BuildRuleItems(structure []RuleChapterLink, existing existingMaps) ([]RuleItem, []ChapterEntry, map[string]bool) {
	usedRuleIDs := map[string]bool{}
	maxRuleNum := 0
	for id := range existing.rulesByID {
		usedRuleIDs[id] = true
		if n, ok := parseNumericID(id, "rule-"); ok && n > maxRuleNum {
			maxRuleNum = n
		}
	}
	nextRuleNum := maxRuleNum + 1

	maxChapterNum := 0
	for _, id := range existing.chaptersByTitle {
		if n, ok := parseNumericID(id, "chapter-"); ok && n > maxChapterNum {
			maxChapterNum = n
		}
	}
	nextChapterNum := maxChapterNum + 1

	var items []RuleItem
	var chapters []ChapterEntry
	activeRuleIDs := map[string]bool{}

	for chapterOrder, chapter := range structure {
		chapterID, ok := existing.chaptersByTitle[chapter.Name]
		if !ok {
			chapterID = fmt.Sprintf("chapter-%03d", nextChapterNum)
			nextChapterNum++
			existing.chaptersByTitle[chapter.Name] = chapterID
		}
		entry := ChapterEntry{
			ID:      chapterID,
			Title:   chapter.Name,
			Order:   chapterOrder + 1,
			RuleIDs: []string{},
		}

		for ruleOrder, link := range chapter.Contents {
			ruleID, ok := existing.rulesByURL[link.URL]
			if !ok {
				ruleID, ok = existing.rulesByKey[[2]string{chapter.Name, link.Name}]
			}
			if !ok {
				ruleID, nextRuleNum = nextRuleID(usedRuleIDs, nextRuleNum)
			}

			activeRuleIDs[ruleID] = true
			entry.RuleIDs = append(entry.RuleIDs, ruleID)
			items = append(items, RuleItem{
				ChapterID:    chapterID,
				ChapterTitle: chapter.Name,
				ChapterOrder: chapterOrder + 1,
				RuleID:       ruleID,
				RuleTitle:    link.Name,
				RuleOrder:    ruleOrder + 1,
				PDFURL:       link.URL,
			})
		}
		chapters = append(chapters, entry)
	}
	return items, chapters, activeRuleIDs
}

// buildRulesPrompt converts OCR markdown into the extraction request.
func buildRulesPrompt(markdown string) string {
	return "You are an assistant that converts Japanese school regulations written in Markdown into JSON.\n" +
		"Return ONLY a single JSON object with this exact schema (no extra text):\n" +
		`{"summary": string|null, "sections": [{"title": string, "articles": [{"label": string|null, "content": string}]}], "other_texts": string}` + "\n\n" +
		"Rules:\n" +
		"- summary: one concise Japanese sentence. Use null if unclear.\n" +
		"- Preserve Markdown and line breaks in content, including <img> tags.\n" +
		"- If a section has no title, use an empty string for title.\n" +
		"- If you cannot reliably split an article label, set label to null.\n" +
		"- Put introductory or trailing text outside sections into other_texts (empty string if none).\n" +
		"- Do NOT include any commentary or extra keys.\n\n" +
		"Markdown:\n" + markdown
}

// RequestMinimalPayload asks each caller in turn, up to three attempts
// apiece with a short throttle, until one returns a usable payload.
func RequestMinimalPayload(ctx context.Context, callers []providers.Caller, markdown, ruleID string, logger *slog.Logger) (*MinimalPayload, error) {
	cleaned := SanitizeRulesMarkdown(markdown)
	if strings.TrimSpace(cleaned) == "" {
		return nil, fmt.Errorf("rule %s: markdown is empty", ruleID)
	}
	prompt := buildRulesPrompt(cleaned)

	for callerIndex, caller := range callers {
		for attempt := 1; attempt <= rulesMaxAttempts; attempt++ {
			text, err := caller.Call(ctx, &providers.Request{Prompt: prompt})
			if err != nil {
				logger.Warn("rules call failed",
					"rule", ruleID,
					"model", caller.Name(),
					"attempt", attempt,
					"error", err)
				text = ""
			}

			if text != "" {
				if parsed, err := jsonx.ExtractFirstJSONBlock(text, rulesExpectedKeys); err == nil {
					payload, err := SanitizeMinimalPayload(parsed)
					if err != nil {
						logger.Warn("rules payload rejected",
							"rule", ruleID,
							"model", caller.Name(),
							"attempt", attempt,
							"error", err)
					} else if payload.Empty() {
						logger.Warn("rules payload empty",
							"rule", ruleID,
							"model", caller.Name(),
							"attempt", attempt)
					} else {
						return payload, nil
					}
				}
			}

			if attempt < rulesMaxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(rulesThrottle):
				}
			}
		}
		if callerIndex < len(callers)-1 {
			logger.Warn("rules model exhausted, trying next",
				"rule", ruleID,
				"model", caller.Name())
		}
	}
	return nil, fmt.Errorf("rule %s: no model produced a usable payload", ruleID)
}

// Rules regenerates the published school-rules tree from the scraped
// chapter structure.
type Rules struct {
	Callers []providers.Caller
	Fetcher *fetch.Fetcher
	OCR     ocr.Provider
	Workdir *workdir.Dir
	Logger  *slog.Logger
	DPI     int
	// RepoDir points at the content-repo checkout; the existing index and
	// rule details there anchor ID reuse and skip decisions. Empty means a
	// cold start.
	RepoDir string
	Now     func() time.Time
}

// Process walks every rule in the scraped structure, regenerating the
// ones whose PDF changed, and writes structure.json, index.json,
// chapters.json, the per-rule details, and manifest.json.
func (p *Rules) Process(ctx context.Context, structure []RuleChapterLink, hashes *fetch.HashStore) (*Outcome, error) {
	outcome := NewOutcome("rules")
	if len(structure) == 0 {
		p.Logger.Warn("no rules found in scraped structure")
		return outcome, nil
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	generatedAt := now().UTC()
	version := generatedAt.Format(rulesVersionLayout)
	generatedAtStr := generatedAt.Format(time.RFC3339)

	existing := buildExistingMaps(p.loadExistingIndex())
	items, chapters, activeRuleIDs := BuildRuleItems(structure, existing)

	var removedRuleIDs []string
	for id := range existing.rulesByID {
		if !activeRuleIDs[id] {
			removedRuleIDs = append(removedRuleIDs, id)
		}
	}
	sort.Strings(removedRuleIDs)

	finalDir := p.Workdir.FinalDir("rules")
	rulesDir := filepath.Join(finalDir, "rules")

	var rulesMeta []RuleMeta
	var updatedRuleIDs, regeneratedRuleIDs []string

	for _, rule := range items {
		detail, regenerated, err := p.processRule(ctx, rule, existing, hashes, outcome, generatedAtStr)
		if err != nil {
			p.Logger.Error("rule failed", "rule", rule.RuleID, "error", err)
			outcome.Failed = append(outcome.Failed, rule.RuleID)
			continue
		}

		if detail != nil {
			if err := writeJSON(filepath.Join(rulesDir, rule.RuleID+".json"), detail, true); err != nil {
				return nil, err
			}
			updatedRuleIDs = append(updatedRuleIDs, rule.RuleID)
			if regenerated {
				regeneratedRuleIDs = append(regeneratedRuleIDs, rule.RuleID)
			}
		}

		rulesMeta = append(rulesMeta, p.ruleMeta(rule, detail, existing))
	}

	outcome.Processed = updatedRuleIDs

	chapterOrder := map[string]int{}
	for _, chapter := range chapters {
		chapterOrder[chapter.ID] = chapter.Order
	}
	sort.SliceStable(rulesMeta, func(i, j int) bool {
		oi, oj := chapterOrder[rulesMeta[i].ChapterID], chapterOrder[rulesMeta[j].ChapterID]
		if oi != oj {
			return oi < oj
		}
		return rulesMeta[i].Order < rulesMeta[j].Order
	})

	index := RulesIndex{
		Version:     version,
		GeneratedAt: generatedAtStr,
		Chapters:    chapters,
		Rules:       rulesMeta,
	}
	manifest := map[string]any{
		"version":            version,
		"generatedAt":        generatedAtStr,
		"rulesTotal":         len(items),
		"rulesUpdated":       len(updatedRuleIDs),
		"rulesRegenerated":   len(regeneratedRuleIDs),
		"rulesFailed":        len(outcome.Failed),
		"updatedRuleIds":     updatedRuleIDs,
		"regeneratedRuleIds": regeneratedRuleIDs,
		"failedRuleIds":      outcome.Failed,
		"removedRuleIds":     removedRuleIDs,
	}

	for name, payload := range map[string]any{
		"structure.json": structure,
		"index.json":     index,
		"chapters.json": map[string]any{
			"version":     version,
			"generatedAt": generatedAtStr,
			"chapters":    chapters,
		},
		"manifest.json": manifest,
	} {
		if err := writeJSON(filepath.Join(finalDir, name), payload, true); err != nil {
			return nil, err
		}
	}

	p.Logger.Info("rules processing done",
		"updated", len(updatedRuleIDs),
		"regenerated", len(regeneratedRuleIDs),
		"removed", len(removedRuleIDs),
		"failed", len(outcome.Failed))
	return outcome, nil
}

// processRule decides whether a rule needs content regeneration or a
// metadata refresh and produces the detail to publish, if any.
func (p *Rules) processRule(ctx context.Context, rule RuleItem, existing existingMaps, hashes *fetch.HashStore, outcome *Outcome, lastUpdated string) (*RuleDetail, bool, error) {
	existingMeta, hasMeta := existing.rulesByID[rule.RuleID]
	existingDetail := p.loadExistingDetail(rule.RuleID)

	var existingSummary *string
	if existingDetail != nil {
		existingSummary = existingDetail.Summary
	} else if hasMeta {
		existingSummary = existingMeta.Summary
	}

	pdfChanged := !hasMeta || existingMeta.PDFURL != rule.PDFURL
	metadataChanged := existingDetail != nil &&
		(existingDetail.Title != rule.RuleTitle ||
			existingDetail.ChapterID != rule.ChapterID ||
			existingDetail.Order != rule.RuleOrder ||
			existingDetail.PDFURL != rule.PDFURL)

	if pdfChanged && rule.PDFURL != "" {
		doc, err := p.Fetcher.Fetch(ctx, rule.PDFURL)
		if err != nil {
			if existingDetail == nil {
				return nil, false, err
			}
			p.Logger.Warn("rule download failed, keeping existing detail", "rule", rule.RuleID, "error", err)
			return nil, false, nil
		}

		if hashes.Seen(rule.PDFURL, doc.Digest) && existingDetail != nil {
			p.Logger.Info("rule PDF unchanged, refreshing metadata only", "rule", rule.RuleID)
			outcome.Hashes[rule.PDFURL] = doc.Digest
		} else {
			p.Logger.Info("regenerating rule", "rule", rule.RuleID)
			markdown, err := p.renderToMarkdown(ctx, rule.RuleID, doc.Data)
			if err != nil {
				return nil, false, err
			}
			payload, err := RequestMinimalPayload(ctx, p.Callers, markdown, rule.RuleID, p.Logger)
			if err != nil {
				return nil, false, err
			}
			outcome.Hashes[rule.PDFURL] = doc.Digest
			detail := ComposeRuleDetail(rule, payload, existingSummary, &lastUpdated)
			return detail, true, nil
		}
	}

	if metadataChanged && existingDetail != nil {
		detail := *existingDetail
		detail.ChapterID = rule.ChapterID
		detail.Title = rule.RuleTitle
		detail.Order = rule.RuleOrder
		detail.PDFURL = rule.PDFURL
		return &detail, false, nil
	}
	return nil, false, nil
}

func (p *Rules) ruleMeta(rule RuleItem, detail *RuleDetail, existing existingMaps) RuleMeta {
	meta := RuleMeta{
		ID:        rule.RuleID,
		ChapterID: rule.ChapterID,
		Title:     rule.RuleTitle,
		Order:     rule.RuleOrder,
		PDFURL:    rule.PDFURL,
	}
	if detail != nil {
		meta.Summary = detail.Summary
		meta.LastUpdated = detail.LastUpdated
		return meta
	}
	if existingDetail := p.loadExistingDetail(rule.RuleID); existingDetail != nil {
		meta.Summary = existingDetail.Summary
		meta.LastUpdated = existingDetail.LastUpdated
	} else if existingMeta, ok := existing.rulesByID[rule.RuleID]; ok {
		meta.Summary = existingMeta.Summary
		meta.LastUpdated = existingMeta.LastUpdated
	}
	return meta
}

// renderToMarkdown rasterizes a rule PDF page by page and OCRs each
// page, joining the page texts with blank lines. Rule PDFs are rendered
// one page at a time so a rule's pages never wait on rasterizing the
// whole document up front.
func (p *Rules) renderToMarkdown(ctx context.Context, ruleID string, pdfData []byte) (string, error) {
	tmpDir, err := os.MkdirTemp("", "campusfeed-rules-")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	pdfPath := filepath.Join(tmpDir, ruleID+".pdf")
	if err := os.WriteFile(pdfPath, pdfData, 0o644); err != nil {
		return "", fmt.Errorf("failed to write rule PDF: %w", err)
	}

	pageCount, err := render.PageCount(pdfPath)
	if err != nil {
		return "", err
	}

	var parts []string
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		pagePath := filepath.Join(tmpDir, fmt.Sprintf("page-%04d.png", pageNum))
		if err := render.RenderPage(ctx, pdfPath, pagePath, pageNum, p.DPI); err != nil {
			return "", err
		}
		data, err := os.ReadFile(pagePath)
		if err != nil {
			return "", fmt.Errorf("failed to read rendered page: %w", err)
		}
		if text := strings.TrimSpace(p.OCR.PageText(ctx, data, pageNum)); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

func (p *Rules) loadExistingIndex() *RulesIndex {
	if p.RepoDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(p.RepoDir, "v1", "rules", "index.json"))
	if err != nil {
		return nil
	}
	var index RulesIndex
	if err := json.Unmarshal(data, &index); err != nil {
		p.Logger.Warn("failed to parse existing rules index", "error", err)
		return nil
	}
	return &index
}

func (p *Rules) loadExistingDetail(ruleID string) *RuleDetail {
	if p.RepoDir == "" {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(p.RepoDir, "v1", "rules", "rules", ruleID+".json"))
	if err != nil {
		return nil
	}
	var detail RuleDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil
	}
	return &detail
}
