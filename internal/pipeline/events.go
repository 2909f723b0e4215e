package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/campusfeed/campusfeed/internal/pageproc"
	"github.com/campusfeed/campusfeed/internal/scrape"
)

// eventsSchema is sent as a structured-output request; the calendar is a
// simple table and the model honors the schema reliably.
var eventsSchema = json.RawMessage(`{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "academic_year": { "type": "integer" },
    "events": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "date": { "type": "string" },
          "grade": { "anyOf": [{"type": "integer"}, {"type": "null"}] },
          "name": { "type": "string" }
        },
        "required": ["date", "grade", "name"]
      }
    }
  },
  "required": ["events"]
}`)

const eventsPrompt = `この画像は学生寮の行事予定表です。表の各行から行事を抽出してください。

ルール:
- date は "MM/DD" 形式
- grade は対象学年を 1〜5 の整数で返す。全学年/全寮生/対象なし/不明は null
- name は行事名
- academic_year は西暦の年度 (例: 2025)
`

// EventsSchema exposes the structured-output schema for processor setup.
func EventsSchema() json.RawMessage {
	return eventsSchema
}

// EventsPrompt builds the task prompt, prefixing title and academic-year
// hints scraped from the calendar page when available.
func EventsPrompt(titleHint string) string {
	prompt := eventsPrompt
	if titleHint != "" {
		prompt = "タイトル情報: " + titleHint + "\n" + prompt
	}
	if year, ok := ExtractAcademicYearText(titleHint); ok {
		prompt = "academic_year_hint: " + strconv.Itoa(year) + "\n" + prompt
	}
	return prompt
}

// Events extracts the dormitory event calendar.
type Events struct {
	Runner   *DocRunner
	CallMode pageproc.CallMode
	Strategy pageproc.MergeStrategy
	DPI      int
	Now      func() time.Time
}

// Process runs the calendar document and writes events.json under the
// target's final directory. titleHint is the scraped link text, used to
// anchor the academic year.
func (p *Events) Process(ctx context.Context, docID, pdfPath, titleHint string) (*DocOutcome, error) {
	outcome, err := p.Runner.Run(ctx, DocConfig{
		Target:   "events",
		DocID:    docID,
		Prompt:   EventsPrompt(titleHint),
		CallMode: p.CallMode,
		Strategy: p.Strategy,
		DPI:      p.DPI,
	}, pdfPath)
	if err != nil {
		return nil, err
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	academicYear, rawEvents := collectEvents(outcome.Results)
	if academicYear == 0 {
		if year, ok := ExtractAcademicYearText(titleHint); ok {
			academicYear = year
		} else {
			academicYear = scrape.AcademicYear(now())
		}
	}

	events := NormalizeEvents(rawEvents, academicYear)
	if events == nil {
		events = []Event{}
	}
	payload := map[string]any{
		"academic_year": academicYear,
		"events":        events,
	}
	if err := ValidateEventsOutput(payload); err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, err)
	}
	path := filepath.Join(p.Runner.Workdir.FinalDir("events"), "events.json")
	if err := writeJSON(path, payload, true); err != nil {
		return nil, err
	}
	p.Runner.Logger.Info("wrote event calendar", "academic_year", academicYear, "events", len(events))
	return outcome, nil
}

// collectEvents gathers raw event entries across pages and the first
// academic year the model reported.
func collectEvents(results []*pageproc.PageResult) (int, []any) {
	var academicYear int
	var rawEvents []any
	for _, result := range results {
		data, ok := unwrapResult(result).(map[string]any)
		if !ok {
			continue
		}
		if academicYear == 0 {
			switch year := data["academic_year"].(type) {
			case float64:
				academicYear = int(year)
			case string:
				if parsed, ok := ExtractAcademicYearText(year); ok {
					academicYear = parsed
				}
			}
		}
		if events, ok := data["events"].([]any); ok {
			rawEvents = append(rawEvents, events...)
		}
	}
	return academicYear, rawEvents
}

var (
	academicYearRe = regexp.MustCompile(`(\d{4})\s*年度`)
	eraYearRe      = regexp.MustCompile(`(令和|平成|昭和)\s*(\d{1,2})\s*年度`)

	dateSlashRe   = regexp.MustCompile(`(\d{1,2})\s*/\s*(\d{1,2})`)
	dateKanjiRe   = regexp.MustCompile(`(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	rangeSlashRe  = regexp.MustCompile(`(\d{1,2})\s*/\s*(\d{1,2})\s*[-〜~～]\s*(\d{1,2})\s*/\s*(\d{1,2})`)
	rangeKanjiRe  = regexp.MustCompile(`(\d{1,2})\s*月\s*(\d{1,2})\s*日\s*[-〜~～]\s*(\d{1,2})\s*月\s*(\d{1,2})\s*日`)
	gradeRangeRe  = regexp.MustCompile(`([1-5])\s*[-〜~～]\s*([1-5])\s*年`)
	gradeListRe   = regexp.MustCompile(`([1-5](?:[\s,、・/]+[1-5])+)\s*年`)
	gradeSingleRe = regexp.MustCompile(`([1-5])\s*年`)
	gradeDigitRe  = regexp.MustCompile(`[1-5]`)
)

// ExtractAcademicYearText finds an academic year in free text, in era
// form (令和7年度) or western form (2025年度).
func ExtractAcademicYearText(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	text = scrape.NormalizeDigits(text)
	if m := eraYearRe.FindStringSubmatch(text); m != nil {
		eraYear, _ := strconv.Atoi(m[2])
		if year, ok := scrape.EraYear(m[1], eraYear); ok {
			return year, true
		}
	}
	if m := academicYearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return year, true
	}
	return 0, false
}

// resolveYearForMonth maps a month to its calendar year within an
// academic year that starts in April.
func resolveYearForMonth(academicYear, month int) int {
	if month >= 4 {
		return academicYear
	}
	return academicYear + 1
}

// ExpandDateRange lists every MM/DD between two dates inclusive, rolling
// across the academic-year boundary when the range wraps.
func ExpandDateRange(startMonth, startDay, endMonth, endDay, academicYear int) []string {
	start := time.Date(resolveYearForMonth(academicYear, startMonth), time.Month(startMonth), startDay, 0, 0, 0, 0, time.UTC)
	end := time.Date(resolveYearForMonth(academicYear, endMonth), time.Month(endMonth), endDay, 0, 0, 0, 0, time.UTC)
	if end.Before(start) {
		end = end.AddDate(1, 0, 0)
	}

	var dates []string
	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		dates = append(dates, fmt.Sprintf("%02d/%02d", int(current.Month()), current.Day()))
	}
	return dates
}

// ParseEventDates extracts the MM/DD dates an event covers from its date
// text, expanding ranges day by day.
func ParseEventDates(text string, academicYear int) []string {
	if text == "" {
		return nil
	}
	text = scrape.NormalizeDigits(text)

	m := rangeSlashRe.FindStringSubmatch(text)
	if m == nil {
		m = rangeKanjiRe.FindStringSubmatch(text)
	}
	if m != nil {
		sm, _ := strconv.Atoi(m[1])
		sd, _ := strconv.Atoi(m[2])
		em, _ := strconv.Atoi(m[3])
		ed, _ := strconv.Atoi(m[4])
		return ExpandDateRange(sm, sd, em, ed, academicYear)
	}

	m = dateSlashRe.FindStringSubmatch(text)
	if m == nil {
		m = dateKanjiRe.FindStringSubmatch(text)
	}
	if m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		return []string{fmt.Sprintf("%02d/%02d", month, day)}
	}
	return nil
}

// ParseGradeValues resolves a raw grade field to the grades an event
// applies to. nil means all grades. Text forms handle 全学年 keywords,
// ranges (1〜3年), lists (1,3年) and single grades.
func ParseGradeValues(value any, nameHint string) []*int {
	switch v := value.(type) {
	case nil:
		return []*int{nil}
	case float64:
		grade := int(v)
		return []*int{&grade}
	case int:
		grade := v
		return []*int{&grade}
	case string:
		return parseGradeText(v, nameHint)
	default:
		return parseGradeText(fmt.Sprintf("%v", v), nameHint)
	}
}

func parseGradeText(text, nameHint string) []*int {
	combined := scrape.NormalizeDigits(text + " " + nameHint)

	for _, keyword := range []string{"全学年", "全寮生", "全員", "全体", "全て"} {
		if strings.Contains(combined, keyword) {
			return []*int{nil}
		}
	}

	if m := gradeRangeRe.FindStringSubmatch(combined); m != nil {
		start, _ := strconv.Atoi(m[1])
		end, _ := strconv.Atoi(m[2])
		if start <= end {
			grades := make([]*int, 0, end-start+1)
			for g := start; g <= end; g++ {
				grade := g
				grades = append(grades, &grade)
			}
			return grades
		}
	}

	if m := gradeListRe.FindStringSubmatch(combined); m != nil {
		return uniqueGrades(gradeDigitRe.FindAllString(m[1], -1))
	}

	if matches := gradeSingleRe.FindAllStringSubmatch(combined, -1); len(matches) > 0 {
		digits := make([]string, 0, len(matches))
		for _, m := range matches {
			digits = append(digits, m[1])
		}
		return uniqueGrades(digits)
	}

	return []*int{nil}
}

func uniqueGrades(digits []string) []*int {
	seen := map[int]bool{}
	var grades []int
	for _, d := range digits {
		n, _ := strconv.Atoi(d)
		if !seen[n] {
			seen[n] = true
			grades = append(grades, n)
		}
	}
	sort.Ints(grades)
	out := make([]*int, len(grades))
	for i := range grades {
		out[i] = &grades[i]
	}
	return out
}

// Event is one normalized calendar entry.
type Event struct {
	Date  string `json:"date"`
	Grade *int   `json:"grade"`
	Name  string `json:"name"`
}

// NormalizeEvents expands raw extracted events into one entry per
// (date, grade) pair and deduplicates on (date, grade, name). Events
// whose date cannot be parsed from the date field or the name are
// dropped.
func NormalizeEvents(rawEvents []any, academicYear int) []Event {
	var normalized []Event
	type eventKey struct {
		date  string
		grade int // 0 = all grades
		name  string
	}
	seen := map[eventKey]bool{}

	for _, raw := range rawEvents {
		event, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := event["name"].(string)
		dateText, _ := event["date"].(string)

		dates := ParseEventDates(dateText, academicYear)
		if len(dates) == 0 && name != "" {
			dates = ParseEventDates(name, academicYear)
		}
		if len(dates) == 0 {
			continue
		}

		for _, date := range dates {
			for _, grade := range ParseGradeValues(event["grade"], name) {
				key := eventKey{date: date, name: name}
				if grade != nil {
					key.grade = *grade
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				normalized = append(normalized, Event{Date: date, Grade: grade, Name: name})
			}
		}
	}
	return normalized
}
