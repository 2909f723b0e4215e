package pipeline

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/campusfeed/campusfeed/internal/pageproc"
)

// classesPrompt extracts a full timetable keyed by grade then class.
const classesPrompt = `以下のスキーマで抽出して。
` + "```" + `
{
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "description": "学年オブジェクト（例: '1'）（留学生の場合は'1r'のようにrをつける）",
    "additionalProperties": {
      "type": "array",
      "description": "クラスの時間割（例: 'B'）",
      "items": {
        "type": "object",
        "required": ["day", "classes"],
        "properties": {
          "day": {
            "type": "integer",
            "minimum": 0,
            "maximum": 6,
            "description": "0=月, 1=火, 2=水, 3=木, 4=金, 5=土, 6=日（通常は0〜4）"
          },
          "classes": {
            "type": "array",
            "minItems": 1,
            "items": {
              "type": "object",
              "required": ["start", "end", "name"],
              "properties": {
                "start": { "type": "string", "pattern": "^([01]\\d|2[0-3]):[0-5]\\d$" },
                "end": { "type": "string", "pattern": "^([01]\\d|2[0-3]):[0-5]\\d$" },
                "name": { "type": "string", "minLength": 1 },
                "teacher": { "type": ["string", "null"] }
              },
              "additionalProperties": false
            }
          }
        },
        "additionalProperties": false
      }
    }
  }
}
` + "```"

// Classes extracts the timetable PDF into per-cohort final files.
type Classes struct {
	Runner   *DocRunner
	CallMode pageproc.CallMode
	Strategy pageproc.MergeStrategy
	DPI      int
	Now      func() time.Time
}

// Process runs the timetable PDF and writes
// final/{cohortYear}{CLASS}/{grade}_{term}.json files.
func (p *Classes) Process(ctx context.Context, docID, pdfPath string) (*DocOutcome, error) {
	outcome, err := p.Runner.Run(ctx, DocConfig{
		Target:   "classes",
		DocID:    docID,
		Prompt:   classesPrompt,
		CallMode: p.CallMode,
		Strategy: p.Strategy,
		DPI:      p.DPI,
	}, pdfPath)
	if err != nil {
		return nil, err
	}

	merged := MergeTimetablePages(outcome.Results)
	if len(merged) == 0 {
		return outcome, nil
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	finalDir := p.Runner.Workdir.FinalDir("classes")
	for relPath, timetable := range TimetableFiles(merged, now()) {
		payload := map[string]any{"data": timetable}
		if err := writeJSON(filepath.Join(finalDir, relPath), payload, true); err != nil {
			return nil, err
		}
		p.Runner.Logger.Info("wrote timetable", "file", relPath)
	}
	return outcome, nil
}

// MergeTimetablePages folds per-page extraction results into one
// grade -> class -> timetable map. Later pages overwrite a class seen on
// an earlier page.
func MergeTimetablePages(results []*pageproc.PageResult) map[string]map[string][]any {
	merged := map[string]map[string][]any{}
	for _, result := range results {
		obj, ok := unwrapResult(result).(map[string]any)
		if !ok {
			continue
		}
		for gradeStr, rawClassMap := range obj {
			classMap, ok := rawClassMap.(map[string]any)
			if !ok {
				continue
			}
			if merged[gradeStr] == nil {
				merged[gradeStr] = map[string][]any{}
			}
			for classKey, rawTimetable := range classMap {
				timetable, ok := rawTimetable.([]any)
				if !ok {
					continue
				}
				merged[gradeStr][classKey] = timetable
			}
		}
	}
	return merged
}

// TimetableFiles lays out merged timetables as relative output paths:
// {cohortYear}{CLASS}/{grade}_{term}.json. The cohort year is the school
// year the class entered; term is 0 for April through September and 1
// otherwise. Grade keys with an international-student "r" suffix share
// the numeric grade's cohort.
func TimetableFiles(merged map[string]map[string][]any, now time.Time) map[string][]any {
	baseYear := now.Year()
	if now.Month() < time.April {
		baseYear--
	}
	term := 1
	if now.Month() >= time.April && now.Month() <= time.September {
		term = 0
	}

	files := map[string][]any{}
	for gradeStr, classMap := range merged {
		gradeNum, err := strconv.Atoi(strings.ReplaceAll(gradeStr, "r", ""))
		if err != nil {
			continue
		}
		cohortYear := baseYear - (gradeNum - 1)
		for classKey, timetable := range classMap {
			dir := strconv.Itoa(cohortYear) + strings.ToUpper(classKey)
			name := strconv.Itoa(gradeNum) + "_" + strconv.Itoa(term) + ".json"
			files[filepath.Join(dir, name)] = timetable
		}
	}
	return files
}
