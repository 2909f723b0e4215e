package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/campusfeed/campusfeed/internal/pageproc"
)

// mealsPrompt asks for a week of dormitory menus per the daily-menus
// schema. The schema rides inside the prompt rather than the structured
// output request; the menu tables confuse schema-constrained decoding.
const mealsPrompt = `献立の画像を添付してあります。以下のスキーマの形で画像に含まれている一週間の献立を抜き出してください。
上から順に、朝昼晩の食事です。
もし空欄の場合は、そのメニュー(例えばB)は存在しないということです。(休日や祝日の場合に一部メニューが存在しない場合があります。)
また、「共通」に含まれているものは対象のメニューの全てのsubsに含めてください。例えば、共通に味噌汁とライスが指定されている場合、AとBのどちらものsubsに味噌汁,ライスと出力する必要があります。
ただし、朝の場合は朝の中で一番上に記載されているメニューをA/B共にmainとしてください。ライス/パンなどは、それぞれAとBに振り分けて。
` + "```" + `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "menus": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "day": { "type": "string", "pattern": "^(0[1-9]|1[0-2])/(0[1-9]|[12][0-9]|3[01])$" },
          "breakfast": { "type": ["array", "null"], "items": { "$ref": "#/$defs/MenuItem" } },
          "lunch": { "type": ["array", "null"], "items": { "$ref": "#/$defs/MenuItem" } },
          "dinner": { "type": ["array", "null"], "items": { "$ref": "#/$defs/MenuItem" } }
        },
        "required": ["day"]
      }
    }
  },
  "required": ["menus"],
  "$defs": {
    "MenuItem": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "type": { "type": "string" },
        "main": { "type": "string" },
        "subs": { "type": "array", "items": { "type": "string" } },
        "isRice": { "type": "boolean" },
        "isCurry": { "type": "boolean" },
        "nutritional": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "E": { "type": "number", "minimum": 0 },
            "P": { "type": "number", "minimum": 0 },
            "F": { "type": "number", "minimum": 0 },
            "Ca": { "type": "number", "minimum": 0 },
            "S": { "type": "number", "minimum": 0 }
          },
          "required": ["E", "P", "F", "Ca", "S"]
        }
      },
      "required": ["type", "main", "subs", "isRice", "isCurry", "nutritional"]
    }
  }
}` + "```" + `
提供されている全ての日時のbreakfast, lunch, dinnerのデータを抽出してください。`

// Meals extracts dormitory menu PDFs into per-week JSON files.
type Meals struct {
	Runner   *DocRunner
	CallMode pageproc.CallMode
	Strategy pageproc.MergeStrategy
	DPI      int
	// Now supplies the base year for MM/DD date completion; overridable in
	// tests.
	Now func() time.Time
}

// Process runs one menu PDF and writes meals/{monday}.json files under
// the target's final directory.
func (p *Meals) Process(ctx context.Context, docID, pdfPath string) (*DocOutcome, error) {
	outcome, err := p.Runner.Run(ctx, DocConfig{
		Target:   "meals",
		DocID:    docID,
		Prompt:   mealsPrompt,
		CallMode: p.CallMode,
		Strategy: p.Strategy,
		DPI:      p.DPI,
	}, pdfPath)
	if err != nil {
		return nil, err
	}

	var rawMenus []any
	for _, result := range outcome.Results {
		data, ok := unwrapResult(result).(map[string]any)
		if !ok {
			continue
		}
		menus, ok := data["menus"].([]any)
		if !ok {
			continue
		}
		rawMenus = append(rawMenus, menus...)
	}
	if len(rawMenus) == 0 {
		return outcome, nil
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	days, err := ConvertDailyMenus(rawMenus, now().Year())
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", docID, err)
	}

	finalDir := p.Runner.Workdir.FinalDir("meals")
	for monday, menus := range GroupByWeek(days) {
		week := map[string]any{
			"week_start": monday,
			"menus":      menus,
		}
		if err := ValidateWeeklyMenu(week); err != nil {
			return nil, fmt.Errorf("week %s: %w", monday, err)
		}
		path := filepath.Join(finalDir, "meals", monday+".json")
		if err := writeJSON(path, week, false); err != nil {
			return nil, err
		}
		p.Runner.Logger.Info("wrote weekly menu", "week_start", monday, "days", len(menus))
	}
	return outcome, nil
}

// menuTypes accepted verbatim by the published schema.
var allowedMenuTypes = map[string]bool{"A": true, "B": true, "カレー": true}

// CoerceMenuType normalizes a raw menu type to the published enum:
// A, B, or カレー.
func CoerceMenuType(srcType, main string, subs []string) string {
	if allowedMenuTypes[srcType] {
		return srcType
	}
	text := main + " " + strings.Join(subs, " ")
	if strings.Contains(text, "カレー") {
		return "カレー"
	}
	up := strings.ToUpper(srcType)
	if up == "A" || up == "B" {
		return up
	}
	if srcType != "" {
		return srcType
	}
	return "A"
}

// GuessMainType classifies the main dish: カレー, ライス, うどん, パン
// or その他.
func GuessMainType(item map[string]any) string {
	main, _ := item["main"].(string)
	text := main + " " + strings.Join(stringSlice(item["subs"]), " ")

	// isCarry tolerated alongside isCurry; the extraction schema has
	// carried the typo in the past.
	if truthy(item["isCurry"]) || truthy(item["isCarry"]) || strings.Contains(text, "カレー") {
		return "カレー"
	}
	if truthy(item["isRice"]) || strings.Contains(text, "ライス") {
		return "ライス"
	}
	if strings.Contains(text, "うどん") {
		return "うどん"
	}
	if strings.Contains(text, "パン") {
		return "パン"
	}
	return "その他"
}

// convertMenuItem maps an extracted item to the published shape, renaming
// the terse nutrition keys.
func convertMenuItem(item map[string]any) map[string]any {
	main, _ := item["main"].(string)
	subs := stringSlice(item["subs"])
	nut, _ := item["nutritional"].(map[string]any)

	srcType, _ := item["type"].(string)
	return map[string]any{
		"type":     CoerceMenuType(srcType, main, subs),
		"mainType": GuessMainType(item),
		"main":     main,
		"subs":     subs,
		"nutrition": map[string]any{
			"energyKcal": nut["E"],
			"proteinG":   nut["P"],
			"fatG":       nut["F"],
			"calciumMg":  nut["Ca"],
			"saltG":      nut["S"],
		},
	}
}

func convertMeal(meal any) []map[string]any {
	items, ok := meal.([]any)
	if !ok {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, len(items))
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, convertMenuItem(item))
	}
	return out
}

// ConvertDailyMenus converts extracted day entries into the published
// form: MM/DD days become YYYY-MM-DD using baseYear, nullable meals
// become empty arrays, and items are renamed per the published schema.
func ConvertDailyMenus(menus []any, baseYear int) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(menus))
	for _, raw := range menus {
		day, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		mmdd, ok := day["day"].(string)
		if !ok {
			return nil, fmt.Errorf("menu day %v is not an MM/DD string", day["day"])
		}
		date, err := completeDate(mmdd, baseYear)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"date":      date,
			"breakfast": convertMeal(day["breakfast"]),
			"lunch":     convertMeal(day["lunch"]),
			"dinner":    convertMeal(day["dinner"]),
		})
	}
	return out, nil
}

// completeDate turns "MM/DD" into "YYYY-MM-DD" using baseYear.
func completeDate(mmdd string, baseYear int) (string, error) {
	parts := strings.SplitN(mmdd, "/", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid day %q, want MM/DD", mmdd)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return "", fmt.Errorf("invalid day %q, want MM/DD", mmdd)
	}
	dayNum, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", fmt.Errorf("invalid day %q, want MM/DD", mmdd)
	}
	date := time.Date(baseYear, time.Month(month), dayNum, 0, 0, 0, 0, time.UTC)
	if date.Month() != time.Month(month) || date.Day() != dayNum {
		return "", fmt.Errorf("invalid calendar date %q", mmdd)
	}
	return date.Format("2006-01-02"), nil
}

// MondayOf returns the Monday starting the ISO week of a YYYY-MM-DD date.
func MondayOf(dateStr string) (string, error) {
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	offset := (int(date.Weekday()) + 6) % 7 // Monday = 0
	return date.AddDate(0, 0, -offset).Format("2006-01-02"), nil
}

// GroupByWeek buckets converted day entries by the Monday of their week.
// Days with unparseable dates are dropped.
func GroupByWeek(days []map[string]any) map[string][]map[string]any {
	weeks := map[string][]map[string]any{}
	for _, day := range days {
		dateStr, _ := day["date"].(string)
		monday, err := MondayOf(dateStr)
		if err != nil {
			continue
		}
		weeks[monday] = append(weeks[monday], day)
	}
	for _, menus := range weeks {
		sort.Slice(menus, func(i, j int) bool {
			di, _ := menus[i]["date"].(string)
			dj, _ := menus[j]["date"].(string)
			return di < dj
		})
	}
	return weeks
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}
