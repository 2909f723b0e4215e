package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Published output schemas. Assembled files are validated before they
// reach the content repo; a schema violation here means an assembly bug,
// not a model hallucination.
const weeklyMenuSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "week_start": { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" },
    "menus": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "date": { "type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$" },
          "breakfast": { "$ref": "#/$defs/meal" },
          "lunch": { "$ref": "#/$defs/meal" },
          "dinner": { "$ref": "#/$defs/meal" }
        },
        "required": ["date", "breakfast", "lunch", "dinner"]
      }
    }
  },
  "required": ["week_start", "menus"],
  "$defs": {
    "meal": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "properties": {
          "type": { "type": "string" },
          "mainType": { "type": "string", "enum": ["カレー", "ライス", "うどん", "パン", "その他"] },
          "main": { "type": "string" },
          "subs": { "type": "array", "items": { "type": "string" } },
          "nutrition": {
            "type": "object",
            "additionalProperties": false,
            "properties": {
              "energyKcal": { "type": ["number", "null"] },
              "proteinG": { "type": ["number", "null"] },
              "fatG": { "type": ["number", "null"] },
              "calciumMg": { "type": ["number", "null"] },
              "saltG": { "type": ["number", "null"] }
            }
          }
        },
        "required": ["type", "mainType", "main", "subs", "nutrition"]
      }
    }
  }
}`

const eventsOutputSchema = `{
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
          "date": { "type": "string", "pattern": "^\\d{2}/\\d{2}$" },
          "grade": { "type": ["integer", "null"] },
          "name": { "type": "string" }
        },
        "required": ["date", "grade", "name"]
      }
    }
  },
  "required": ["academic_year", "events"]
}`

func compileSchema(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader([]byte(raw))); err != nil {
		panic(fmt.Sprintf("bad embedded schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

var (
	weeklyMenuValidator = compileSchema("weekly-menu.json", weeklyMenuSchema)
	eventsValidator     = compileSchema("events.json", eventsOutputSchema)
)

// validateAgainst round-trips v through JSON so typed structs and
// dynamic maps validate identically.
func validateAgainst(schema *jsonschema.Schema, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to serialize for validation: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode for validation: %w", err)
	}
	return schema.Validate(doc)
}

// ValidateWeeklyMenu checks an assembled meals/{monday}.json payload.
func ValidateWeeklyMenu(week any) error {
	if err := validateAgainst(weeklyMenuValidator, week); err != nil {
		return fmt.Errorf("weekly menu payload invalid: %w", err)
	}
	return nil
}

// ValidateEventsOutput checks an assembled events.json payload.
func ValidateEventsOutput(payload any) error {
	if err := validateAgainst(eventsValidator, payload); err != nil {
		return fmt.Errorf("events payload invalid: %w", err)
	}
	return nil
}
