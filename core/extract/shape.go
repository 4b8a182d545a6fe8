package extract

import (
	"fmt"
	"strings"
)

// Kind is the structural family of an extracted value.
type Kind string

const (
	// KindJSON is a JSON object. The result value is map[string]any.
	KindJSON Kind = "json"

	// KindList is a literal list (JSON or Python style). The result value is []any.
	KindList Kind = "list"

	// KindSQL is a bare SQL statement. The result value is map[string]any holding
	// the statement under Shape.SQLKey and, when captured, the reasoning plan.
	KindSQL Kind = "sql"

	// KindText is unstructured text. The result value is string.
	KindText Kind = "text"
)

// Strategy names one step of the extraction precedence.
type Strategy string

const (
	StrategyTagged  Strategy = "tagged"
	StrategyFenced  Strategy = "fenced"
	StrategyDirect  Strategy = "direct"
	StrategySalvage Strategy = "salvage"
)

// Unavailable is the placeholder salvage uses for keys it cannot recover.
const Unavailable = "reasoning unavailable"

// PlanKey is the result key holding the reasoning that precedes a final answer.
const PlanKey = "plan"

// Tag is an opening/closing marker pair around the answer, e.g. <Answer>...</Answer>.
type Tag struct {
	Open  string
	Close string

	// Required makes a missing marker pair a hard failure. Optional tags are
	// used when present and skipped otherwise.
	Required bool
}

// Shape declares what an extractor must produce and how dialect wrappers are peeled.
type Shape struct {
	// Kind is the structural family of the result.
	Kind Kind

	// Fence is the markdown code fence label to look for ("json", "sql", "python").
	Fence string

	// RequiredKeys must be present in a KindJSON result.
	RequiredKeys []string

	// Aliases maps a canonical key to alternative keys a model may use instead.
	// The first alias found fills a missing canonical key.
	Aliases map[string][]string

	// Defaults fills optional keys that are still missing after aliasing.
	Defaults map[string]any

	// Tag is the answer marker pair, if the dialect uses one.
	Tag *Tag

	// FinalMarker splits reasoning from the answer, e.g. "My final answer is:".
	FinalMarker string

	// CapturePlan stores the text before the tag or final marker under PlanKey.
	CapturePlan bool

	// SQLKey is the result key for KindSQL values. Defaults to "SQL".
	SQLKey string

	// CollapseWhitespace replaces newlines and tabs in SQL with single spaces.
	CollapseWhitespace bool

	// Salvage enables the regex salvage strategy. Only non-tagged KindJSON shapes
	// may enable it.
	Salvage bool

	// SalvageKeys lists extra keys recovered by salvage besides RequiredKeys.
	SalvageKeys []string

	// Placeholders overrides the salvage placeholder for individual keys.
	Placeholders map[string]string

	// Finish post-processes the value produced by the tagged, fenced or direct
	// strategies. Returning an error turns the result into a shape mismatch.
	Finish func(value any) (any, error)
}

func (shape Shape) validate() error {
	switch shape.Kind {
	case KindJSON, KindList, KindSQL, KindText:
	default:
		return fmt.Errorf("unsupported shape kind %q", shape.Kind)
	}

	if shape.Tag != nil && (shape.Tag.Open == "" || shape.Tag.Close == "") {
		return fmt.Errorf("tag markers must not be empty")
	}

	if len(shape.RequiredKeys) > 0 && shape.Kind != KindJSON {
		return fmt.Errorf("required keys are only valid for %s shapes", KindJSON)
	}

	if shape.Salvage {
		if shape.Kind != KindJSON {
			return fmt.Errorf("salvage is only allowed for %s shapes, not %s", KindJSON, shape.Kind)
		}
		if shape.Tag != nil && shape.Tag.Required {
			return fmt.Errorf("salvage is not allowed for tagged shapes")
		}
	}

	return nil
}

func (shape Shape) sqlKey() string {
	if shape.SQLKey == "" {
		return "SQL"
	}
	return shape.SQLKey
}

func (shape Shape) placeholder(key string) string {
	if value, ok := shape.Placeholders[key]; ok {
		return value
	}
	return Unavailable
}

// Result is the typed outcome of one extraction.
type Result struct {
	// Value is map[string]any for KindJSON and KindSQL, []any for KindList and
	// string for KindText.
	Value any

	// Raw is the unmodified model response.
	Raw string

	// Strategy is the strategy that produced Value.
	Strategy Strategy
}

// Map returns the value as an object.
func (result Result) Map() (map[string]any, bool) {
	object, ok := result.Value.(map[string]any)
	return object, ok
}

// List returns the value as a list.
func (result Result) List() ([]any, bool) {
	list, ok := result.Value.([]any)
	return list, ok
}

// Text returns a KindText value, or the empty string.
func (result Result) Text() string {
	text, _ := result.Value.(string)
	return text
}

// String returns the string stored under key in an object value.
// Non-string scalars are formatted; missing keys yield "".
func (result Result) String(key string) string {
	object, ok := result.Map()
	if !ok {
		return ""
	}
	return stringValue(object[key])
}

// Strings returns the list stored under key (or the value itself for list results)
// with every element formatted as a string.
func (result Result) Strings(key string) []string {
	var list []any
	if key == "" {
		list, _ = result.List()
	} else if object, ok := result.Map(); ok {
		list, _ = object[key].([]any)
	}

	values := make([]string, 0, len(list))
	for _, element := range list {
		values = append(values, stringValue(element))
	}
	return values
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}
