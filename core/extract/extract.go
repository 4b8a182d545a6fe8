package extract

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Extractor turns a raw model response into a typed Result.
// Implementations are stateless and safe for concurrent use.
type Extractor interface {
	Name() string
	Extract(raw string) (Result, error)
}

// ShapeExtractor applies the fixed strategy precedence to a declared Shape.
type ShapeExtractor struct {
	name  string
	shape Shape
}

var _ Extractor = (*ShapeExtractor)(nil)

// NewExtractor validates shape and returns an extractor for it.
func NewExtractor(name string, shape Shape) (*ShapeExtractor, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("extractor name must not be empty")
	}
	if err := shape.validate(); err != nil {
		return nil, fmt.Errorf("invalid shape for extractor %q: %w", name, err)
	}
	return &ShapeExtractor{name: name, shape: shape}, nil
}

// Name returns the registry name of the extractor.
func (extractor *ShapeExtractor) Name() string {
	return extractor.name
}

// Shape returns the declared shape.
func (extractor *ShapeExtractor) Shape() Shape {
	return extractor.shape
}

// Extract runs the strategies in precedence order and returns the first success.
func (extractor *ShapeExtractor) Extract(raw string) (Result, error) {
	shape := extractor.shape
	text := raw
	strategy := StrategyDirect
	plan := ""

	if shape.Tag != nil {
		before, inner, found := cutTagged(text, shape.Tag.Open, shape.Tag.Close)
		switch {
		case found:
			text = inner
			plan = before
			strategy = StrategyTagged
		case shape.Tag.Required:
			return Result{}, &ExtractionError{
				Extractor: extractor.name,
				Strategy:  StrategyTagged,
				Raw:       raw,
				Err:       fmt.Errorf("%w: expected %s...%s", ErrMarkersMissing, shape.Tag.Open, shape.Tag.Close),
			}
		}
	}

	if shape.FinalMarker != "" {
		if before, after, found := strings.Cut(text, shape.FinalMarker); found {
			plan = before
			text = after
		}
	}

	if shape.Fence != "" {
		if inner, found := fencedBlock(text, shape.Fence); found {
			text = inner
			if strategy == StrategyDirect {
				strategy = StrategyFenced
			}
		}
	}

	value, parseErr := extractor.parseDirect(text, strings.TrimSpace(plan))
	if parseErr == nil {
		return Result{Value: value, Raw: raw, Strategy: strategy}, nil
	}

	if shape.Salvage {
		return Result{Value: extractor.salvage(raw), Raw: raw, Strategy: StrategySalvage}, nil
	}

	var mismatchError *ShapeMismatchError
	if errors.As(parseErr, &mismatchError) {
		return Result{}, mismatchError
	}

	return Result{}, &ExtractionError{
		Extractor: extractor.name,
		Strategy:  strategy,
		Raw:       raw,
		Err:       parseErr,
	}
}

// parseDirect parses text against the shape and applies aliases, defaults and Finish.
func (extractor *ShapeExtractor) parseDirect(text string, plan string) (any, error) {
	shape := extractor.shape

	var value any
	switch shape.Kind {
	case KindJSON:
		object, err := decodeObject(text)
		if err != nil {
			return nil, err
		}
		applyAliases(object, shape.Aliases)
		if missing := missingKeys(object, shape.RequiredKeys); len(missing) > 0 {
			return nil, extractor.mismatch(text, missing, "")
		}
		for key, defaultValue := range shape.Defaults {
			if _, present := object[key]; !present {
				object[key] = defaultValue
			}
		}
		value = object

	case KindList:
		list, err := decodeList(text)
		if err != nil {
			return nil, err
		}
		value = list

	case KindSQL:
		statement := normalizeSQL(text, shape.CollapseWhitespace)
		if statement == "" {
			return nil, extractor.mismatch(text, nil, "empty SQL statement")
		}
		object := map[string]any{shape.sqlKey(): statement}
		if shape.CapturePlan && plan != "" {
			object[PlanKey] = plan
		}
		value = object

	case KindText:
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil, extractor.mismatch(text, nil, "empty text")
		}
		value = trimmed
	}

	if shape.Finish == nil {
		return value, nil
	}

	finished, err := shape.Finish(value)
	if err != nil {
		var mismatchError *ShapeMismatchError
		if errors.As(err, &mismatchError) {
			return nil, err
		}
		return nil, extractor.mismatch(text, nil, err.Error())
	}
	return finished, nil
}

func (extractor *ShapeExtractor) mismatch(raw string, missing []string, reason string) *ShapeMismatchError {
	return &ShapeMismatchError{
		Extractor: extractor.name,
		Kind:      extractor.shape.Kind,
		Missing:   missing,
		Reason:    reason,
		Raw:       raw,
	}
}

// cutTagged returns the text before the opening marker and the content between
// the markers. The last closing marker after the opening one ends the block.
func cutTagged(text, open, closing string) (before string, inner string, found bool) {
	openIndex := strings.Index(text, open)
	if openIndex < 0 {
		return "", "", false
	}
	rest := text[openIndex+len(open):]
	closeIndex := strings.LastIndex(rest, closing)
	if closeIndex < 0 {
		return "", "", false
	}
	return text[:openIndex], strings.TrimSpace(rest[:closeIndex]), true
}

// fencedBlock returns the content of the first ```label fence, falling back to
// the first unlabeled fence. A fence without a closing marker runs to the end.
func fencedBlock(text, label string) (string, bool) {
	searchFrom := 0
	unlabeled := -1
	labeled := -1

	for {
		index := strings.Index(text[searchFrom:], "```")
		if index < 0 {
			break
		}
		index += searchFrom
		lineEnd := strings.IndexByte(text[index+3:], '\n')
		header := text[index+3:]
		if lineEnd >= 0 {
			header = text[index+3 : index+3+lineEnd]
		}
		header = strings.TrimSpace(header)

		if strings.EqualFold(header, label) || strings.HasPrefix(strings.ToLower(header), strings.ToLower(label)+" ") {
			labeled = index
			break
		}
		if header == "" && unlabeled < 0 {
			unlabeled = index
		}

		closing := strings.Index(text[index+3:], "```")
		if closing < 0 {
			break
		}
		searchFrom = index + 3 + closing + 3
		if searchFrom >= len(text) {
			break
		}
	}

	start := labeled
	if start < 0 {
		start = unlabeled
	}
	if start < 0 {
		return "", false
	}

	body := text[start+3:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	} else {
		body = strings.TrimSpace(body)
		if len(body) >= len(label) && strings.EqualFold(body[:len(label)], label) {
			body = body[len(label):]
		}
	}
	if closing := strings.Index(body, "```"); closing >= 0 {
		body = body[:closing]
	}

	return strings.TrimLeftFunc(body, unicode.IsSpace), true
}

func normalizeSQL(text string, collapse bool) string {
	statement := strings.TrimSpace(strings.ReplaceAll(text, "```", ""))
	if collapse {
		statement = strings.Join(strings.Fields(statement), " ")
	}
	return statement
}

func applyAliases(object map[string]any, aliases map[string][]string) {
	for canonical, alternatives := range aliases {
		if _, present := object[canonical]; present {
			continue
		}
		for _, alternative := range alternatives {
			if value, present := object[alternative]; present {
				object[canonical] = value
				break
			}
		}
	}
}

func missingKeys(object map[string]any, required []string) []string {
	var missing []string
	for _, key := range required {
		if _, present := object[key]; !present {
			missing = append(missing, key)
		}
	}
	return missing
}

// salvage rebuilds a best-effort object from quoted "key": "value" pairs in raw.
func (extractor *ShapeExtractor) salvage(raw string) map[string]any {
	shape := extractor.shape
	keys := append(append([]string{}, shape.RequiredKeys...), shape.SalvageKeys...)

	object := make(map[string]any, len(keys))
	for _, key := range keys {
		candidates := append([]string{key}, shape.Aliases[key]...)
		for _, candidate := range candidates {
			if value, found := lastQuotedValue(raw, candidate); found {
				object[key] = value
				break
			}
		}
		if _, present := object[key]; !present {
			object[key] = shape.placeholder(key)
		}
	}
	for key, defaultValue := range shape.Defaults {
		if _, present := object[key]; !present {
			object[key] = defaultValue
		}
	}
	return object
}
