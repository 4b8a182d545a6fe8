package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/leofalp/sqlgraph/internal/utils"
)

// flattenControl replaces raw newlines and tabs, which models often leave
// inside JSON string literals, with spaces.
var flattenControl = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "\t", " ")

// decodeObject parses content as a JSON object. Strict decoding is tried first,
// then the outermost {...} candidate, then a jsonrepair pass. Objects that echo
// a schema ({"type": ..., "value": ...}) are unwrapped.
func decodeObject(content string) (map[string]any, error) {
	var object map[string]any
	if err := decodeRepaired(content, '{', '}', &object); err != nil {
		return nil, err
	}
	if object == nil {
		return nil, fmt.Errorf("content is not a JSON object")
	}

	unwrapped, ok := recursiveUnwrap(object).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("content is not a JSON object")
	}
	return unwrapped, nil
}

// decodeList parses content as a list literal. Python literals such as
// ['a', "b", None, True] are accepted through jsonrepair.
func decodeList(content string) ([]any, error) {
	var list []any
	if err := decodeRepaired(content, '[', ']', &list); err != nil {
		return nil, err
	}
	if list == nil {
		return nil, fmt.Errorf("content is not a list")
	}
	return list, nil
}

func decodeRepaired(content string, open, closing byte, target any) error {
	flattened := strings.TrimSpace(flattenControl.Replace(content))
	if flattened == "" {
		return fmt.Errorf("empty content")
	}

	unmarshalError := json.Unmarshal([]byte(flattened), target)
	if unmarshalError == nil {
		return nil
	}

	candidate := flattened
	if start, end := strings.IndexByte(flattened, open), strings.LastIndexByte(flattened, closing); start >= 0 && end > start {
		candidate = flattened[start : end+1]
		if err := json.Unmarshal([]byte(candidate), target); err == nil {
			return nil
		}
	}

	repairedJSON, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return fmt.Errorf("failed to unmarshal content and failed to repair JSON: unmarshal error: %w, repair error: %v", unmarshalError, repairErr)
	}

	if err := json.Unmarshal([]byte(repairedJSON), target); err != nil {
		return fmt.Errorf("failed to unmarshal repaired JSON: %w (repaired: %s)", err, utils.TruncateString(repairedJSON, 200))
	}
	return nil
}

// recursiveUnwrap replaces {"type": ..., "value": ...} wrappers with their value.
// Models sometimes confuse a JSON schema with the data it describes.
func recursiveUnwrap(data any) any {
	switch typed := data.(type) {
	case map[string]any:
		if _, hasType := typed["type"]; hasType {
			if value, hasValue := typed["value"]; hasValue && len(typed) == 2 {
				return recursiveUnwrap(value)
			}
		}
		result := make(map[string]any, len(typed))
		for key, value := range typed {
			result[key] = recursiveUnwrap(value)
		}
		return result

	case []any:
		result := make([]any, len(typed))
		for index, value := range typed {
			result[index] = recursiveUnwrap(value)
		}
		return result

	default:
		return data
	}
}

// lastQuotedValue finds the last "key": "value" occurrence in raw.
func lastQuotedValue(raw, key string) (string, bool) {
	pattern := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	matches := pattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return "", false
	}

	value := matches[len(matches)-1][1]
	if unquoted, err := strconv.Unquote(`"` + value + `"`); err == nil {
		value = unquoted
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
