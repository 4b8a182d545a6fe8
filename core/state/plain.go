package state

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Plain converts value into a structure made only of maps, slices, strings,
// numbers, booleans and nil, so it can cross a logging or audit boundary.
// Numbers keep their Go type; byte slices become strings and times are
// formatted as RFC 3339.
func Plain(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return typed
	case json.Number:
		return typed.String()
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	case time.Duration:
		return typed.String()
	case error:
		return typed.Error()
	}

	reflected := reflect.ValueOf(value)
	switch reflected.Kind() {
	case reflect.String:
		return reflected.String()
	case reflect.Bool:
		return reflected.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return reflected.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return reflected.Uint()
	case reflect.Float32, reflect.Float64:
		return reflected.Float()

	case reflect.Slice, reflect.Array:
		if reflected.Kind() == reflect.Slice && reflected.IsNil() {
			return nil
		}
		elements := make([]any, reflected.Len())
		for index := range reflected.Len() {
			elements[index] = Plain(reflected.Index(index).Interface())
		}
		return elements

	case reflect.Map:
		if reflected.IsNil() {
			return nil
		}
		object := make(map[string]any, reflected.Len())
		iterator := reflected.MapRange()
		for iterator.Next() {
			object[fmt.Sprint(iterator.Key().Interface())] = Plain(iterator.Value().Interface())
		}
		return object

	case reflect.Pointer, reflect.Interface:
		if reflected.IsNil() {
			return nil
		}
		return Plain(reflected.Elem().Interface())
	}

	if stringer, ok := value.(fmt.Stringer); ok {
		return stringer.String()
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	var decoded any
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		return string(encoded)
	}
	return decoded
}

// clonePlain deep-copies a value produced by Plain.
func clonePlain(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		object := make(map[string]any, len(typed))
		for key, element := range typed {
			object[key] = clonePlain(element)
		}
		return object
	case []any:
		elements := make([]any, len(typed))
		for index, element := range typed {
			elements[index] = clonePlain(element)
		}
		return elements
	default:
		return typed
	}
}
