package extract

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func objectGenerator() *rapid.Generator[map[string]any] {
	return rapid.Custom(func(t *rapid.T) map[string]any {
		keys := rapid.SliceOfNDistinct(rapid.StringMatching(`k_[a-z]{1,8}`), 0, 6, rapid.ID[string]).Draw(t, "keys")
		object := make(map[string]any, len(keys))
		for _, key := range keys {
			switch rapid.IntRange(0, 2).Draw(t, "kind") {
			case 0:
				object[key] = rapid.StringMatching(`[A-Za-z0-9 ,.?]{0,24}`).Draw(t, "text")
			case 1:
				object[key] = float64(rapid.IntRange(-1000, 1000).Draw(t, "number"))
			default:
				object[key] = rapid.Bool().Draw(t, "flag")
			}
		}
		return object
	})
}

func TestProperty_FenceStrippingIsNoOpOnCleanJSON(testCase *testing.T) {
	extractor, err := NewExtractor("object", Shape{Kind: KindJSON, Fence: "json"})
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}

	rapid.Check(testCase, func(t *rapid.T) {
		object := objectGenerator().Draw(t, "object")
		encoded, marshalErr := json.Marshal(object)
		if marshalErr != nil {
			t.Fatalf("marshal failed: %v", marshalErr)
		}
		leading := rapid.StringMatching(`[ \n]{0,3}`).Draw(t, "leading")

		plain, plainErr := extractor.Extract(string(encoded))
		fenced, fencedErr := extractor.Extract("```json\n" + leading + string(encoded) + "\n```")
		if plainErr != nil || fencedErr != nil {
			t.Fatalf("unexpected errors: plain=%v fenced=%v", plainErr, fencedErr)
		}
		if !reflect.DeepEqual(plain.Value, fenced.Value) {
			t.Fatalf("fenced result %v differs from plain result %v", fenced.Value, plain.Value)
		}
	})
}

func TestProperty_TaggedShapesNeverFallThrough(testCase *testing.T) {
	registry := NewRegistry()

	rapid.Check(testCase, func(t *rapid.T) {
		raw := rapid.String().Filter(func(text string) bool {
			return !strings.Contains(text, "<Answer>") && !strings.Contains(text, "</Answer>")
		}).Draw(t, "raw")
		name := rapid.SampledFrom([]string{Evaluate, GenerateUnitTests}).Draw(t, "extractor")

		extractor, err := registry.Get(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		result, err := extractor.Extract(raw)
		if err == nil {
			t.Fatalf("expected failure, got %v via %s", result.Value, result.Strategy)
		}
		if !errors.Is(err, ErrMarkersMissing) {
			t.Fatalf("expected ErrMarkersMissing, got %v", err)
		}
	})
}

func TestProperty_SQLExtractionIsIdempotent(testCase *testing.T) {
	registry := NewRegistry()

	rapid.Check(testCase, func(t *rapid.T) {
		statement := rapid.StringMatching(`SELECT [a-z_]{1,10} FROM [a-z_]{1,10}( WHERE [a-z_]{1,6} = [0-9]{1,3})?`).Draw(t, "statement")
		name := rapid.SampledFrom([]string{GenerateCandidateFinetuned, GenerateCandidateMarkdownCoT, GenerateCandidateCoT}).Draw(t, "extractor")
		decorated := rapid.SampledFrom([]string{
			statement,
			"  " + statement + "\n",
			"```sql\n" + statement + "\n```",
			"<FINAL_ANSWER>```sql\n" + statement + "\n```</FINAL_ANSWER>",
			"reasoning\nMy final answer is:\n```sql\n" + statement + "\n```",
		}).Draw(t, "decorated")

		extractor, err := registry.Get(name)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		first, err := extractor.Extract(decorated)
		if err != nil {
			t.Fatalf("first extraction failed: %v", err)
		}
		second, err := extractor.Extract(first.String("SQL"))
		if err != nil {
			t.Fatalf("second extraction failed: %v", err)
		}
		if first.String("SQL") != second.String("SQL") {
			t.Fatalf("extraction not idempotent: %q then %q", first.String("SQL"), second.String("SQL"))
		}
	})
}

func TestProperty_JSONExtractionIsIdempotent(testCase *testing.T) {
	extractor, err := NewExtractor("object", Shape{Kind: KindJSON, Fence: "json"})
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}

	rapid.Check(testCase, func(t *rapid.T) {
		object := objectGenerator().Draw(t, "object")
		encoded, _ := json.Marshal(object)

		first, err := extractor.Extract("Answer:\n```json\n" + string(encoded) + "\n```")
		if err != nil {
			t.Fatalf("first extraction failed: %v", err)
		}
		reencoded, _ := json.Marshal(first.Value)
		second, err := extractor.Extract(string(reencoded))
		if err != nil {
			t.Fatalf("second extraction failed: %v", err)
		}
		if !reflect.DeepEqual(first.Value, second.Value) {
			t.Fatalf("extraction not idempotent: %v then %v", first.Value, second.Value)
		}
	})
}
