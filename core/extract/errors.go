package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMarkersMissing reports that a shape requiring a tagged answer received a
// response without the opening or closing marker.
var ErrMarkersMissing = errors.New("answer markers not found")

// ErrUnknownExtractor is returned by [Registry.Get] for names that were never registered.
var ErrUnknownExtractor = errors.New("unknown extractor")

// ExtractionError is returned when no strategy could produce a result. It keeps
// the raw model text so the failure can be inspected from the execution history.
type ExtractionError struct {
	// Extractor is the name of the extractor that failed.
	Extractor string

	// Strategy is the last strategy that was attempted.
	Strategy Strategy

	// Raw is the unmodified model response.
	Raw string

	// Err is the underlying cause.
	Err error
}

func (extractionError *ExtractionError) Error() string {
	return fmt.Sprintf("extractor %q: %s strategy failed: %v", extractionError.Extractor, extractionError.Strategy, extractionError.Err)
}

func (extractionError *ExtractionError) Unwrap() error {
	return extractionError.Err
}

// ShapeMismatchError is returned when the text parsed but did not satisfy the
// declared shape, for example a JSON object missing a required key.
type ShapeMismatchError struct {
	Extractor string
	Kind      Kind
	Missing   []string
	Reason    string
	Raw       string
}

func (mismatchError *ShapeMismatchError) Error() string {
	if len(mismatchError.Missing) > 0 {
		return fmt.Sprintf("extractor %q: %s result missing required keys: %s",
			mismatchError.Extractor, mismatchError.Kind, strings.Join(mismatchError.Missing, ", "))
	}
	return fmt.Sprintf("extractor %q: %s result does not match shape: %s",
		mismatchError.Extractor, mismatchError.Kind, mismatchError.Reason)
}
