package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/leofalp/sqlgraph/providers/observability"
)

// HTTPStatusError reports a response outside the 2xx range. Body is the raw
// response body.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (statusError *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", statusError.StatusCode, TruncateString(statusError.Body, DefaultPreviewLength))
}

// PostJSON sends payload as a JSON POST to endpoint and decodes the 2xx
// answer into Response. A non-empty bearer is sent as the Authorization
// token. A nil client means http.DefaultClient.
//
// Request and response events go to the span carried by ctx, if any.
func PostJSON[Response any](ctx context.Context, client *http.Client, endpoint, bearer string, payload any) (*Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	span := observability.SpanFromContext(ctx)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	if bearer != "" {
		request.Header.Set("Authorization", "Bearer "+bearer)
	}
	if span != nil {
		span.AddEvent("http.request.sent",
			observability.String(observability.AttrHTTPMethod, http.MethodPost),
			observability.String(observability.AttrHTTPURL, endpoint),
			observability.Int(observability.AttrHTTPRequestBodySize, len(encoded)),
		)
	}

	watch := StartStopwatch()
	response, err := client.Do(request)
	if err != nil {
		if span != nil {
			span.AddEvent("http.request.failed", observability.Error(err), observability.Duration(observability.AttrDuration, watch.Stop()))
		}
		return nil, fmt.Errorf("send request: %w", err)
	}
	body, err := io.ReadAll(response.Body)
	if closeErr := response.Body.Close(); closeErr != nil {
		if observer := observability.ObserverFromContext(ctx); observer != nil {
			observer.Warn(ctx, "response body not closed", observability.String(observability.AttrHTTPURL, endpoint), observability.Error(closeErr))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if span != nil {
		span.AddEvent("http.response.received",
			observability.Int(observability.AttrHTTPStatusCode, response.StatusCode),
			observability.Int(observability.AttrHTTPResponseBodySize, len(body)),
			observability.Duration(observability.AttrDuration, watch.Stop()),
		)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, &HTTPStatusError{StatusCode: response.StatusCode, Body: string(body)}
	}
	decoded := new(Response)
	if err := json.Unmarshal(body, decoded); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w; body: %s", response.StatusCode, err, TruncateString(string(body), DefaultPreviewLength))
	}
	return decoded, nil
}
