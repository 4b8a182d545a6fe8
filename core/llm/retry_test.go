package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockSendSequence returns its errors and responses in call order.
type mockSendSequence struct {
	responses []*ChatResponse
	errors    []error
	callCount int
}

func (sequence *mockSendSequence) next(_ context.Context, _ ChatRequest) (*ChatResponse, error) {
	index := sequence.callCount
	sequence.callCount++

	if index < len(sequence.errors) && sequence.errors[index] != nil {
		return nil, sequence.errors[index]
	}
	if index < len(sequence.responses) {
		return sequence.responses[index], nil
	}
	return &ChatResponse{Content: "default", FinishReason: "stop"}, nil
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func TestDefaultRetryable(testCase *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limited", err: &StatusError{StatusCode: 429}, want: true},
		{name: "server error", err: &StatusError{StatusCode: 503}, want: true},
		{name: "overloaded", err: &StatusError{StatusCode: 529}, want: true},
		{name: "bad request", err: &StatusError{StatusCode: 400}, want: false},
		{name: "wrapped status", err: fmt.Errorf("send: %w", &StatusError{StatusCode: 502}), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "foreign text status", err: errors.New("upstream said status 500"), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		testCase.Run(tt.name, func(testCase *testing.T) {
			if got := DefaultRetryable(tt.err); got != tt.want {
				testCase.Errorf("DefaultRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRetryMiddleware_SucceedsAfterTransientFailures(testCase *testing.T) {
	sequence := &mockSendSequence{
		errors:    []error{&StatusError{StatusCode: 503}, &StatusError{StatusCode: 429}},
		responses: []*ChatResponse{nil, nil, {Content: "third time"}},
	}
	send := NewRetryMiddleware(fastRetry(3))(sequence.next)

	response, err := send(context.Background(), ChatRequest{})
	if err != nil {
		testCase.Fatalf("expected success, got %v", err)
	}
	if response.Content != "third time" {
		testCase.Errorf("expected third response, got %q", response.Content)
	}
	if sequence.callCount != 3 {
		testCase.Errorf("expected 3 calls, got %d", sequence.callCount)
	}
}

func TestRetryMiddleware_Exhausted(testCase *testing.T) {
	lastErr := &StatusError{StatusCode: 500, Body: "down"}
	sequence := &mockSendSequence{errors: []error{lastErr, lastErr, lastErr}}
	send := NewRetryMiddleware(fastRetry(2))(sequence.next)

	_, err := send(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrRetryExhausted) {
		testCase.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	var statusError *StatusError
	if !errors.As(err, &statusError) || statusError.StatusCode != 500 {
		testCase.Errorf("expected wrapped status 500, got %v", err)
	}
	if sequence.callCount != 3 {
		testCase.Errorf("expected 1 attempt + 2 retries, got %d calls", sequence.callCount)
	}
}

func TestRetryMiddleware_NonRetryableReturnsImmediately(testCase *testing.T) {
	sequence := &mockSendSequence{errors: []error{&StatusError{StatusCode: 401}}}
	send := NewRetryMiddleware(fastRetry(3))(sequence.next)

	_, err := send(context.Background(), ChatRequest{})
	if errors.Is(err, ErrRetryExhausted) {
		testCase.Error("did not expect ErrRetryExhausted for a non-retryable error")
	}
	if sequence.callCount != 1 {
		testCase.Errorf("expected a single call, got %d", sequence.callCount)
	}
}

func TestRetryMiddleware_NegativeDisables(testCase *testing.T) {
	sequence := &mockSendSequence{errors: []error{&StatusError{StatusCode: 503}}}
	send := NewRetryMiddleware(fastRetry(-1))(sequence.next)

	_, err := send(context.Background(), ChatRequest{})
	if err == nil {
		testCase.Fatal("expected error")
	}
	if sequence.callCount != 1 {
		testCase.Errorf("expected a single call, got %d", sequence.callCount)
	}
}

func TestRetryMiddleware_ContextCanceledDuringBackoff(testCase *testing.T) {
	sequence := &mockSendSequence{errors: []error{&StatusError{StatusCode: 503}, &StatusError{StatusCode: 503}}}
	send := NewRetryMiddleware(RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour, MaxBackoff: time.Hour})(sequence.next)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := send(ctx, ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		testCase.Errorf("expected deadline exceeded, got %v", err)
	}
	if sequence.callCount != 1 {
		testCase.Errorf("expected no retry after cancellation, got %d calls", sequence.callCount)
	}
}

func TestComputeBackoff_Capped(testCase *testing.T) {
	config := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 4 * time.Second, BackoffFactor: 2, JitterFraction: 0.1}

	for attempt, want := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second} {
		got := computeBackoff(config, attempt)
		if got < want || got > want+want/10 {
			testCase.Errorf("attempt %d: backoff %v outside [%v, %v]", attempt, got, want, want+want/10)
		}
	}
}

func TestTimeoutMiddleware(testCase *testing.T) {
	slow := func(ctx context.Context, _ ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	_, err := NewTimeoutMiddleware(10 * time.Millisecond)(slow)(context.Background(), ChatRequest{})
	if !errors.Is(err, context.DeadlineExceeded) {
		testCase.Errorf("expected deadline exceeded, got %v", err)
	}

	sequence := &mockSendSequence{}
	if _, err := NewTimeoutMiddleware(0)(sequence.next)(context.Background(), ChatRequest{}); err != nil {
		testCase.Errorf("expected zero timeout to pass through, got %v", err)
	}
}

func TestChain_Order(testCase *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next SendFunc) SendFunc {
			return func(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
				order = append(order, name)
				return next(ctx, request)
			}
		}
	}

	provider := &stubProvider{}
	send := Chain(provider, tag("outer"), nil, tag("inner"))
	if _, err := send(context.Background(), ChatRequest{}); err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		testCase.Errorf("expected [outer inner], got %v", order)
	}
}
