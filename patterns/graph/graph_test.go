package graph

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// --- Test helpers ---

type trail struct {
	visited []string
	total   int
}

type visit struct {
	name string
	add  int
}

func mergeTrail(current trail, delta visit) trail {
	visited := append(append([]string(nil), current.visited...), delta.name)
	return trail{visited: visited, total: current.total + delta.add}
}

func adder(name string, add int) NodeFunc[trail, visit] {
	return func(_ context.Context, _ trail) (visit, error) {
		return visit{name: name, add: add}, nil
	}
}

func linearBuilder(names ...string) *Builder[trail, visit] {
	builder := NewBuilder(mergeTrail)
	for _, name := range names {
		builder.AddNode(name, adder(name, 1))
	}
	for index := 1; index < len(names); index++ {
		builder.AddEdge(names[index-1], names[index])
	}
	return builder.AddEdge(names[len(names)-1], End)
}

func mustBuild(testCase *testing.T, builder *Builder[trail, visit]) *Graph[trail, visit] {
	testCase.Helper()
	compiled, err := builder.Build()
	if err != nil {
		testCase.Fatalf("unexpected build error: %v", err)
	}
	return compiled
}

// --- Build ---

func TestBuild_Validation(testCase *testing.T) {
	tests := []struct {
		name    string
		builder func() *Builder[trail, visit]
		wantErr string
		target  error
	}{
		{
			name:    "no nodes",
			builder: func() *Builder[trail, visit] { return NewBuilder(mergeTrail) },
			target:  ErrNoNodes,
		},
		{
			name: "duplicate node",
			builder: func() *Builder[trail, visit] {
				return NewBuilder(mergeTrail).AddNode("a", adder("a", 1)).AddNode("a", adder("a", 1))
			},
			wantErr: `duplicate node "a"`,
		},
		{
			name: "reserved name",
			builder: func() *Builder[trail, visit] {
				return NewBuilder(mergeTrail).AddNode(End, adder("x", 1))
			},
			wantErr: "reserved",
		},
		{
			name: "nil node",
			builder: func() *Builder[trail, visit] {
				return NewBuilder(mergeTrail).AddNode("a", nil)
			},
			wantErr: "must not be nil",
		},
		{
			name: "duplicate edge",
			builder: func() *Builder[trail, visit] {
				return linearBuilder("a", "b").AddEdge("a", "b")
			},
			wantErr: "duplicate edge",
		},
		{
			name: "unconditional cycle",
			builder: func() *Builder[trail, visit] {
				return linearBuilder("a", "b").AddEdge("b", "a")
			},
			wantErr: "cycle",
		},
		{
			name: "nil merge",
			builder: func() *Builder[trail, visit] {
				return NewBuilder[trail, visit](nil).AddNode("a", adder("a", 1))
			},
			wantErr: "merge",
		},
	}

	for _, tt := range tests {
		testCase.Run(tt.name, func(testCase *testing.T) {
			_, err := tt.builder().Build()
			if err == nil {
				testCase.Fatal("expected build error")
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				testCase.Errorf("expected %v, got %v", tt.target, err)
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				testCase.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestBuild_UnknownEntryIsFatal(testCase *testing.T) {
	_, err := linearBuilder("a", "b").SetEntryPoint("missing").Build()

	var configurationError *ConfigurationError
	if !errors.As(err, &configurationError) {
		testCase.Fatalf("expected ConfigurationError, got %v", err)
	}
	if configurationError.Name != "missing" {
		testCase.Errorf("expected name missing, got %q", configurationError.Name)
	}
}

func TestBuild_UnknownEdgeEndpointIsDropped(testCase *testing.T) {
	compiled := mustBuild(testCase, linearBuilder("a", "b", "c").
		AddEdge("b", "ghost").
		AddEdge("phantom", "c"))

	warnings := compiled.Warnings()
	if len(warnings) != 2 {
		testCase.Fatalf("expected 2 warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "ghost") || !strings.Contains(warnings[1], "phantom") {
		testCase.Errorf("unexpected warnings %v", warnings)
	}

	want := [][2]string{{"a", "b"}, {"b", "c"}, {"c", End}}
	got := compiled.Edges()
	if len(got) != len(want) {
		testCase.Fatalf("expected edges %v, got %v", want, got)
	}
	for index := range want {
		if got[index] != want[index] {
			testCase.Errorf("edge %d: expected %v, got %v", index, want[index], got[index])
		}
	}

	final, err := compiled.Run(context.Background(), trail{})
	if err != nil {
		testCase.Fatalf("unexpected run error: %v", err)
	}
	if strings.Join(final.visited, ",") != "a,b,c" {
		testCase.Errorf("expected a,b,c, got %v", final.visited)
	}
}

func TestBuild_DefaultEntryIsFirstNode(testCase *testing.T) {
	compiled := mustBuild(testCase, linearBuilder("first", "second"))
	if compiled.Entry() != "first" {
		testCase.Errorf("expected entry first, got %q", compiled.Entry())
	}
	if nodes := compiled.Nodes(); len(nodes) != 2 || nodes[0] != "first" {
		testCase.Errorf("unexpected nodes %v", nodes)
	}
}

// --- Run ---

func TestRun_LinearOrderAndAdditiveMerge(testCase *testing.T) {
	compiled := mustBuild(testCase, linearBuilder("a", "b", "c"))

	initial := trail{visited: []string{"seed"}, total: 10}
	final, err := compiled.Run(context.Background(), initial)
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(final.visited, ",") != "seed,a,b,c" {
		testCase.Errorf("expected seed,a,b,c, got %v", final.visited)
	}
	if final.total != 13 {
		testCase.Errorf("expected total 13, got %d", final.total)
	}
	if len(initial.visited) != 1 {
		testCase.Error("initial state must not be mutated")
	}
}

func TestRun_NodeSeesPredecessorState(testCase *testing.T) {
	var seen []int
	observe := func(name string) NodeFunc[trail, visit] {
		return func(_ context.Context, current trail) (visit, error) {
			seen = append(seen, current.total)
			return visit{name: name, add: 5}, nil
		}
	}

	compiled := mustBuild(testCase, NewBuilder(mergeTrail).
		AddNode("a", observe("a")).
		AddNode("b", observe("b")).
		AddEdge("a", "b"))

	if _, err := compiled.Run(context.Background(), trail{}); err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 5 {
		testCase.Errorf("expected [0 5], got %v", seen)
	}
}

func TestRun_ConditionalLoopWithMaxSteps(testCase *testing.T) {
	builder := NewBuilder(mergeTrail, WithMaxSteps(20)).
		AddNode("generate", adder("generate", 1)).
		AddNode("revise", adder("revise", 1)).
		AddNode("respond", adder("respond", 0)).
		AddEdge("generate", "revise").
		AddConditionalEdge("revise", "revise", func(current trail) bool { return current.total < 3 }).
		AddEdge("revise", "respond")

	final, err := mustBuild(testCase, builder).Run(context.Background(), trail{})
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(final.visited, ","); got != "generate,revise,revise,respond" {
		testCase.Errorf("unexpected path %s", got)
	}

	endless := NewBuilder(mergeTrail, WithMaxSteps(5)).
		AddNode("loop", adder("loop", 1)).
		AddConditionalEdge("loop", "loop", func(trail) bool { return true })
	final, err = mustBuild(testCase, endless).Run(context.Background(), trail{})
	if !errors.Is(err, ErrMaxStepsExceeded) {
		testCase.Fatalf("expected ErrMaxStepsExceeded, got %v", err)
	}
	if len(final.visited) != 5 {
		testCase.Errorf("expected partial state with 5 steps, got %d", len(final.visited))
	}
}

func TestRun_StopWhen(testCase *testing.T) {
	compiled := mustBuild(testCase, linearBuilder("a", "b", "c").
		StopWhen(func(current trail) bool { return current.total >= 2 }))

	final, err := compiled.Run(context.Background(), trail{})
	if err != nil {
		testCase.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(final.visited, ",") != "a,b" {
		testCase.Errorf("expected run to stop after b, got %v", final.visited)
	}
}

func TestRun_NodeErrorKeepsPartialState(testCase *testing.T) {
	boom := errors.New("boom")
	compiled := mustBuild(testCase, NewBuilder(mergeTrail).
		AddNode("a", adder("a", 1)).
		AddNode("b", NodeFunc[trail, visit](func(context.Context, trail) (visit, error) { return visit{}, boom })).
		AddNode("c", adder("c", 1)).
		AddEdge("a", "b").
		AddEdge("b", "c"))

	final, err := compiled.Run(context.Background(), trail{})
	if !errors.Is(err, boom) {
		testCase.Fatalf("expected boom, got %v", err)
	}
	if strings.Join(final.visited, ",") != "a" {
		testCase.Errorf("expected partial state [a], got %v", final.visited)
	}
}

func TestRun_NodeTimeout(testCase *testing.T) {
	slow := NodeFunc[trail, visit](func(ctx context.Context, _ trail) (visit, error) {
		select {
		case <-ctx.Done():
			return visit{}, ctx.Err()
		case <-time.After(time.Second):
			return visit{name: "slow"}, nil
		}
	})
	compiled := mustBuild(testCase, NewBuilder(mergeTrail).AddNode("slow", slow, WithNodeTimeout(10*time.Millisecond)))

	_, err := compiled.Run(context.Background(), trail{})
	if !errors.Is(err, context.DeadlineExceeded) {
		testCase.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestRun_CanceledContext(testCase *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mustBuild(testCase, linearBuilder("a")).Run(ctx, trail{})
	if !errors.Is(err, context.Canceled) {
		testCase.Errorf("expected context canceled, got %v", err)
	}
}

// --- Stream ---

func TestStream_YieldsEveryIntermediateState(testCase *testing.T) {
	compiled := mustBuild(testCase, linearBuilder("a", "b", "c"))

	var events []Event[trail]
	for event, err := range compiled.Stream(context.Background(), trail{}) {
		if err != nil {
			testCase.Fatalf("unexpected error: %v", err)
		}
		events = append(events, event)
	}

	if len(events) != 3 {
		testCase.Fatalf("expected 3 events, got %d", len(events))
	}
	for index, name := range []string{"a", "b", "c"} {
		if events[index].Node != name || events[index].Step != index+1 {
			testCase.Errorf("event %d: expected %s at step %d, got %s at %d", index, name, index+1, events[index].Node, events[index].Step)
		}
		if events[index].State.total != index+1 {
			testCase.Errorf("event %d: expected total %d, got %d", index, index+1, events[index].State.total)
		}
	}
	if events[0].Next != "b" || events[2].Next != End {
		testCase.Errorf("unexpected next pointers %q, %q", events[0].Next, events[2].Next)
	}
}

func TestStream_BreakStopsExecution(testCase *testing.T) {
	ran := map[string]bool{}
	track := func(name string) NodeFunc[trail, visit] {
		return func(context.Context, trail) (visit, error) {
			ran[name] = true
			return visit{name: name}, nil
		}
	}
	compiled := mustBuild(testCase, NewBuilder(mergeTrail).
		AddNode("a", track("a")).
		AddNode("b", track("b")).
		AddEdge("a", "b"))

	for event := range compiled.Stream(context.Background(), trail{}) {
		if event.Node == "a" {
			break
		}
	}

	if !ran["a"] || ran["b"] {
		testCase.Errorf("expected only a to run, got %v", ran)
	}
}
