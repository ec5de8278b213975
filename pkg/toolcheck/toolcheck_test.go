package toolcheck

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulschiretz/pgl-mirror/pkg/toolexec"
)

// fakeRunner implements toolexec.Runner with a scripted LookPath result and
// counts how often the probe actually runs.
type fakeRunner struct {
	lookPathErr error
	probes      atomic.Int64
}

func (f *fakeRunner) LookPath(file string) (string, error) {
	f.probes.Add(1)
	if f.lookPathErr != nil {
		return "", f.lookPathErr
	}
	return "/usr/bin/" + file, nil
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (*toolexec.Result, error) {
	return &toolexec.Result{}, nil
}

func TestDetect_CachesProbeResult(t *testing.T) {
	t.Run("Available is probed once", func(t *testing.T) {
		runner := &fakeRunner{}
		check := New(ToolName, runner)

		for range 5 {
			if !check.Detect() {
				t.Fatal("expected tool to be detected as available")
			}
		}
		if got := runner.probes.Load(); got != 1 {
			t.Errorf("expected exactly 1 probe, got %d", got)
		}
		if check.State() != StateAvailable {
			t.Errorf("expected cached state available, got %v", check.State())
		}
	})

	t.Run("Probe error means unavailable, never propagated", func(t *testing.T) {
		runner := &fakeRunner{lookPathErr: errors.New("not found")}
		check := New(ToolName, runner)

		for range 5 {
			if check.Detect() {
				t.Fatal("expected tool to be detected as unavailable")
			}
		}
		if got := runner.probes.Load(); got != 1 {
			t.Errorf("expected exactly 1 probe, got %d", got)
		}
		if check.State() != StateUnavailable {
			t.Errorf("expected cached state unavailable, got %v", check.State())
		}
	})
}

func TestReset_ForcesReprobe(t *testing.T) {
	runner := &fakeRunner{}
	check := New(ToolName, runner)

	check.Detect()
	check.Reset()
	if check.State() != StateUnknown {
		t.Fatalf("expected state unknown after reset, got %v", check.State())
	}
	check.Detect()

	if got := runner.probes.Load(); got != 2 {
		t.Errorf("expected 2 probes after reset, got %d", got)
	}
}

func TestOverride(t *testing.T) {
	boolPtr := func(b bool) *bool { return &b }

	t.Run("Forced unavailable skips probing", func(t *testing.T) {
		runner := &fakeRunner{}
		check := New(ToolName, runner)

		check.Override(boolPtr(false))
		if check.Detect() {
			t.Error("expected forced-unavailable to win over the probe")
		}
		if got := runner.probes.Load(); got != 0 {
			t.Errorf("expected no probe with an override in place, got %d", got)
		}
	})

	t.Run("Forced available skips probing", func(t *testing.T) {
		runner := &fakeRunner{lookPathErr: errors.New("not found")}
		check := New(ToolName, runner)

		check.Override(boolPtr(true))
		if !check.Detect() {
			t.Error("expected forced-available to win over the probe")
		}
	})

	t.Run("Nil clears the override", func(t *testing.T) {
		runner := &fakeRunner{}
		check := New(ToolName, runner)

		check.Override(boolPtr(false))
		check.Override(nil)
		if check.State() != StateUnknown {
			t.Fatalf("expected state unknown after clearing override, got %v", check.State())
		}
		if !check.Detect() {
			t.Error("expected probe to run again after clearing the override")
		}
	})
}

func TestDetect_ConcurrentFirstUse(t *testing.T) {
	runner := &fakeRunner{}
	check := New(ToolName, runner)

	var wg sync.WaitGroup
	results := make([]bool, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = check.Detect()
		}()
	}
	wg.Wait()

	for i, r := range results {
		if !r {
			t.Errorf("goroutine %d got unavailable, expected available", i)
		}
	}
	// Concurrent first-time detections are collapsed into a single probe.
	if got := runner.probes.Load(); got != 1 {
		t.Errorf("expected exactly 1 probe under concurrency, got %d", got)
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []State{StateUnknown, StateAvailable, StateUnavailable} {
		parsed, err := ParseState(s.String())
		if err != nil {
			t.Fatalf("ParseState(%q) returned error: %v", s.String(), err)
		}
		if parsed != s {
			t.Errorf("ParseState(%q) = %v; want %v", s.String(), parsed, s)
		}
	}
	if _, err := ParseState("bogus"); err == nil {
		t.Error("expected an error for an invalid state string")
	}
}
