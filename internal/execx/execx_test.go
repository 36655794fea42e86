//go:build !windows

package execx

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunEchoSucceeds(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), []string{"echo", "hello"}, Options{})
	if !res.OK {
		t.Fatalf("expected success, got output: %s", res.Output)
	}
	if res.Output != "hello" {
		t.Fatalf("expected trimmed output %q, got %q", "hello", res.Output)
	}
}

func TestRunReportsNonZeroExit(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), []string{"false"}, Options{})
	if res.OK {
		t.Fatal("expected failure for non-zero exit")
	}
}

func TestRunMissingBinaryFailsClosed(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), []string{"sysward-no-such-binary-xyz"}, Options{})
	if res.OK {
		t.Fatal("expected failure for missing binary")
	}
	if !strings.Contains(res.Output, "not found") {
		t.Fatalf("expected not-found message, got %q", res.Output)
	}
}

func TestRunEmptyCommand(t *testing.T) {
	r := NewRunner()
	if res := r.Run(context.Background(), nil, Options{}); res.OK {
		t.Fatal("expected failure for empty argv")
	}
}

func TestRunShellOption(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), []string{"echo a && echo b"}, Options{Shell: true})
	if !res.OK {
		t.Fatalf("expected success, got %q", res.Output)
	}
	if res.Output != "a\nb" {
		t.Fatalf("expected both lines, got %q", res.Output)
	}
}

func TestRunStdin(t *testing.T) {
	r := NewRunner()
	res := r.Run(context.Background(), []string{"cat"}, Options{Stdin: "piped input"})
	if !res.OK || res.Output != "piped input" {
		t.Fatalf("expected stdin echoed back, got ok=%v output=%q", res.OK, res.Output)
	}
}

func TestRunTimeoutKillsChild(t *testing.T) {
	r := NewRunner()
	start := time.Now()
	res := r.Run(context.Background(), []string{"sleep", "30"}, Options{Timeout: 1 * time.Second})
	elapsed := time.Since(start)

	if res.OK {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(res.Output, "timed out") {
		t.Fatalf("expected timeout message, got %q", res.Output)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
}

func TestRunContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	r := NewRunner()
	start := time.Now()
	res := r.Run(ctx, []string{"sleep", "30"}, Options{})
	if res.OK {
		t.Fatal("expected cancellation failure")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("cancellation not honored, took %s", elapsed)
	}
}

func TestSudoSkippedForRoot(t *testing.T) {
	r := NewRunner()
	r.euid = func() int { return 0 }

	argv, err := r.buildArgv([]string{"kill", "123"}, Options{Sudo: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(argv[0], "sudo") {
		t.Fatalf("root must not get a sudo prefix, got %v", argv)
	}
}

func TestSudoPrefixedForNonRoot(t *testing.T) {
	r := NewRunner()
	r.euid = func() int { return 1000 }

	argv, err := r.buildArgv([]string{"kill", "123"}, Options{Sudo: true})
	if err != nil {
		t.Skipf("sudo not installed: %v", err)
	}
	if !strings.HasSuffix(argv[0], "sudo") {
		t.Fatalf("expected sudo prefix for non-root, got %v", argv)
	}
}
