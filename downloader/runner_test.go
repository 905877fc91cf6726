package downloader

import (
	"context"
	"os/exec"
	"testing"
)

func TestExecRunnerStreamsLines(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	runner := NewExecRunner("sh")
	var lines []string
	err := runner.Run(context.Background(), t.TempDir(), []string{"-c", `printf 'one\rtwo\nthree\n'; echo oops 1>&2`}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	seen := map[string]bool{}
	for _, l := range lines {
		seen[l] = true
	}
	for _, want := range []string{"one", "two", "three", "oops"} {
		if !seen[want] {
			t.Errorf("missing line %q in %v", want, lines)
		}
	}
}

func TestExecRunnerExitStatus(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	err := NewExecRunner("sh").Run(context.Background(), t.TempDir(), []string{"-c", "exit 3"}, nil)
	if err == nil {
		t.Errorf("expected error for non-zero exit")
	}
}
