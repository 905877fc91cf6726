package downloader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// ExecRunner runs a binary with os/exec and streams its output line by line.
type ExecRunner struct {
	Binary string
	Env    []string
}

// NewExecRunner creates a runner for the given binary.
func NewExecRunner(binary string) *ExecRunner {
	return &ExecRunner{Binary: binary}
}

// Run executes the binary in dir. Output from stdout and stderr is split on
// newlines and carriage returns so progress bars arrive as separate lines.
func (r *ExecRunner) Run(ctx context.Context, dir string, args []string, onLine func(line string)) error {
	cmd := exec.CommandContext(ctx, r.Binary, args...) //nolint:gosec
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1", "TERM=dumb", "COLUMNS=200")
	cmd.Env = append(cmd.Env, r.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", r.Binary, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	forward := func(line string) {
		if onLine == nil || line == "" {
			return
		}
		mu.Lock()
		onLine(line)
		mu.Unlock()
	}

	scan := func(rd io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(rd)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(scanLinesOrCR)
		for scanner.Scan() {
			forward(string(bytes.TrimSpace(scanner.Bytes())))
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s exited: %w", r.Binary, err)
	}
	return nil
}

// scanLinesOrCR is bufio.ScanLines that also breaks on '\r'.
func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
