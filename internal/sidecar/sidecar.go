// Package sidecar runs helper processes that answer one JSON line per
// length-prefixed request written to their stdin.
//
// Framing: a 4-byte big-endian length followed by the payload. The helper
// replies with a single newline-terminated line.
package sidecar

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultIdleTimeout is how long an unused helper stays alive.
const DefaultIdleTimeout = 30 * time.Second

// ErrNoCommand is returned when a Process has nothing to run.
var ErrNoCommand = errors.New("sidecar: no command configured")

// Config describes the helper process.
type Config struct {
	// Command is the executable and its arguments.
	Command []string
	// IdleTimeout stops the helper after this long without requests.
	// Zero uses DefaultIdleTimeout, negative disables the idle stop.
	IdleTimeout time.Duration
	Stderr      io.Writer
	Logger      zerolog.Logger
}

// Process is a lazily started helper. Requests are serialized.
type Process struct {
	cfg Config

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer
}

// New creates a Process. The helper is started on the first request.
func New(cfg Config) (*Process, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, ErrNoCommand
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &Process{cfg: cfg}, nil
}

// Roundtrip sends one framed payload and returns the reply line without its
// trailing newline. A failed exchange stops the helper so the next request
// starts a fresh one.
func (p *Process) Roundtrip(payload []byte) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureStarted(); err != nil {
		return nil, err
	}

	line, err := p.exchange(payload)
	if err != nil {
		p.shutdown()
		return nil, err
	}

	p.resetIdleTimer()
	return line, nil
}

func (p *Process) exchange(payload []byte) ([]byte, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(payload)))

	if _, err := p.stdin.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := p.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := p.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return trimNewline(line), nil
}

// Running reports whether the helper process is currently alive.
func (p *Process) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Close stops the helper process.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown()
}

func (p *Process) ensureStarted() error {
	if p.started {
		return nil
	}

	cmd := exec.Command(p.cfg.Command[0], p.cfg.Command[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = p.cfg.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", filepath.Base(p.cfg.Command[0]), err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(stdout)
	p.started = true

	p.cfg.Logger.Debug().
		Strs("command", p.cfg.Command).
		Int("pid", cmd.Process.Pid).
		Msg("sidecar started")

	return nil
}

func (p *Process) shutdown() error {
	if !p.started {
		return nil
	}

	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}

	if p.stdin != nil {
		p.stdin.Close()
	}

	err := p.cmd.Wait()
	p.started = false
	p.cmd = nil
	p.stdin = nil
	p.stdout = nil

	p.cfg.Logger.Debug().Err(err).Msg("sidecar stopped")
	return err
}

func (p *Process) resetIdleTimer() {
	if p.cfg.IdleTimeout < 0 {
		return
	}
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.idleTimer = time.AfterFunc(p.cfg.IdleTimeout, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.shutdown()
	})
}

func trimNewline(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line
}

// FindScript returns the absolute path of the first existing candidate
// location of a helper script, or "" when none exists. Candidates are the
// working directory, its parent, the executable's directory and
// ~/.handsign.
func FindScript(name string) string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", name),
		filepath.Join("..", "scripts", name),
		filepath.Join(execDir, "scripts", name),
		filepath.Join(os.Getenv("HOME"), ".handsign", "scripts", name),
	}
	return firstExisting(candidates)
}

// FindPython returns a virtual environment interpreter when one exists next
// to the project, otherwise "python3".
func FindPython() string {
	var execDir string
	if execPath, err := os.Executable(); err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".handsign/venv/bin/python"),
	}
	if path := firstExisting(candidates); path != "" {
		return path
	}
	return "python3"
}

func firstExisting(candidates []string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
