package sidecar

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"
)

// TestHelperProcess is not a real test. It is re-executed by helperCommand
// and echoes the size and content of each framed request.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("HANDSIGN_WANT_HELPER_PROCESS") != "1" {
		return
	}
	in := bufio.NewReader(os.Stdin)
	for {
		var length uint32
		if err := binary.Read(in, binary.BigEndian, &length); err != nil {
			os.Exit(0)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(in, data); err != nil {
			os.Exit(1)
		}
		if string(data) == "crash" {
			os.Exit(3)
		}
		fmt.Printf("{\"len\":%d,\"body\":%q}\n", length, data)
	}
}

func helperCommand(t *testing.T) []string {
	t.Helper()
	t.Setenv("HANDSIGN_WANT_HELPER_PROCESS", "1")
	return []string{os.Args[0], "-test.run=TestHelperProcess"}
}

func TestNew_RequiresCommand(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoCommand) {
		t.Errorf("New() error = %v, want ErrNoCommand", err)
	}
}

func TestProcess_Roundtrip(t *testing.T) {
	p, err := New(Config{Command: helperCommand(t), IdleTimeout: -1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if p.Running() {
		t.Fatal("process should start lazily")
	}

	for _, body := range []string{"hello", "frame-two"} {
		line, err := p.Roundtrip([]byte(body))
		if err != nil {
			t.Fatalf("Roundtrip(%q) error = %v", body, err)
		}
		want := fmt.Sprintf("{\"len\":%d,\"body\":%q}", len(body), body)
		if string(line) != want {
			t.Errorf("Roundtrip(%q) = %s, want %s", body, line, want)
		}
	}

	if !p.Running() {
		t.Error("process should be running after a request")
	}
}

func TestProcess_RestartsAfterFailure(t *testing.T) {
	p, err := New(Config{Command: helperCommand(t), IdleTimeout: -1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if _, err := p.Roundtrip([]byte("crash")); err == nil {
		t.Fatal("Roundtrip() should fail when the helper exits")
	}
	if p.Running() {
		t.Error("failed helper should be stopped")
	}

	if _, err := p.Roundtrip([]byte("again")); err != nil {
		t.Errorf("Roundtrip() after restart error = %v", err)
	}
}

func TestProcess_IdleTimeout(t *testing.T) {
	p, err := New(Config{Command: helperCommand(t), IdleTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()

	if _, err := p.Roundtrip([]byte("x")); err != nil {
		t.Fatalf("Roundtrip() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Running() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.Running() {
		t.Error("idle helper should have been stopped")
	}
}

func TestProcess_StartFailure(t *testing.T) {
	p, err := New(Config{Command: []string{"/nonexistent/handsign-helper"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := p.Roundtrip([]byte("x")); err == nil {
		t.Error("Roundtrip() should fail when the helper cannot start")
	}
}

func TestFindPython_Fallback(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	if got := FindPython(); got != "python3" {
		t.Errorf("FindPython() = %q, want python3", got)
	}
}

func TestFindScript_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.MkdirAll("scripts", 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("scripts/helper.py", []byte("pass\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := FindScript("helper.py"); got == "" {
		t.Error("FindScript() should find scripts/helper.py")
	}
	if got := FindScript("missing.py"); got != "" {
		t.Errorf("FindScript(missing) = %q, want empty", got)
	}
}
