package tray

import (
	"context"
	"testing"
	"time"
)

func TestTray_Toggle(t *testing.T) {
	tr := New()
	if !tr.IsEnabled() {
		t.Fatal("expected tray to start enabled")
	}

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || got[0] != false || got[1] != true {
		t.Errorf("unexpected toggle callbacks %v", got)
	}
	if !tr.IsEnabled() {
		t.Error("expected tray enabled after two toggles")
	}
}

func TestTray_ResumeSignal(t *testing.T) {
	tr := New()
	sig := tr.ResumeSignal()

	done := make(chan error, 1)
	go func() { done <- sig.Wait(context.Background(), "next label: B") }()

	select {
	case <-done:
		t.Fatal("Wait returned before resume was clicked")
	case <-time.After(20 * time.Millisecond):
	}

	tr.handleResume()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after resume")
	}
}

func TestTray_ResumeClicksCoalesce(t *testing.T) {
	tr := New()
	tr.handleResume()
	tr.handleResume()

	sig := tr.ResumeSignal()
	if err := sig.Wait(context.Background(), ""); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sig.Wait(ctx, ""); err == nil {
		t.Error("expected second Wait to block until the context ends")
	}
}

func TestTray_QuitAndPreview(t *testing.T) {
	tr := New()
	var quitCalled, systrayQuit, previewCalled bool
	tr.quit = func() { systrayQuit = true }
	tr.OnQuit(func() { quitCalled = true })
	tr.OnPreview(func() { previewCalled = true })

	tr.handlePreview()
	tr.handleQuit()

	if !previewCalled || !quitCalled || !systrayQuit {
		t.Errorf("preview=%v quit=%v systray=%v", previewCalled, quitCalled, systrayQuit)
	}
}

func TestTray_SetLastLabelBeforeReady(t *testing.T) {
	tr := New()
	tr.SetLastLabel("OK")
	tr.SetLastLabel("")
}
