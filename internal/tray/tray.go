// Package tray provides a system tray interface for handsign: pause and
// resume live inference, resume a paused capture session, and show the
// last displayed label.
package tray

import (
	"context"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/handsign/internal/capture"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle  func(enabled bool)
	onPreview func()
	onQuit    func()
	enabled   bool
	mu        sync.RWMutex

	resume chan struct{}
	quit   func()

	// Menu items stored for later updates
	menuToggle    *systray.MenuItem
	menuLastLabel *systray.MenuItem
	menuResume    *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		resume:  make(chan struct{}, 1),
		quit:    systray.Quit,
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPreview sets the callback function to be called when the preview menu item is clicked.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// ResumeSignal returns a capture.ResumeSignal released by the "Resume
// capture" menu item.
func (t *Tray) ResumeSignal() capture.ResumeSignal {
	return capture.ChannelResume{C: t.resume, Prompt: t.setWaiting}
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// RunContext runs the tray until ctx is cancelled or Quit is clicked.
func (t *Tray) RunContext(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { t.quit() })
	defer stop()
	t.Run()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("handsign")
	systray.SetTooltip("handsign live sign recognition")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem("● Recognizing", "Pause or resume sign recognition")
	systray.AddSeparator()

	t.menuLastLabel = systray.AddMenuItem("Last: none", "Last displayed sign")
	t.menuLastLabel.Disable()

	t.menuResume = systray.AddMenuItem("Resume capture", "Continue a paused capture session")
	t.menuResume.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuPreview := systray.AddMenuItem("Open Preview...", "Open the live preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit handsign")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-t.menuResume.ClickedCh:
				t.handleResume()
			case <-menuPreview.ClickedCh:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

// onExit is called when the system tray is about to exit.
func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		if enabled {
			t.menuToggle.SetTitle("● Recognizing")
		} else {
			t.menuToggle.SetTitle("○ Paused")
		}
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

// setWaiting enables the resume item and shows the capture prompt.
func (t *Tray) setWaiting(prompt string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuResume != nil {
		t.menuResume.SetTitle("Resume capture: " + prompt)
		t.menuResume.Enable()
	}
}

// handleResume releases a waiting capture session. Clicks while nothing is
// waiting are coalesced into one pending resume.
func (t *Tray) handleResume() {
	select {
	case t.resume <- struct{}{}:
	default:
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.menuResume != nil {
		t.menuResume.SetTitle("Resume capture")
		t.menuResume.Disable()
	}
}

// handlePreview handles the preview menu item click.
func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	t.quit()
}

// SetLastLabel updates the last displayed label in the menu.
func (t *Tray) SetLastLabel(label string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastLabel != nil {
		if label == "" {
			t.menuLastLabel.SetTitle("Last: none")
		} else {
			t.menuLastLabel.SetTitle("Last: " + label)
		}
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
