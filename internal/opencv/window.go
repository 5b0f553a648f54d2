//go:build opencv

package opencv

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/Kabilash01/cricket-ai/internal/display"
)

const (
	keyEscape = 27
	keyQ      = 'q'
)

// Window shows frames in a HighGUI window. Show must be called from the
// goroutine that created the window; pressing q or Esc, or closing the
// window, requests a stop.
type Window struct {
	display.Canceller
	window *gocv.Window
}

// NewWindow opens a window with the given title
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Show displays img and polls the keyboard once
func (w *Window) Show(img image.Image) error {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("failed to convert frame: %w", err)
	}
	defer mat.Close()

	w.window.IMShow(mat)
	switch w.window.WaitKey(1) {
	case keyQ, keyEscape:
		w.Cancel()
	}
	if w.window.GetWindowProperty(gocv.WindowPropertyVisible) < 1 {
		w.Cancel()
	}
	return nil
}

// Close destroys the window
func (w *Window) Close() error {
	return w.window.Close()
}
