package capture

import (
	"context"
	"fmt"

	"github.com/nfnt/resize"
	"gocv.io/x/gocv"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// DisplayWidth is the preview width used for video playback.
const DisplayWidth = 1200

// Window shows annotated frames in an OpenCV window. Pressing q stops the run.
type Window struct {
	win   *gocv.Window
	width uint // zero keeps the frame size
}

var _ usecase.Sink = (*Window)(nil)

// NewWindow opens a preview window. width scales frames preserving the aspect ratio.
func NewWindow(title string, width uint) *Window {
	return &Window{win: gocv.NewWindow(title), width: width}
}

// EmitFrame draws the frame and polls the keyboard.
func (w *Window) EmitFrame(ctx context.Context, frame entity.AnnotatedFrame) error {
	img := frame.Image
	if img == nil {
		return nil
	}
	if w.width > 0 && uint(img.Bounds().Dx()) != w.width {
		img = resize.Resize(w.width, 0, img, resize.Bilinear)
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("failed to convert frame %d: %w", frame.Index, err)
	}
	defer mat.Close()

	w.win.IMShow(mat)
	if IsQuitKey(w.win.WaitKey(1)) {
		return domain.ErrStopRequested
	}
	return nil
}

// EmitOutcome is a no-op. Results are printed by the caller.
func (w *Window) EmitOutcome(ctx context.Context, outcome entity.Outcome) error {
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}

// IsQuitKey reports whether a WaitKey result is q or Q.
func IsQuitKey(key int) bool {
	k := key & 0xff
	return key >= 0 && (k == 'q' || k == 'Q')
}
