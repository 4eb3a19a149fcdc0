// Package capture reads frames from cameras and video files and shows previews, using OpenCV.
package capture

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"gocv.io/x/gocv"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

const (
	CaptureWidth  = 1280
	CaptureHeight = 720
	// InferenceWidth and InferenceHeight are the size camera frames are scaled to before detection.
	InferenceWidth  = 840
	InferenceHeight = 440

	// maxEmptyReads bounds consecutive empty camera reads before the device is treated as lost.
	maxEmptyReads = 30
)

// Source yields frames from a gocv.VideoCapture.
type Source struct {
	cap    *gocv.VideoCapture
	mat    gocv.Mat
	origin string
	live   bool
	size   image.Point // zero keeps the native size
	next   int
}

var _ usecase.FrameSource = (*Source)(nil)

// OpenCamera opens a capture device at 1280x720 and scales frames to 840x440.
func OpenCamera(device int) (*Source, error) {
	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera %d: %w", device, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, CaptureWidth)
	vc.Set(gocv.VideoCaptureFrameHeight, CaptureHeight)

	slog.Info("camera opened", "device", device)
	return &Source{
		cap:    vc,
		mat:    gocv.NewMat(),
		origin: fmt.Sprintf("camera:%d", device),
		live:   true,
		size:   image.Pt(InferenceWidth, InferenceHeight),
	}, nil
}

// OpenVideo opens a video file. Frames keep their native size.
func OpenVideo(path string) (*Source, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video %s: %w", path, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("failed to open video %s", path)
	}

	slog.Info("video opened",
		"path", path,
		"frames", int(vc.Get(gocv.VideoCaptureFrameCount)),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)
	return &Source{cap: vc, mat: gocv.NewMat(), origin: path}, nil
}

// Next reads the next frame. A video ends with domain.ErrEndOfStream, a camera
// that stops delivering frames fails with domain.ErrFrameRead.
func (s *Source) Next(ctx context.Context) (entity.Frame, error) {
	empty := 0
	for {
		if err := ctx.Err(); err != nil {
			return entity.Frame{}, err
		}
		if ok := s.cap.Read(&s.mat); !ok {
			if s.live {
				return entity.Frame{}, fmt.Errorf("%w: cannot read %s", domain.ErrFrameRead, s.origin)
			}
			return entity.Frame{}, domain.ErrEndOfStream
		}
		if !s.mat.Empty() {
			break
		}
		if !s.live {
			return entity.Frame{}, domain.ErrEndOfStream
		}
		empty++
		if empty >= maxEmptyReads {
			return entity.Frame{}, fmt.Errorf("%w: %s returned %d empty frames", domain.ErrFrameRead, s.origin, empty)
		}
	}

	img, err := s.toImage()
	if err != nil {
		return entity.Frame{}, fmt.Errorf("%w: %w", domain.ErrFrameRead, err)
	}
	f := entity.Frame{Index: s.next, Origin: s.origin, Image: img}
	s.next++
	return f, nil
}

func (s *Source) toImage() (image.Image, error) {
	if s.size == (image.Point{}) {
		return s.mat.ToImage()
	}
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(s.mat, &resized, s.size, 0, 0, gocv.InterpolationLinear)
	return resized.ToImage()
}

// Close releases the capture device and the frame buffer.
func (s *Source) Close() error {
	if err := s.mat.Close(); err != nil {
		slog.Warn("failed to release frame buffer", "error", err)
	}
	return s.cap.Close()
}
