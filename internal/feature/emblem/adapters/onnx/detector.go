// Package onnx runs a YOLO emblem detector through ONNX Runtime.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/nfnt/resize"
	ort "github.com/yalue/onnxruntime_go"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

const (
	DefaultInputSize = 640
	DefaultIoU       = 0.45

	// padValue is the gray used by YOLO letterboxing (114/255).
	padValue = float32(114) / 255
)

// Config holds the model location and inference thresholds.
type Config struct {
	ModelPath   string
	LibraryPath string   // path to the onnxruntime shared library, empty uses the loader default
	Classes     []string // class id to raw label
	InputSize   int
	Confidence  float32 // optional score floor, zero passes every scored anchor to NMS
	IoU         float32
	Threads     int
}

// Detector is safe for concurrent use. Calls are serialized because the
// input and output tensors are bound to the session once.
type Detector struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	layout  outputLayout
	classes []string
	conf    float32
	iou     float32
}

var _ usecase.Detector = (*Detector)(nil)

var initMu sync.Mutex

// NewDetector loads the model and allocates the session tensors.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found at %s: %w", cfg.ModelPath, err)
	}
	if len(cfg.Classes) == 0 {
		return nil, errors.New("class names are required")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = DefaultInputSize
	}
	if cfg.Confidence < 0 {
		cfg.Confidence = 0
	}
	if cfg.IoU <= 0 {
		cfg.IoU = DefaultIoU
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	size := int64(cfg.InputSize)
	layout := outputLayout{classes: len(cfg.Classes), anchors: anchorCount(cfg.InputSize), inputSize: cfg.InputSize}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, size, size))
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+layout.classes), int64(layout.anchors)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session options: %w", err)
	}
	defer options.Destroy()
	if cfg.Threads > 0 {
		if err := options.SetIntraOpNumThreads(cfg.Threads); err != nil {
			slog.Warn("failed to set intra op threads", "threads", cfg.Threads, "error", err)
		}
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("error creating ORT session: %w", err)
	}

	slog.Info("onnx detector loaded",
		"model", cfg.ModelPath,
		"classes", layout.classes,
		"input_size", cfg.InputSize,
		"confidence", cfg.Confidence,
	)

	return &Detector{
		session: session,
		input:   input,
		output:  output,
		layout:  layout,
		classes: cfg.Classes,
		conf:    cfg.Confidence,
		iou:     cfg.IoU,
	}, nil
}

func initEnvironment(libPath string) error {
	initMu.Lock()
	defer initMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		if _, err := os.Stat(libPath); err != nil {
			return fmt.Errorf("ONNX Runtime library not found at %s: %w", libPath, err)
		}
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("error initializing ORT environment: %w", err)
	}
	return nil
}

// anchorCount is the number of prediction cells over the 8, 16 and 32 strides.
func anchorCount(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// Detect runs the model on img and returns detections in original pixel coordinates.
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]entity.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty image", domain.ErrModelInference)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	lb, err := prepareInput(img, d.input.GetData(), d.layout.inputSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelInference, err)
	}
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrModelInference, err)
	}

	raw := decode(d.output.GetData(), d.layout, d.classes, lb, d.conf)
	dets := nms(raw, d.iou)
	for i := range dets {
		dets[i].Box.X1 += float32(b.Min.X)
		dets[i].Box.X2 += float32(b.Min.X)
		dets[i].Box.Y1 += float32(b.Min.Y)
		dets[i].Box.Y2 += float32(b.Min.Y)
	}
	return dets, nil
}

// Close releases the session and its tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	if d.session != nil {
		errs = append(errs, d.session.Destroy())
	}
	if d.input != nil {
		errs = append(errs, d.input.Destroy())
	}
	if d.output != nil {
		errs = append(errs, d.output.Destroy())
	}
	return errors.Join(errs...)
}

// letterbox maps model input coordinates back to the source image.
type letterbox struct {
	scale         float32
	padX, padY    float32
	width, height int
}

// toImage converts a model-space point to image pixels, clamped to the image.
func (l letterbox) toImage(x, y float32) (float32, float32) {
	x = (x - l.padX) / l.scale
	y = (y - l.padY) / l.scale
	return clamp(x, float32(l.width)), clamp(y, float32(l.height))
}

func clamp(v, hi float32) float32 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}

// prepareInput letterboxes img into a size x size square, keeping the aspect
// ratio and padding with gray, and writes it as planar RGB in [0,1].
func prepareInput(img image.Image, dst []float32, size int) (letterbox, error) {
	channel := size * size
	if len(dst) < channel*3 {
		return letterbox{}, fmt.Errorf("input tensor holds %d floats, needs %d", len(dst), channel*3)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return letterbox{}, fmt.Errorf("empty image %dx%d", w, h)
	}

	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	nw := max(1, min(size, int(math.Round(float64(w)*scale))))
	nh := max(1, min(size, int(math.Round(float64(h)*scale))))
	padX := (size - nw) / 2
	padY := (size - nh) / 2

	for i := range dst[:channel*3] {
		dst[i] = padValue
	}
	red := dst[0:channel]
	green := dst[channel : channel*2]
	blue := dst[channel*2 : channel*3]

	resized := resize.Resize(uint(nw), uint(nh), img, resize.Lanczos3)
	rb := resized.Bounds()

	for y := 0; y < nh; y++ {
		row := (y + padY) * size
		for x := 0; x < nw; x++ {
			r, g, bl, _ := resized.At(rb.Min.X+x, rb.Min.Y+y).RGBA()
			i := row + x + padX
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(bl>>8) / 255.0
		}
	}
	return letterbox{
		scale:  float32(scale),
		padX:   float32(padX),
		padY:   float32(padY),
		width:  w,
		height: h,
	}, nil
}
