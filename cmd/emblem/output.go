package main

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"

	"emblem_backend/internal/feature/emblem/domain/entity"
	"emblem_backend/internal/feature/emblem/usecase"
)

// frameSink is the optional preview window.
type frameSink interface {
	usecase.Sink
	Close() error
}

// consoleSink prints each outcome as a text block and forwards frames to the preview window.
type consoleSink struct {
	w      io.Writer
	window frameSink
}

func newConsoleSink(w io.Writer, window frameSink) *consoleSink {
	return &consoleSink{w: w, window: window}
}

func (s *consoleSink) EmitFrame(ctx context.Context, frame entity.AnnotatedFrame) error {
	if s.window == nil {
		return nil
	}
	return s.window.EmitFrame(ctx, frame)
}

func (s *consoleSink) EmitOutcome(ctx context.Context, outcome entity.Outcome) error {
	block := usecase.FormatOutcome(outcome)
	if outcome.Origin != "" && outcome.Kind != entity.OutcomeEnriched {
		block = outcome.Origin + ": " + block
	}
	_, err := fmt.Fprintf(s.w, "%s\n\n", block)
	return err
}

func (s *consoleSink) Close() {
	if s.window != nil {
		_ = s.window.Close()
	}
}

func printSeen(w io.Writer, seen []string) {
	if len(seen) == 0 {
		fmt.Fprintln(w, usecase.NoEmblemText)
		return
	}
	fmt.Fprintf(w, "检测到的大学：%s\n", strings.Join(seen, "、"))
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// saveImage writes PNG for .png paths and JPEG otherwise.
func saveImage(path string, img image.Image) error {
	if img == nil {
		return fmt.Errorf("no image to write to %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".png") {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// saveCrops writes every detection box to dir/image_logo_{i}.jpg, numbered in detection order.
func saveCrops(dir string, img image.Image, detections []entity.Detection) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var paths []string
	for i, crop := range usecase.Crops(img, detections) {
		if crop == nil {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("image_logo_%d.jpg", i))
		if err := saveImage(path, crop); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
