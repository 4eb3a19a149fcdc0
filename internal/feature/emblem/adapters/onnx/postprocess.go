package onnx

import (
	"sort"
	"strconv"

	"emblem_backend/internal/feature/emblem/domain/entity"
)

// outputLayout describes a YOLOv8 style output tensor of shape (1, 4+classes, anchors).
type outputLayout struct {
	classes   int
	anchors   int
	inputSize int
}

// decode picks the best class per anchor and maps boxes from letterboxed model
// space back to the source image. Anchors without a positive score carry no
// detection. minConfidence zero keeps every other anchor.
func decode(output []float32, layout outputLayout, labels []string, lb letterbox, minConfidence float32) []entity.Detection {
	n := layout.anchors
	if len(output) < n*(4+layout.classes) {
		return nil
	}

	out := make([]entity.Detection, 0, 16)
	for idx := 0; idx < n; idx++ {
		classID := -1
		best := float32(-1e9)
		for col := 0; col < layout.classes; col++ {
			if p := output[n*(col+4)+idx]; p > best {
				best = p
				classID = col
			}
		}
		if classID < 0 || best <= 0 || best < minConfidence {
			continue
		}

		xc, yc := output[idx], output[n+idx]
		w, h := output[2*n+idx], output[3*n+idx]
		x1, y1 := lb.toImage(xc-w/2, yc-h/2)
		x2, y2 := lb.toImage(xc+w/2, yc+h/2)
		out = append(out, entity.Detection{
			Label:      className(labels, classID),
			Confidence: best,
			Box:        entity.BoundingBox{X1: x1, Y1: y1, X2: x2, Y2: y2},
		})
	}
	return out
}

// nms keeps the most confident box of every overlapping group. The result is
// ordered by descending confidence.
func nms(detections []entity.Detection, threshold float32) []entity.Detection {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})

	kept := make([]entity.Detection, 0, len(detections))
	for _, candidate := range detections {
		overlaps := false
		for _, existing := range kept {
			if iou(candidate.Box, existing.Box) > threshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, candidate)
		}
	}
	return kept
}

// iou works on integral rectangles, which is precise enough for overlap suppression.
func iou(a, b entity.BoundingBox) float32 {
	ra, rb := a.Rect(), b.Rect()
	inter := ra.Intersect(rb).Size()
	interArea := float32(inter.X * inter.Y)
	union := float32(area(ra.Size().X, ra.Size().Y)+area(rb.Size().X, rb.Size().Y)) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}

func area(w, h int) int { return w * h }

func className(labels []string, id int) string {
	if id >= 0 && id < len(labels) && labels[id] != "" {
		return labels[id]
	}
	return "class_" + strconv.Itoa(id)
}
