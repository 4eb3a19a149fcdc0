package usecase

import (
	"image"
	"image/draw"

	"emblem_backend/internal/feature/emblem/domain/entity"
)

// Crops は各検出領域を切り出した画像を検出順に返します。
// 画像範囲と交差しない領域は nil になります。元画像は変更しません。
func Crops(img image.Image, detections []entity.Detection) []image.Image {
	out := make([]image.Image, len(detections))
	for i, d := range detections {
		r := d.Box.Rect().Intersect(img.Bounds())
		if r.Empty() {
			continue
		}
		dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
		draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
		out[i] = dst
	}
	return out
}
