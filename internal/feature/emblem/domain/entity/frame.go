// Package entity はemblemフィーチャーのドメインモデルを定義します。
package entity

import "image"

// Frame は入力ソースから得られた1枚の画像です。生成後は変更しません。
type Frame struct {
	Index  int         // 単調増加するフレーム番号（0始まり）
	Origin string      // ファイルパス・デバイス名・URLなどの取得元
	Image  image.Image // 画素データ
}

// BoundingBox はピクセル座標系の矩形 (x1,y1)-(x2,y2) です。
type BoundingBox struct {
	X1, Y1, X2, Y2 float32
}

// Rect は整数座標に変換した矩形を返します。
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2)).Canon()
}

// Detection は検出器が返す1件の検出結果です。
type Detection struct {
	Label      string      // 検出器の生ラベル
	Confidence float32     // 信頼度スコア（0.0 ~ 1.0）
	Box        BoundingBox // 検出領域
}

// AnnotatedFrame は描画に使った検出セットとともにフレームを保持します。
// 非サンプリングフレームでは直近のサンプリングフレームの検出セットがそのまま入ります。
type AnnotatedFrame struct {
	Frame
	Detections  []Detection
	SampleIndex int         // 検出セットを算出したフレーム番号（未サンプリング時は -1）
	Image       image.Image // 描画済みのコピー（描画なしの場合は Frame.Image）
}

// Annotated は検出セットが描画されているかどうかを返します。
func (a AnnotatedFrame) Annotated() bool {
	return a.SampleIndex >= 0
}
