package usecase

import (
	"context"
	"fmt"
	"image"

	"emblem_backend/internal/feature/emblem/domain"
	"emblem_backend/internal/feature/emblem/domain/entity"
)

// SliceSource はメモリ上の画像列をフレームとして順に返します。
type SliceSource struct {
	images  []image.Image
	origins []string
	next    int
}

// NewImageSource は1枚の静止画を返すソースを生成します。
func NewImageSource(origin string, img image.Image) *SliceSource {
	return NewSliceSource([]image.Image{img}, []string{origin})
}

// NewSliceSource は画像列を返すソースを生成します。origins は省略できます。
func NewSliceSource(images []image.Image, origins []string) *SliceSource {
	return &SliceSource{images: images, origins: origins}
}

// Next は次のフレームを返します。終端では domain.ErrEndOfStream を返します。
func (s *SliceSource) Next(ctx context.Context) (entity.Frame, error) {
	if s.next >= len(s.images) {
		return entity.Frame{}, domain.ErrEndOfStream
	}
	i := s.next
	s.next++

	var origin string
	if i < len(s.origins) {
		origin = s.origins[i]
	}
	return entity.Frame{Index: i, Origin: origin, Image: s.images[i]}, nil
}

// Close は何もしません。
func (s *SliceSource) Close() error { return nil }

// ImageFetcher はWebページ内の画像URLを列挙し、画像を取得するインターフェースです。
type ImageFetcher interface {
	ImageURLs(ctx context.Context, pageURL string) ([]string, error)
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)
}

// RemoteImageSource はWebページから抽出した画像を1枚ずつフレームとして返します。
// 1枚の取得失敗は domain.ErrFrameUnavailable として返し、列は継続します。
type RemoteImageSource struct {
	fetcher ImageFetcher
	urls    []string
	next    int
}

// NewRemoteImageSource はページを読み込んで画像URLを抽出します。ページ自体の読み込み失敗はエラーです。
func NewRemoteImageSource(ctx context.Context, fetcher ImageFetcher, pageURL string) (*RemoteImageSource, error) {
	urls, err := fetcher.ImageURLs(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %q: %w", pageURL, err)
	}
	return &RemoteImageSource{fetcher: fetcher, urls: urls}, nil
}

// Len は抽出した画像URLの件数を返します。
func (s *RemoteImageSource) Len() int {
	return len(s.urls)
}

// Next は次の画像を取得します。失敗時も Index と Origin を埋めたフレームを返します。
func (s *RemoteImageSource) Next(ctx context.Context) (entity.Frame, error) {
	if s.next >= len(s.urls) {
		return entity.Frame{}, domain.ErrEndOfStream
	}
	i := s.next
	s.next++

	frame := entity.Frame{Index: i, Origin: s.urls[i]}
	img, err := s.fetcher.FetchImage(ctx, s.urls[i])
	if err != nil {
		return frame, fmt.Errorf("%w: %w", domain.ErrFrameUnavailable, err)
	}
	frame.Image = img
	return frame, nil
}

// Close は何もしません。
func (s *RemoteImageSource) Close() error { return nil }
