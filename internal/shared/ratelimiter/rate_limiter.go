package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter は外部API呼び出しの頻度を制限するインターフェースです。
type Limiter interface {
	Wait(ctx context.Context) error
}

// RateLimiter は interval ごとに limit 回まで呼び出しを通す固定ウィンドウ方式のリミッターです。
// 複数のリクエストから共有されるため、カウンタはミューテックスで保護します。
type RateLimiter struct {
	mu          sync.Mutex
	limit       int           // interval あたりの上限
	interval    time.Duration // どの単位でリセットするか
	count       int
	windowStart time.Time

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

var _ Limiter = (*RateLimiter)(nil)

// NewRateLimiter は新しいRateLimiterのインスタンスを生成します。
// limit が0以下の場合は制限しません。
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:       limit,
		interval:    interval,
		windowStart: time.Now(),
		now:         time.Now,
		after:       time.After,
	}
}

// Wait は現在のウィンドウに空きがあれば即座に戻り、上限に達していれば次のウィンドウまで待機します。
// 待機中に ctx がキャンセルされた場合は ctx.Err() を返し、枠は消費しません。
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.limit <= 0 {
		return nil
	}

	for {
		wait := rl.reserve()
		if wait <= 0 {
			return nil
		}
		slog.Info("rate limit reached, waiting", "limit", rl.limit, "wait", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rl.after(wait):
		}
	}
}

// reserve は枠を1つ確保できれば0を、できなければ次のウィンドウまでの残り時間を返します。
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.windowStart) >= rl.interval {
		rl.count = 0
		rl.windowStart = now
	}
	if rl.count < rl.limit {
		rl.count++
		return 0
	}
	return rl.interval - now.Sub(rl.windowStart)
}
