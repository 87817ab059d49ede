package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// retryPolicy は起動時のストア接続を再試行する方針。
// コンテナ構成ではストアがAPIより遅れて起動することがある。
type retryPolicy struct {
	attempts       int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// defaultConnectRetry は初回1秒、2倍ずつ増加、最大8秒で5回まで試行する。
var defaultConnectRetry = retryPolicy{
	attempts:       5,
	initialBackoff: time.Second,
	maxBackoff:     8 * time.Second,
}

// backoff は失敗回数に基づいて指数バックオフ遅延を計算する。
func (p retryPolicy) backoff(failures int) time.Duration {
	delay := p.initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > p.maxBackoff {
			return p.maxBackoff
		}
	}
	return delay
}

// do はfnが成功するか試行回数に達するまで再試行する。最後のエラーを返す。
func (p retryPolicy) do(ctx context.Context, what string, fn func(ctx context.Context) error) error {
	attempts := p.attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		delay := p.backoff(i)
		slog.Warn("store connection failed, retrying",
			slog.String("store", what),
			slog.Int("attempt", i+1),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(delay):
		}
	}
	return err
}
