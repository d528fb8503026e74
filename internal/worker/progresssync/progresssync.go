// Package progresssync はローカルのゲーム進捗をプロフィールAPIへ
// 定期的に同期するジョブを提供する。
package progresssync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/labelplay/internal/game"
	"github.com/hitoshi/labelplay/internal/model"
)

// DefaultInterval は進捗同期の実行間隔。
const DefaultInterval = 30 * time.Second

// ProgressSource はローカル進捗の読み取りインターフェース。
type ProgressSource interface {
	Counters() game.Progress
}

// ProfileSink はプロフィールの部分更新インターフェース。
type ProfileSink interface {
	UpdateMe(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error)
}

// Syncer はローカル進捗をプロフィールへ定期同期する。
// 前回送信から変化が無いサイクルはリクエストを送らない。
type Syncer struct {
	source ProgressSource
	sink   ProfileSink
	logger *slog.Logger

	lastSent *game.Progress
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
func NewSyncer(source ProgressSource, sink ProfileSink, logger *slog.Logger) *Syncer {
	return &Syncer{
		source: source,
		sink:   sink,
		logger: logger,
	}
}

// Start は指定間隔のティッカーで同期を起動する。
// コンテキストがキャンセルされるまで実行を継続し、停止直前に最終同期を試みる。
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("進捗同期を開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			// 停止時はキャンセル済みコンテキストでは送れないため短い猶予を設ける
			flushCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := s.RunOnce(flushCtx); err != nil {
				s.logger.Error("最終進捗同期に失敗しました",
					slog.String("error", err.Error()),
				)
			}
			cancel()
			s.logger.Info("進捗同期を停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("進捗同期に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はローカル進捗を1回プロフィールへ送信する。
// 前回送信時と同じ値の場合は送信をスキップする。
func (s *Syncer) RunOnce(ctx context.Context) error {
	current := s.source.Counters()
	if s.lastSent != nil && *s.lastSent == current {
		return nil
	}

	_, err := s.sink.UpdateMe(ctx, model.ProfilePatch{
		Score:          &current.Score,
		TasksCompleted: &current.TasksCompleted,
		BestStreak:     &current.BestStreak,
	})
	if err != nil {
		return fmt.Errorf("failed to sync progress: %w", err)
	}

	s.lastSent = &current
	s.logger.Info("進捗を同期しました",
		slog.Int("score", current.Score),
		slog.Int("tasks_completed", current.TasksCompleted),
		slog.Int("best_streak", current.BestStreak),
	)

	return nil
}
