// Package statspoll は選択中プロジェクトの統計をバックグラウンドで
// ポーリングし、プロジェクトストアに反映するジョブを提供する。
package statspoll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/labelplay/internal/model"
	"github.com/hitoshi/labelplay/internal/project"
)

// DefaultInterval はダッシュボード統計のポーリング間隔。
const DefaultInterval = 10 * time.Second

// StatsSource はプロジェクト統計の取得インターフェース。
type StatsSource interface {
	// Dashboard は指定プロジェクトの集計統計を取得する。
	Dashboard(ctx context.Context, projectID string) (*model.DashboardStats, error)
}

// Poller は選択中プロジェクトの統計を定期取得し、件数と品質を
// プロジェクトストアにパッチする。
// 選択中プロジェクトが無いサイクルは何もしない。
type Poller struct {
	source StatsSource
	store  *project.Store
	logger *slog.Logger
}

// NewPoller はPollerの新しいインスタンスを生成する。
func NewPoller(source StatsSource, store *project.Store, logger *slog.Logger) *Poller {
	return &Poller{
		source: source,
		store:  store,
		logger: logger,
	}
}

// Start は指定間隔のティッカーでポーラーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("統計ポーラーを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("統計ポーリングに失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("統計ポーラーを停止しました")
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				p.logger.Error("統計ポーリングに失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は選択中プロジェクトの統計を1回取得してストアに反映する。
func (p *Poller) RunOnce(ctx context.Context) error {
	selected := p.store.Selected()
	if selected == nil {
		return nil
	}

	stats, err := p.source.Dashboard(ctx, selected.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch dashboard stats: %w", err)
	}

	p.store.Patch(selected.ID, model.ProjectPatch{
		TotalItems:   &stats.TotalItems,
		LabeledItems: &stats.LabeledItems,
		Quality:      &stats.Quality,
	})

	p.logger.Info("統計を更新しました",
		slog.String("project_id", selected.ID),
		slog.Int("total_items", stats.TotalItems),
		slog.Int("labeled_items", stats.LabeledItems),
	)

	return nil
}
