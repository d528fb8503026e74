// Package model はドメインモデルを定義する。
package model

import "time"

// ProjectStatus はラベリングプロジェクトの状態を表す。
type ProjectStatus string

const (
	// ProjectStatusActive はラベリング受付中のプロジェクトを示す。
	ProjectStatusActive ProjectStatus = "active"
	// ProjectStatusCompleted はラベリングが完了したプロジェクトを示す。
	ProjectStatusCompleted ProjectStatus = "completed"
	// ProjectStatusPaused は一時停止中のプロジェクトを示す。
	ProjectStatusPaused ProjectStatus = "paused"
	// ProjectStatusDraft はタスク定義前の下書きプロジェクトを示す。
	ProjectStatusDraft ProjectStatus = "draft"
)

// ProjectType はプロジェクトのラベリング種別を表す。
type ProjectType string

const (
	// ProjectTypeImageClassification は画像分類プロジェクトを示す。
	ProjectTypeImageClassification ProjectType = "image-classification"
	// ProjectTypeTextCategorization はテキスト分類プロジェクトを示す。
	ProjectTypeTextCategorization ProjectType = "text-categorization"
	// ProjectTypeSentimentAnalysis は感情分析プロジェクトを示す。
	ProjectTypeSentimentAnalysis ProjectType = "sentiment-analysis"
	// ProjectTypeCustom はカスタムプロジェクトを示す。
	ProjectTypeCustom ProjectType = "custom"
)

// Project はラベリングプロジェクトのクライアント側スナップショットを表す。
// 一覧と選択中プロジェクトの両方で同じ構造体を使用する。
// 不変条件: LabeledItems <= TotalItems。
type Project struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Type         ProjectType   `json:"type"`
	Icon         string        `json:"icon"`
	Status       ProjectStatus `json:"status"`
	TotalItems   int           `json:"total_items"`
	LabeledItems int           `json:"labeled_items"`
	Quality      float64       `json:"quality"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ProjectPatch はプロジェクトの部分更新を表す。
// nilフィールドは変更なしを意味する。
type ProjectPatch struct {
	Name         *string        `json:"name,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Icon         *string        `json:"icon,omitempty"`
	Status       *ProjectStatus `json:"status,omitempty"`
	TotalItems   *int           `json:"total_items,omitempty"`
	LabeledItems *int           `json:"labeled_items,omitempty"`
	Quality      *float64       `json:"quality,omitempty"`
}

// Apply はパッチをプロジェクトに浅くマージする。
// 一覧エントリと選択中コピーの両方に同じパッチを適用するために使用する。
func (p *ProjectPatch) Apply(target *Project) {
	if p.Name != nil {
		target.Name = *p.Name
	}
	if p.Description != nil {
		target.Description = *p.Description
	}
	if p.Icon != nil {
		target.Icon = *p.Icon
	}
	if p.Status != nil {
		target.Status = *p.Status
	}
	if p.TotalItems != nil {
		target.TotalItems = *p.TotalItems
	}
	if p.LabeledItems != nil {
		target.LabeledItems = *p.LabeledItems
	}
	if p.Quality != nil {
		target.Quality = *p.Quality
	}
}

// DashboardStats はプロジェクトの集計統計を表す。
// GET /api/dashboard/{id} のレスポンスに対応する。
type DashboardStats struct {
	ProjectID     string    `json:"project_id"`
	TotalItems    int       `json:"total_items"`
	LabeledItems  int       `json:"labeled_items"`
	Quality       float64   `json:"quality"`
	ActivePlayers int       `json:"active_players"`
	UpdatedAt     time.Time `json:"updated_at"`
}
