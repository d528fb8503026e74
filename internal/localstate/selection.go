package localstate

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hitoshi/labelplay/internal/model"
	"github.com/hitoshi/labelplay/internal/project"
)

// selectedProjectKey は選択中プロジェクトを保存するスロットのキー。
const selectedProjectKey = "selected_project"

// SelectionSlot は選択中プロジェクトの耐久スロットのSQLite実装。
// 値はJSONエンコードされたプロジェクトサマリーで、
// 選択解除時は行ごと削除する（nullマーカーは保存しない）。
type SelectionSlot struct {
	db *sql.DB
}

// NewSelectionSlot はSelectionSlotを生成する。
func NewSelectionSlot(db *sql.DB) *SelectionSlot {
	return &SelectionSlot{db: db}
}

// Save は選択中プロジェクトをJSONで保存する。既存の値は上書きする。
func (s *SelectionSlot) Save(p model.Project) error {
	encoded, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode selected project: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO kv_slots (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, selectedProjectKey, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to save selected project: %w", err)
	}
	return nil
}

// Clear は保存された選択を削除する。未保存でもエラーにしない。
func (s *SelectionSlot) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM kv_slots WHERE key = ?`, selectedProjectKey); err != nil {
		return fmt.Errorf("failed to clear selected project: %w", err)
	}
	return nil
}

// Load は保存された選択を返す。未保存の場合は(nil, nil)。
func (s *SelectionSlot) Load() (*model.Project, error) {
	var encoded string
	err := s.db.QueryRow(`SELECT value FROM kv_slots WHERE key = ?`, selectedProjectKey).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load selected project: %w", err)
	}

	var p model.Project
	if err := json.Unmarshal([]byte(encoded), &p); err != nil {
		return nil, fmt.Errorf("failed to decode selected project: %w", err)
	}
	return &p, nil
}

// compile-time interface check
var _ project.SelectionStore = (*SelectionSlot)(nil)
