// Package project はコントリビューターアプリのプロジェクト一覧と
// 選択状態を管理する。一覧は新着順のインメモリリストで、選択中プロジェクトは
// ページリロード後も残るよう耐久スロットに永続化される。
package project

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/labelplay/internal/model"
)

// SelectionStore は選択中プロジェクトの耐久スロットを抽象化する。
// 選択解除時はnullマーカーを残さずキーごと削除する。
type SelectionStore interface {
	// Save は選択中プロジェクトを保存する。
	Save(p model.Project) error
	// Clear は保存された選択を削除する。未保存でもエラーにしない。
	Clear() error
	// Load は保存された選択を返す。未保存の場合は(nil, nil)。
	Load() (*model.Project, error)
}

// Store はプロジェクト一覧と選択状態の唯一の所有者。
// 作成/削除はAPI呼び出しの成否を待たずに一覧へ楽観的に反映され、
// 失敗時のロールバックは行わない。次回の全件フェッチで整合する。
type Store struct {
	selection SelectionStore

	mu           sync.Mutex
	projects     []model.Project
	selected     *model.Project
	listeners    map[int]func(Snapshot)
	nextListener int
}

// Snapshot はリスナーに配信されるプロジェクト状態の静的コピー。
type Snapshot struct {
	Projects []model.Project
	Selected *model.Project
}

// NewStore はStoreを生成し、永続化された選択を復元する。
// 復元の失敗は警告ログに留め、空の選択で開始する。
func NewStore(selection SelectionStore) *Store {
	s := &Store{
		selection: selection,
		listeners: make(map[int]func(Snapshot)),
	}
	if selection != nil {
		saved, err := selection.Load()
		if err != nil {
			slog.Warn("failed to restore selected project", slog.String("error", err.Error()))
		} else {
			s.selected = saved
		}
	}
	return s
}

// Subscribe は状態変化のリスナーを登録する。戻り値で解除する。
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Snapshot は現在のプロジェクト状態のコピーを返す。
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Projects は一覧のコピーを返す。
func (s *Store) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Project(nil), s.projects...)
}

// Selected は選択中プロジェクトのコピーを返す。未選択の場合はnil。
func (s *Store) Selected() *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return nil
	}
	copied := *s.selected
	return &copied
}

// ReplaceAll は一覧を丸ごと置き換える。全件フェッチ後に使用する。
// 選択中プロジェクトが新しい一覧に存在しない場合は選択をクリアする。
func (s *Store) ReplaceAll(list []model.Project) {
	s.mu.Lock()
	s.projects = append([]model.Project(nil), list...)
	if s.selected != nil && !s.containsLocked(s.selected.ID) {
		s.clearSelectionLocked()
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// Add はプロジェクトを一覧の先頭に挿入する（新着順）。
// 作成APIのレスポンスを楽観的に反映するために使用する。
func (s *Store) Add(p model.Project) {
	s.mu.Lock()
	s.projects = append([]model.Project{p}, s.projects...)
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// Remove はidのプロジェクトを一覧から除外する。
// 除外されたプロジェクトが選択中だった場合、選択も連動してクリアする。
// 選択は一覧に存在しないプロジェクトを指してはならない。
func (s *Store) Remove(id string) {
	s.mu.Lock()
	filtered := s.projects[:0]
	for _, p := range s.projects {
		if p.ID != id {
			filtered = append(filtered, p)
		}
	}
	s.projects = filtered

	if s.selected != nil && s.selected.ID == id {
		s.clearSelectionLocked()
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// Patch はidのエントリにパッチを浅くマージする。
// 選択中プロジェクトが同じidの場合、選択コピーにも同じマージを適用する。
// 一覧エントリと選択は同一エンティティの二重投影であり、パッチ後も一致する。
func (s *Store) Patch(id string, patch model.ProjectPatch) {
	s.mu.Lock()
	for i := range s.projects {
		if s.projects[i].ID == id {
			patch.Apply(&s.projects[i])
			break
		}
	}
	if s.selected != nil && s.selected.ID == id {
		patch.Apply(s.selected)
		s.persistSelectionLocked()
	}
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// Select はプロジェクトを選択し、耐久スロットに永続化する。
func (s *Store) Select(p model.Project) {
	s.mu.Lock()
	copied := p
	s.selected = &copied
	s.persistSelectionLocked()
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

// Deselect は選択をクリアし、耐久スロットのキーを削除する。
func (s *Store) Deselect() {
	s.mu.Lock()
	s.clearSelectionLocked()
	notify := s.notifyLocked()
	s.mu.Unlock()
	notify()
}

func (s *Store) containsLocked(id string) bool {
	for _, p := range s.projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) clearSelectionLocked() {
	s.selected = nil
	if s.selection == nil {
		return
	}
	if err := s.selection.Clear(); err != nil {
		slog.Warn("failed to clear persisted selection", slog.String("error", err.Error()))
	}
}

// persistSelectionLocked は選択中プロジェクトを耐久スロットに書き込む。
// 永続化の失敗はインメモリ状態を巻き戻さず、警告ログに留める。
func (s *Store) persistSelectionLocked() {
	if s.selection == nil || s.selected == nil {
		return
	}
	if err := s.selection.Save(*s.selected); err != nil {
		slog.Warn("failed to persist selected project",
			slog.String("project_id", s.selected.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Projects: append([]model.Project(nil), s.projects...),
	}
	if s.selected != nil {
		copied := *s.selected
		snap.Selected = &copied
	}
	return snap
}

// notifyLocked はロック保持中にスナップショットとリスナーのコピーを取り、
// ロック解放後に呼び出すための配信クロージャを返す。
func (s *Store) notifyLocked() func() {
	snapshot := s.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return func() {
		for _, fn := range listeners {
			fn(snapshot)
		}
	}
}
