// Package fakeapi はバックエンドREST APIのインプロセス実装を提供する。
// 開発とテストで本物のバックエンドの代わりに使用する。
// 全データはインメモリで、プロセス終了とともに消える。
package fakeapi

import (
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/labelplay/internal/model"
)

// ownedProject は所有者情報付きのプロジェクト。
type ownedProject struct {
	project model.Project
	ownerID string
}

// Store はプロジェクト/プロフィール/データセットのインメモリストア。
// プロジェクトは所有者スコープで、他ユーザーのプロジェクトは見えない。
type Store struct {
	mu       sync.Mutex
	projects map[string]*ownedProject
	profiles map[string]*model.Profile
	tasks    map[string][]model.Task // projectID -> タスク定義
	datasets map[string][]byte       // projectID -> アップロード済みデータセット
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		projects: make(map[string]*ownedProject),
		profiles: make(map[string]*model.Profile),
		tasks:    make(map[string][]model.Task),
		datasets: make(map[string][]byte),
	}
}

// ListProjects は所有者のプロジェクトを作成日時の新しい順で返す。
func (s *Store) ListProjects(ownerID string) []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	var projects []model.Project
	for _, op := range s.projects {
		if op.ownerID == ownerID {
			projects = append(projects, op.project)
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects
}

// GetProject は所有者のプロジェクトを1件返す。見つからない場合はnil。
// 他ユーザーのプロジェクトは存在しないものとして扱う。
func (s *Store) GetProject(ownerID, id string) *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.projects[id]
	if !ok || op.ownerID != ownerID {
		return nil
	}
	copied := op.project
	return &copied
}

// CreateProject はプロジェクトを保存する。
func (s *Store) CreateProject(ownerID string, p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = &ownedProject{project: p, ownerID: ownerID}
}

// PatchProject はパッチを適用して更新後のプロジェクトを返す。
func (s *Store) PatchProject(ownerID, id string, patch model.ProjectPatch) *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.projects[id]
	if !ok || op.ownerID != ownerID {
		return nil
	}
	patch.Apply(&op.project)
	copied := op.project
	return &copied
}

// DeleteProject はプロジェクトと関連データを削除する。
func (s *Store) DeleteProject(ownerID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.projects[id]
	if !ok || op.ownerID != ownerID {
		return false
	}
	delete(s.projects, id)
	delete(s.tasks, id)
	delete(s.datasets, id)
	return true
}

// AddTask はプロジェクトにタスク定義を追加する。
func (s *Store) AddTask(projectID string, task model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[projectID] = append(s.tasks[projectID], task)
}

// SaveDataset はアップロード済みデータセットを保存し、件数を加算する。
func (s *Store) SaveDataset(projectID string, data []byte, itemCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.datasets[projectID] = data
	if op, ok := s.projects[projectID]; ok {
		op.project.TotalItems += itemCount
	}
}

// Dataset は保存済みデータセットを返す。未保存の場合はnil。
func (s *Store) Dataset(projectID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.datasets[projectID]
}

// Profile はユーザーのプロフィールを返す。初回アクセス時に作成する。
func (s *Store) Profile(userID string) model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.profileLocked(userID)
}

// PatchProfile はパッチを適用して更新後のプロフィールを返す。
func (s *Store) PatchProfile(userID string, patch model.ProfilePatch) model.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profileLocked(userID)
	if patch.DisplayName != nil {
		p.DisplayName = *patch.DisplayName
	}
	if patch.Score != nil {
		p.Score = *patch.Score
	}
	if patch.TasksCompleted != nil {
		p.TasksCompleted = *patch.TasksCompleted
	}
	if patch.BestStreak != nil {
		p.BestStreak = *patch.BestStreak
	}
	p.UpdatedAt = time.Now().UTC()
	return *p
}

func (s *Store) profileLocked(userID string) *model.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		now := time.Now().UTC()
		p = &model.Profile{
			ID:        userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		s.profiles[userID] = p
	}
	return p
}
