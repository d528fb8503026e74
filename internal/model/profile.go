package model

import "time"

// Profile はユーザープロフィールを表す。
// GET/PATCH /api/users/me のレスポンスに対応し、
// プレイヤーアプリではゲーム進捗カウンターの永続化先も兼ねる。
type Profile struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	DisplayName    string    `json:"display_name"`
	Score          int       `json:"score"`
	TasksCompleted int       `json:"tasks_completed"`
	BestStreak     int       `json:"best_streak"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProfilePatch はプロフィールの部分更新を表す。
// nilフィールドは変更なしを意味する。
type ProfilePatch struct {
	DisplayName    *string `json:"display_name,omitempty"`
	Score          *int    `json:"score,omitempty"`
	TasksCompleted *int    `json:"tasks_completed,omitempty"`
	BestStreak     *int    `json:"best_streak,omitempty"`
}
