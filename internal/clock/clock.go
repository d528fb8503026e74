// Package clock はタイマー駆動の状態遷移をテスト可能にするための時計抽象を提供する。
// セッションマネージャーのエラー自動クリアやゲームのフィードバック/祝福タイマーなど、
// 固定遅延のスケジュールはすべてこのインターフェース経由で行う。
package clock

import "time"

// Timer はスケジュール済みの処理を表す。
// Stopは発火前であれば処理をキャンセルしtrueを返す。
type Timer interface {
	Stop() bool
}

// Clock は現在時刻の取得と遅延実行のスケジュールを提供する。
type Clock interface {
	// Now は現在時刻を返す。
	Now() time.Time
	// AfterFunc はd経過後にfを実行するタイマーをスケジュールする。
	AfterFunc(d time.Duration, f func()) Timer
}

// realClock はtimeパッケージをそのまま使用するClock実装。
type realClock struct{}

// New は実時間ベースのClockを返す。
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
