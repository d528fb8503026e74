// Package game はプレイヤーアプリのスコア/ストリーク進行を管理する。
// 回答の正誤に応じてカウンターを更新し、フィードバック表示や
// ストリークボーナスのセレブレーションをタイマーで制御する。
package game

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/labelplay/internal/clock"
	"github.com/hitoshi/labelplay/internal/model"
)

const (
	// pointsPerCorrect は正解1問あたりの基本スコア。
	pointsPerCorrect = 10
	// streakBonusPoints はストリークが5の倍数に達した際の追加スコア。
	streakBonusPoints = 50
	// streakBonusEvery はボーナスが発火するストリーク間隔。
	streakBonusEvery = 5

	// feedbackDuration はフィードバックパルスの表示時間。
	feedbackDuration = 800 * time.Millisecond
	// celebrationDelay はフィードバック表示からセレブレーション表示までの遅延。
	celebrationDelay = 800 * time.Millisecond
	// celebrationDuration はセレブレーションの表示時間。
	celebrationDuration = 3 * time.Second
	// advanceDelay は回答から次タスクへ進むまでの遅延。
	advanceDelay = 1500 * time.Millisecond
)

// Phase はタスク1問ぶんの回答サイクルの状態。
type Phase int

const (
	// PhaseIdle は回答待ちの状態。
	PhaseIdle Phase = iota
	// PhaseFeedbackShown は回答済みでフィードバック表示中の状態。
	// この間の再回答は無視される。
	PhaseFeedbackShown
)

// FeedbackKind はフィードバックパルスの種別。
type FeedbackKind string

const (
	FeedbackCorrect   FeedbackKind = "correct"
	FeedbackIncorrect FeedbackKind = "incorrect"
)

// Feedback は回答直後に表示される一時的なパルス。
type Feedback struct {
	Kind    FeedbackKind
	Visible bool
}

// Progress はゲームの進行カウンター。
// streakが不正解で0に戻る以外、値が減ることはない。
type Progress struct {
	Score          int
	Streak         int
	BestStreak     int
	TasksCompleted int
}

// Judge は回答の正誤を判定する。
// 本番では外部APIが判定するが、このコアには注入された判定器しか見えない。
type Judge interface {
	Judge(task model.Task, choice string) bool
}

// Snapshot はリスナーに配信されるゲーム状態の静的コピー。
type Snapshot struct {
	Phase       Phase
	Progress    Progress
	Feedback    Feedback
	Celebrating bool
	Task        model.Task
	DailyGoal   int
}

// Machine はゲーム進行状態の唯一の所有者。
// プレイヤーアプリのインスタンスごとに1つ生成する。
// プロセス内のみの状態で、再起動でリセットされる。カウンターの永続化は
// 別コンポーネントが定期的にスナップショットを送信して行う。
type Machine struct {
	judge     Judge
	clk       clock.Clock
	dailyGoal int

	mu           sync.Mutex
	tasks        []model.Task
	taskIndex    int
	phase        Phase
	progress     Progress
	feedback     Feedback
	celebrating  bool
	listeners    map[int]func(Snapshot)
	nextListener int
	closed       bool

	feedbackTimer      clock.Timer
	advanceTimer       clock.Timer
	celebrationTimer   clock.Timer
	celebrationEndTime clock.Timer
}

// NewMachine はMachineを生成する。clkがnilの場合は実時間の時計を使用する。
// tasksは空であってはならない。
func NewMachine(tasks []model.Task, judge Judge, dailyGoal int, clk clock.Clock) *Machine {
	if clk == nil {
		clk = clock.New()
	}
	return &Machine{
		judge:     judge,
		clk:       clk,
		dailyGoal: dailyGoal,
		tasks:     tasks,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Close は保留中のタイマーをすべてキャンセルする。
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimersLocked()
}

// Subscribe は状態変化のリスナーを登録する。戻り値で解除する。
func (m *Machine) Subscribe(fn func(Snapshot)) func() {
	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

// Snapshot は現在のゲーム状態のコピーを返す。
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// CurrentTask は現在表示中のタスクを返す。
func (m *Machine) CurrentTask() model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tasks[m.taskIndex]
}

// SubmitAnswer は現在のタスクへの回答を処理する。
// フィードバック表示中の再回答は無視され、正誤判定の結果を返さない。
// 戻り値は回答が受理されたかどうか。
func (m *Machine) SubmitAnswer(choice string) bool {
	m.mu.Lock()
	if m.closed || m.phase != PhaseIdle {
		m.mu.Unlock()
		return false
	}

	task := m.tasks[m.taskIndex]
	correct := m.judge.Judge(task, choice)

	m.phase = PhaseFeedbackShown
	if correct {
		m.progress.Score += pointsPerCorrect
		m.progress.Streak++
		m.progress.TasksCompleted++
		if m.progress.Streak > m.progress.BestStreak {
			m.progress.BestStreak = m.progress.Streak
		}
		m.feedback = Feedback{Kind: FeedbackCorrect, Visible: true}

		// ボーナスはインクリメント後のストリークが正の5の倍数のときだけ発火する
		if m.progress.Streak > 0 && m.progress.Streak%streakBonusEvery == 0 {
			m.progress.Score += streakBonusPoints
			m.scheduleCelebrationLocked()
			slog.Info("streak bonus awarded",
				slog.Int("streak", m.progress.Streak),
				slog.Int("score", m.progress.Score),
			)
		}
	} else {
		m.progress.Streak = 0
		m.feedback = Feedback{Kind: FeedbackIncorrect, Visible: true}
	}

	m.feedbackTimer = m.clk.AfterFunc(feedbackDuration, m.hideFeedback)
	m.advanceTimer = m.clk.AfterFunc(advanceDelay, m.advanceTask)

	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
	return true
}

// ProgressPercent はデイリーゴールに対する達成率を返す。100を超えない。
func (m *Machine) ProgressPercent() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dailyGoal <= 0 {
		return 0
	}
	pct := float64(m.progress.TasksCompleted) / float64(m.dailyGoal) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Counters は永続化用の進行カウンターのコピーを返す。
func (m *Machine) Counters() Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress
}

// scheduleCelebrationLocked はセレブレーションの表示/消去タイマーを登録する。
// フィードバックパルスが一定時間見えた後に表示され、一定時間後に自動で消える。
func (m *Machine) scheduleCelebrationLocked() {
	if m.celebrationTimer != nil {
		m.celebrationTimer.Stop()
	}
	if m.celebrationEndTime != nil {
		m.celebrationEndTime.Stop()
	}
	m.celebrationTimer = m.clk.AfterFunc(celebrationDelay, m.showCelebration)
	m.celebrationEndTime = m.clk.AfterFunc(celebrationDelay+celebrationDuration, m.hideCelebration)
}

func (m *Machine) showCelebration() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.celebrating = true
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

func (m *Machine) hideCelebration() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.celebrating = false
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

func (m *Machine) hideFeedback() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.feedback.Visible = false
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

// advanceTask はフィードバック状態をクリアして次のタスクへ進む。
// タスクプールは巡回インデックスで、末尾の次は先頭に戻る。
func (m *Machine) advanceTask() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseIdle
	m.feedback = Feedback{}
	m.taskIndex = (m.taskIndex + 1) % len(m.tasks)
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

func (m *Machine) stopTimersLocked() {
	for _, t := range []clock.Timer{m.feedbackTimer, m.advanceTimer, m.celebrationTimer, m.celebrationEndTime} {
		if t != nil {
			t.Stop()
		}
	}
	m.feedbackTimer = nil
	m.advanceTimer = nil
	m.celebrationTimer = nil
	m.celebrationEndTime = nil
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:       m.phase,
		Progress:    m.progress,
		Feedback:    m.feedback,
		Celebrating: m.celebrating,
		Task:        m.tasks[m.taskIndex],
		DailyGoal:   m.dailyGoal,
	}
}

// notifyLocked はロック保持中にスナップショットとリスナーのコピーを取り、
// ロック解放後に呼び出すための配信クロージャを返す。
func (m *Machine) notifyLocked() func() {
	snapshot := m.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	return func() {
		for _, fn := range listeners {
			fn(snapshot)
		}
	}
}
