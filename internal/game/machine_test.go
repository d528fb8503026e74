package game

import (
	"testing"
	"time"

	"github.com/hitoshi/labelplay/internal/clock"
	"github.com/hitoshi/labelplay/internal/model"
)

func testTasks() []model.Task {
	return []model.Task{
		{ID: "t-1", Question: "Q1", Options: []model.TaskOption{{Label: "A"}, {Label: "B"}}},
		{ID: "t-2", Question: "Q2", Options: []model.TaskOption{{Label: "A"}, {Label: "B"}}},
		{ID: "t-3", Question: "Q3", Options: []model.TaskOption{{Label: "A"}, {Label: "B"}}},
	}
}

func newTestMachine(t *testing.T, judge Judge) (*Machine, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	m := NewMachine(testTasks(), judge, 20, clk)
	t.Cleanup(m.Close)
	return m, clk
}

// answerAndAdvance は1問回答して次タスクまで時計を進める。
func answerAndAdvance(t *testing.T, m *Machine, clk *clock.Fake) {
	t.Helper()
	if !m.SubmitAnswer("A") {
		t.Fatal("SubmitAnswer was rejected in idle phase")
	}
	clk.Advance(advanceDelay)
}

// TestMachine_CorrectAnswer_UpdatesCounters は正解時のカウンター更新を検証する。
func TestMachine_CorrectAnswer_UpdatesCounters(t *testing.T) {
	m, _ := newTestMachine(t, FixedJudge(true))

	if !m.SubmitAnswer("A") {
		t.Fatal("expected answer to be accepted")
	}

	p := m.Counters()
	if p.Score != 10 {
		t.Errorf("Score = %d, want 10", p.Score)
	}
	if p.Streak != 1 {
		t.Errorf("Streak = %d, want 1", p.Streak)
	}
	if p.TasksCompleted != 1 {
		t.Errorf("TasksCompleted = %d, want 1", p.TasksCompleted)
	}
}

// TestMachine_IncorrectAnswer_ResetsStreakOnly は不正解時にストリークだけが
// リセットされることを検証する。
func TestMachine_IncorrectAnswer_ResetsStreakOnly(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	answerAndAdvance(t, m, clk)
	answerAndAdvance(t, m, clk)

	before := m.Counters()
	if before.Streak != 2 {
		t.Fatalf("Streak = %d, want 2 before incorrect answer", before.Streak)
	}

	m.judge = FixedJudge(false)
	if !m.SubmitAnswer("B") {
		t.Fatal("expected answer to be accepted")
	}

	p := m.Counters()
	if p.Streak != 0 {
		t.Errorf("Streak = %d, want 0 after incorrect answer", p.Streak)
	}
	if p.Score != before.Score {
		t.Errorf("Score = %d, want unchanged %d", p.Score, before.Score)
	}
	if p.TasksCompleted != before.TasksCompleted {
		t.Errorf("TasksCompleted = %d, want unchanged %d", p.TasksCompleted, before.TasksCompleted)
	}
}

// TestMachine_DoubleSubmission_Ignored はフィードバック表示中の再回答が
// 無視されることを検証する。
func TestMachine_DoubleSubmission_Ignored(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	if !m.SubmitAnswer("A") {
		t.Fatal("first answer should be accepted")
	}
	if m.SubmitAnswer("B") {
		t.Error("second answer during feedback should be ignored")
	}

	p := m.Counters()
	if p.Score != 10 || p.TasksCompleted != 1 {
		t.Errorf("counters advanced by ignored answer: %+v", p)
	}

	// タスクが進めば再び受理される
	clk.Advance(advanceDelay)
	if !m.SubmitAnswer("A") {
		t.Error("answer after advancement should be accepted")
	}
}

// TestMachine_StreakBonus_FiresOnMultiplesOfFive はボーナスの発火条件を検証する。
// 4→5で発火、5→6では発火せず、9→10で再び発火する。
func TestMachine_StreakBonus_FiresOnMultiplesOfFive(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	for i := 0; i < 4; i++ {
		answerAndAdvance(t, m, clk)
	}
	if got := m.Counters().Score; got != 40 {
		t.Fatalf("Score = %d, want 40 after 4 correct answers", got)
	}

	// 4→5: 基本+10に加えてボーナス+50
	answerAndAdvance(t, m, clk)
	if got := m.Counters().Score; got != 100 {
		t.Errorf("Score = %d, want 100 after streak reached 5", got)
	}

	// 5→6: ボーナスなし
	answerAndAdvance(t, m, clk)
	if got := m.Counters().Score; got != 110 {
		t.Errorf("Score = %d, want 110 after streak reached 6", got)
	}

	for i := 0; i < 3; i++ {
		answerAndAdvance(t, m, clk)
	}
	// 9→10: 再び発火
	answerAndAdvance(t, m, clk)
	if got := m.Counters().Score; got != 200 {
		t.Errorf("Score = %d, want 200 after streak reached 10", got)
	}
}

// TestMachine_StreakResetDoesNotTriggerBonus はストリーク0がボーナスを
// 発火させないことを検証する。
func TestMachine_StreakResetDoesNotTriggerBonus(t *testing.T) {
	m, _ := newTestMachine(t, FixedJudge(false))

	m.SubmitAnswer("A")

	if m.Counters().Score != 0 {
		t.Errorf("Score = %d, want 0 (streak 0 must not count as multiple of 5)", m.Counters().Score)
	}
	if m.Snapshot().Celebrating {
		t.Error("celebration must not fire on incorrect answer")
	}
}

// TestMachine_FeedbackPulse_AutoHides はフィードバックパルスの自動消去を検証する。
func TestMachine_FeedbackPulse_AutoHides(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	m.SubmitAnswer("A")

	snap := m.Snapshot()
	if !snap.Feedback.Visible || snap.Feedback.Kind != FeedbackCorrect {
		t.Fatalf("unexpected feedback: %+v", snap.Feedback)
	}

	clk.Advance(feedbackDuration)
	if m.Snapshot().Feedback.Visible {
		t.Error("expected feedback to hide after pulse duration")
	}
}

// TestMachine_CelebrationWindow_Timing はセレブレーションの表示/消去の
// タイミングを検証する。
func TestMachine_CelebrationWindow_Timing(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	for i := 0; i < 4; i++ {
		answerAndAdvance(t, m, clk)
	}
	m.SubmitAnswer("A") // ストリーク5到達

	if m.Snapshot().Celebrating {
		t.Error("celebration must not be visible before the delay")
	}

	clk.Advance(celebrationDelay)
	if !m.Snapshot().Celebrating {
		t.Fatal("expected celebration to show after delay")
	}

	clk.Advance(celebrationDuration - time.Millisecond)
	if !m.Snapshot().Celebrating {
		t.Error("celebration hidden too early")
	}

	clk.Advance(time.Millisecond)
	if m.Snapshot().Celebrating {
		t.Error("expected celebration to self-clear after its window")
	}
}

// TestMachine_TaskAdvance_Cycles はタスクインデックスの巡回を検証する。
func TestMachine_TaskAdvance_Cycles(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	if got := m.CurrentTask().ID; got != "t-1" {
		t.Fatalf("CurrentTask = %q, want t-1", got)
	}

	answerAndAdvance(t, m, clk)
	if got := m.CurrentTask().ID; got != "t-2" {
		t.Errorf("CurrentTask = %q, want t-2", got)
	}

	answerAndAdvance(t, m, clk)
	answerAndAdvance(t, m, clk)
	// プール末尾の次は先頭に戻る
	if got := m.CurrentTask().ID; got != "t-1" {
		t.Errorf("CurrentTask = %q, want t-1 after wrap", got)
	}
}

// TestMachine_ProgressPercent_Clamped は達成率のクランプを検証する。
func TestMachine_ProgressPercent_Clamped(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	// dailyGoal=20に対し25問完了させる
	for i := 0; i < 25; i++ {
		answerAndAdvance(t, m, clk)
	}

	if got := m.Counters().TasksCompleted; got != 25 {
		t.Fatalf("TasksCompleted = %d, want 25", got)
	}
	if got := m.ProgressPercent(); got != 100 {
		t.Errorf("ProgressPercent = %v, want 100 (clamped)", got)
	}
}

// TestMachine_ProgressPercent_Partial は途中経過の達成率を検証する。
func TestMachine_ProgressPercent_Partial(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	for i := 0; i < 5; i++ {
		answerAndAdvance(t, m, clk)
	}

	if got := m.ProgressPercent(); got != 25 {
		t.Errorf("ProgressPercent = %v, want 25", got)
	}
}

// TestMachine_Close_CancelsTimers はClose後にタイマーが発火しないことを検証する。
func TestMachine_Close_CancelsTimers(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	for i := 0; i < 4; i++ {
		answerAndAdvance(t, m, clk)
	}
	m.SubmitAnswer("A") // セレブレーションタイマーが保留中

	m.Close()
	clk.Advance(10 * time.Second)

	if m.Snapshot().Celebrating {
		t.Error("celebration fired after Close")
	}
	if clk.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0 after Close", clk.PendingCount())
	}
}

// TestMachine_BestStreak_Tracked は最高ストリークの追跡を検証する。
func TestMachine_BestStreak_Tracked(t *testing.T) {
	m, clk := newTestMachine(t, FixedJudge(true))

	for i := 0; i < 3; i++ {
		answerAndAdvance(t, m, clk)
	}
	m.judge = FixedJudge(false)
	answerAndAdvance(t, m, clk)
	m.judge = FixedJudge(true)
	answerAndAdvance(t, m, clk)

	p := m.Counters()
	if p.Streak != 1 {
		t.Errorf("Streak = %d, want 1", p.Streak)
	}
	if p.BestStreak != 3 {
		t.Errorf("BestStreak = %d, want 3", p.BestStreak)
	}
}

// TestDemoJudge_Deterministic は同一シードで同じ判定列になることを検証する。
func TestDemoJudge_Deterministic(t *testing.T) {
	a := NewDemoJudge(42)
	b := NewDemoJudge(42)
	task := testTasks()[0]

	for i := 0; i < 20; i++ {
		if a.Judge(task, "A") != b.Judge(task, "A") {
			t.Fatalf("judges diverged at step %d", i)
		}
	}
}
