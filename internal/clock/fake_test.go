package clock

import (
	"testing"
	"time"
)

var base = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

// TestFake_AdvanceFiresDueTimers は期限到来タイマーの発火を検証する。
func TestFake_AdvanceFiresDueTimers(t *testing.T) {
	clk := NewFake(base)

	var fired []string
	clk.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	clk.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	clk.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	clk.Advance(3 * time.Second)

	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Errorf("fired = %v, want [a b] in deadline order", fired)
	}
	if clk.PendingCount() != 1 {
		t.Errorf("PendingCount = %d, want 1", clk.PendingCount())
	}
	if got := clk.Now(); !got.Equal(base.Add(3 * time.Second)) {
		t.Errorf("Now = %v, want base+3s", got)
	}
}

// TestFake_CascadingTimers はコールバックが登録したタイマーも
// 同じAdvanceで発火することを検証する。
func TestFake_CascadingTimers(t *testing.T) {
	clk := NewFake(base)

	var fired []string
	clk.AfterFunc(1*time.Second, func() {
		fired = append(fired, "first")
		clk.AfterFunc(1*time.Second, func() { fired = append(fired, "second") })
	})

	clk.Advance(5 * time.Second)

	if len(fired) != 2 || fired[1] != "second" {
		t.Errorf("fired = %v, want cascaded [first second]", fired)
	}
}

// TestFake_StopCancelsTimer はStopしたタイマーが発火しないことを検証する。
func TestFake_StopCancelsTimer(t *testing.T) {
	clk := NewFake(base)

	fired := false
	timer := clk.AfterFunc(1*time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop should return true before firing")
	}
	clk.Advance(2 * time.Second)

	if fired {
		t.Error("stopped timer should not fire")
	}
	// 停止済み・発火済みタイマーのStopはfalse
	if timer.Stop() {
		t.Error("second Stop should return false")
	}
}

// TestFake_SameDeadlineFiresInRegistrationOrder は同一期限のタイマーが
// 登録順に発火することを検証する。
func TestFake_SameDeadlineFiresInRegistrationOrder(t *testing.T) {
	clk := NewFake(base)

	var fired []string
	clk.AfterFunc(1*time.Second, func() { fired = append(fired, "first") })
	clk.AfterFunc(1*time.Second, func() { fired = append(fired, "second") })

	clk.Advance(1 * time.Second)

	if len(fired) != 2 || fired[0] != "first" || fired[1] != "second" {
		t.Errorf("fired = %v, want registration order", fired)
	}
}
