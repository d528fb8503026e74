package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake はテスト用の手動進行Clock。
// Advanceで時刻を進めると、期限の到来したタイマーが登録順・期限順に発火する。
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	seq    int
}

// fakeTimer はFakeに登録されたタイマー。
type fakeTimer struct {
	clk     *Fake
	when    time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewFake は基準時刻付きのFakeを生成する。
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now は現在の仮想時刻を返す。
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc はd経過後にfを実行するタイマーを登録する。
func (c *Fake) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{
		clk:  c,
		when: c.now.Add(d),
		seq:  c.seq,
		f:    f,
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance は仮想時刻をdだけ進め、期限の到来したタイマーを発火させる。
// タイマーのコールバックが新たなタイマーを登録した場合、
// そのタイマーも進めた範囲内であれば同じ呼び出しで発火する。
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDue(target)
		if t == nil {
			break
		}
		c.mu.Lock()
		c.now = t.when
		t.fired = true
		c.mu.Unlock()
		t.f()
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// nextDue はtarget以前に発火すべき未発火タイマーのうち最も早いものを返す。
func (c *Fake) nextDue(target time.Time) *fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.when.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].when.Equal(due[j].when) {
			return due[i].seq < due[j].seq
		}
		return due[i].when.Before(due[j].when)
	})
	return due[0]
}

// PendingCount は未発火かつ未停止のタイマー数を返す。テスト用。
func (c *Fake) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// Stop はタイマーをキャンセルする。発火前であればtrueを返す。
func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
