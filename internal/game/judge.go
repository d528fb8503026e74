package game

import (
	"math/rand"

	"github.com/hitoshi/labelplay/internal/model"
)

// demoCorrectRate はデモ判定器が正解と判定する確率。
const demoCorrectRate = 0.7

// DemoJudge は外部の判定APIを使わない開発用の確率的判定器。
// 選択肢の内容に関わらず一定確率で正解を返す。
type DemoJudge struct {
	rng *rand.Rand
}

// NewDemoJudge はシード付きのDemoJudgeを生成する。
func NewDemoJudge(seed int64) *DemoJudge {
	return &DemoJudge{rng: rand.New(rand.NewSource(seed))}
}

// Judge は確率的に正誤を判定する。
func (j *DemoJudge) Judge(task model.Task, choice string) bool {
	return j.rng.Float64() < demoCorrectRate
}

// FixedJudge は常に同じ判定を返す。テストとデモスクリプト用。
type FixedJudge bool

// Judge は固定の判定結果を返す。
func (j FixedJudge) Judge(task model.Task, choice string) bool {
	return bool(j)
}

var (
	_ Judge = (*DemoJudge)(nil)
	_ Judge = FixedJudge(false)
)
