package game

import (
	"github.com/google/uuid"

	"github.com/hitoshi/labelplay/internal/model"
)

// SampleTasks は外部タスクソースなしで遊べる組み込みのタスクプールを返す。
// IDは生成ごとに新しく採番される。
func SampleTasks() []model.Task {
	return []model.Task{
		{
			ID:        uuid.NewString(),
			Question:  "この画像に写っている動物は何ですか？",
			DataType:  "image",
			DataValue: "https://images.example.com/datasets/animals/0001.jpg",
			Options: []model.TaskOption{
				{Label: "猫", Emoji: "🐱"},
				{Label: "犬", Emoji: "🐶"},
				{Label: "鳥", Emoji: "🐦"},
				{Label: "その他", Emoji: "❓"},
			},
		},
		{
			ID:        uuid.NewString(),
			Question:  "このレビューの感情を選んでください",
			DataType:  "text",
			DataValue: "配送は早かったが、商品の質は期待以下だった。",
			Options: []model.TaskOption{
				{Label: "ポジティブ", Emoji: "😊"},
				{Label: "ネガティブ", Emoji: "😞"},
				{Label: "中立", Emoji: "😐"},
			},
		},
		{
			ID:        uuid.NewString(),
			Question:  "この画像は屋内ですか、屋外ですか？",
			DataType:  "image",
			DataValue: "https://images.example.com/datasets/scenes/0042.jpg",
			Options: []model.TaskOption{
				{Label: "屋内", Emoji: "🏠"},
				{Label: "屋外", Emoji: "🌳"},
				{Label: "判別不能", Emoji: "❓"},
			},
		},
		{
			ID:        uuid.NewString(),
			Question:  "この文章のトピックを選んでください",
			DataType:  "text",
			DataValue: "新しいGPUアーキテクチャは前世代比で電力効率が大きく改善された。",
			Options: []model.TaskOption{
				{Label: "テクノロジー", Emoji: "💻"},
				{Label: "スポーツ", Emoji: "⚽"},
				{Label: "経済", Emoji: "📈"},
				{Label: "エンタメ", Emoji: "🎬"},
			},
		},
		{
			ID:        uuid.NewString(),
			Question:  "この画像に人物は写っていますか？",
			DataType:  "image",
			DataValue: "https://images.example.com/datasets/street/0117.jpg",
			Options: []model.TaskOption{
				{Label: "写っている", Emoji: "🙋"},
				{Label: "写っていない", Emoji: "🚫"},
			},
		},
	}
}
