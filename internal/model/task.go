package model

// TaskOption はラベリングタスクの選択肢を表す。
type TaskOption struct {
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// Task はプレイヤーに提示されるラベリングタスクを表す。
// DataTypeに応じてDataValueの解釈が変わる（image: 画像URL、text: 本文）。
type Task struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	Question  string       `json:"question"`
	DataType  string       `json:"data_type"`
	DataValue string       `json:"data_value"`
	Options   []TaskOption `json:"options"`
}
