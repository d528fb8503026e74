package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, project, upload, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeProjectNotFound  = "PROJECT_NOT_FOUND"
	ErrCodeInvalidProject   = "INVALID_PROJECT"
	ErrCodeInvalidTask      = "INVALID_TASK"
	ErrCodeFileTooLarge     = "FILE_TOO_LARGE"
	ErrCodeInvalidFileType  = "INVALID_FILE_TYPE"
	ErrCodeUnsafeDataURL    = "UNSAFE_DATA_URL"
	ErrCodeInvalidItemCount = "INVALID_ITEM_COUNT"
	ErrCodeProfileNotFound  = "PROFILE_NOT_FOUND"
)

// NewProjectNotFoundError はプロジェクト未検出エラーを生成する。
func NewProjectNotFoundError(projectID string) *APIError {
	return &APIError{
		Code:     ErrCodeProjectNotFound,
		Message:  fmt.Sprintf("指定されたプロジェクトが見つかりません: %s", projectID),
		Category: "project",
		Action:   "プロジェクトIDを確認してください。",
	}
}

// NewInvalidProjectError はプロジェクトのバリデーションエラーを生成する。
func NewInvalidProjectError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidProject,
		Message:  fmt.Sprintf("プロジェクトの内容が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidTaskError はタスク定義のバリデーションエラーを生成する。
func NewInvalidTaskError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTask,
		Message:  fmt.Sprintf("タスク定義が不正です: %s", reason),
		Category: "validation",
		Action:   "質問文と選択肢を確認してください。",
	}
}

// NewFileTooLargeError はファイルサイズ超過エラーを生成する。
func NewFileTooLargeError(maxSizeMB int) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", maxSizeMB),
		Category: "upload",
		Action:   "ファイルを分割するか、サイズを小さくしてください。",
	}
}

// NewInvalidFileTypeError は非対応ファイル形式エラーを生成する。
func NewInvalidFileTypeError(extension string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFileType,
		Message:  fmt.Sprintf("対応していないファイル形式です: %s", extension),
		Category: "upload",
		Action:   "CSVまたはJSON形式のファイルをアップロードしてください。",
	}
}

// NewUnsafeDataURLError はデータセット内の危険なURLを検出した際のエラーを生成する。
func NewUnsafeDataURLError(rawURL string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsafeDataURL,
		Message:  fmt.Sprintf("データセットに許可されないURLが含まれています: %s", rawURL),
		Category: "upload",
		Action:   "公開されているhttps URLのみを含むデータセットをアップロードしてください。",
	}
}

// NewInvalidItemCountError はラベル済み件数が総件数を超える更新のエラーを生成する。
func NewInvalidItemCountError(labeled, total int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidItemCount,
		Message:  fmt.Sprintf("ラベル済み件数（%d）が総件数（%d）を超えています。", labeled, total),
		Category: "validation",
		Action:   "件数の指定を確認してください。",
	}
}

// NewProfileNotFoundError はプロフィールが見つからない場合のエラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "ユーザープロフィールが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
