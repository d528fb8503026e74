// Package validate はクライアント側の入力バリデーションを提供する。
// ここで弾いたエラーはネットワーク層に到達させない。
package validate

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 128

	displayNameMinLength = 2
	displayNameMaxLength = 50

	projectNameMinLength = 3
	projectNameMaxLength = 100

	descriptionMaxLength = 500

	sanitizeMaxLength = 1000
)

var (
	emailPattern       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	displayNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-_.]+$`)
	hasLetterPattern   = regexp.MustCompile(`[a-zA-Z]`)
	hasNumberPattern   = regexp.MustCompile(`[0-9]`)

	// textPolicy はプレーンテキスト入力からマークアップを除去するポリシー。
	textPolicy = bluemonday.StrictPolicy()
)

// Result はバリデーション結果を表す。
// Warningがtrueの場合、入力は受理されるがユーザーに注意を表示する。
type Result struct {
	Valid   bool
	Message string
	Warning bool
}

// Email はメールアドレスの形式を検証する。
func Email(email string) bool {
	return emailPattern.MatchString(email)
}

// Password はパスワード強度を検証する。
// 8〜128文字を必須とし、英字と数字の混在がない場合は警告付きで受理する。
func Password(password string) Result {
	if len(password) < passwordMinLength {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("Password must be at least %d characters long", passwordMinLength),
		}
	}
	if len(password) > passwordMaxLength {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("Password is too long (max %d characters)", passwordMaxLength),
		}
	}
	if !hasLetterPattern.MatchString(password) || !hasNumberPattern.MatchString(password) {
		return Result{
			Valid:   true,
			Message: "For better security, include both letters and numbers",
			Warning: true,
		}
	}
	return Result{Valid: true, Message: "Strong password"}
}

// DisplayName は表示名を検証する。
// 前後の空白を除いた上で2〜50文字、英数字・空白・基本記号のみを許可する。
func DisplayName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < displayNameMinLength || len(trimmed) > displayNameMaxLength {
		return false
	}
	return displayNamePattern.MatchString(trimmed)
}

// ProjectName はプロジェクト名を検証する。3〜100文字。
func ProjectName(name string) Result {
	if len(strings.TrimSpace(name)) < projectNameMinLength {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("Project name must be at least %d characters long", projectNameMinLength),
		}
	}
	if len(name) > projectNameMaxLength {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("Project name must not exceed %d characters", projectNameMaxLength),
		}
	}
	return Result{Valid: true}
}

// Description はプロジェクト説明文を検証する。500文字まで。
func Description(description string) Result {
	if len(description) > descriptionMaxLength {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("Description must not exceed %d characters", descriptionMaxLength),
		}
	}
	return Result{Valid: true}
}

// FileSize はアップロードファイルのサイズを検証する。
func FileSize(sizeInBytes int64, maxSizeInMB int) Result {
	maxSizeInBytes := int64(maxSizeInMB) * 1024 * 1024
	if sizeInBytes > maxSizeInBytes {
		return Result{
			Valid:   false,
			Message: fmt.Sprintf("File size exceeds %dMB limit", maxSizeInMB),
		}
	}
	return Result{Valid: true, Message: "File size is acceptable"}
}

// allowedFileExtensions はデータセットとして受け付ける拡張子。
var allowedFileExtensions = []string{".csv", ".json"}

// FileType はアップロードファイルの拡張子を検証する。
func FileType(fileName string) Result {
	extension := strings.ToLower(filepath.Ext(fileName))
	for _, allowed := range allowedFileExtensions {
		if extension == allowed {
			return Result{Valid: true, Message: "File type is acceptable"}
		}
	}
	return Result{
		Valid:   false,
		Message: fmt.Sprintf("File type not allowed. Accepted types: %s", strings.Join(allowedFileExtensions, ", ")),
	}
}

// SanitizeInput はユーザー入力からマークアップを除去し、前後の空白を削除して
// 1000文字に切り詰める。表示名やプロジェクト説明の保存前に使用する。
func SanitizeInput(text string) string {
	sanitized := strings.TrimSpace(textPolicy.Sanitize(text))
	if len(sanitized) > sanitizeMaxLength {
		sanitized = sanitized[:sanitizeMaxLength]
	}
	return sanitized
}

// URL はURLとして解釈可能かを検証する。
func URL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}
