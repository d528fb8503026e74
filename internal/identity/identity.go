// Package identity は外部IDプロバイダーとの連携を提供する。
// メール/パスワード認証、OAuthポップアップ認証、パスワードリセット、
// 認証状態変化の購読、およびプロバイダー固有エラーの分類を含む。
package identity

import "context"

// UserInfo はIDプロバイダーが保持する認証済みユーザーのスナップショット。
type UserInfo struct {
	UserID      string
	Email       string
	DisplayName string
}

// OAuthKind はOAuth認証プロバイダーの種別を表す。
type OAuthKind string

const (
	// OAuthGoogle はGoogleによるOAuth認証を示す。
	OAuthGoogle OAuthKind = "google"
	// OAuthGitHub はGitHubによるOAuth認証を示す。
	OAuthGitHub OAuthKind = "github"
)

// Provider はIDプロバイダーのインターフェース。
// セッションマネージャーはこの抽象経由でのみプロバイダーに触れる。
type Provider interface {
	// SignInWithPassword はメール/パスワードでサインインする。
	SignInWithPassword(ctx context.Context, email, password string) (*UserInfo, error)

	// SignUpWithPassword はアカウントを作成し、表示名を設定する。
	// 表示名の設定はアカウント作成とは別のプロバイダー呼び出しで行われ、
	// そこで失敗してもアカウント作成自体は成功として扱う（二段階呼び出し）。
	SignUpWithPassword(ctx context.Context, email, password, displayName string) (*UserInfo, error)

	// SignInWithOAuth は対話的な同意フローを開いてOAuthサインインを行う。
	// ユーザーによるキャンセルはCategoryUserCancelledのエラーとして返る。
	SignInWithOAuth(ctx context.Context, kind OAuthKind) (*UserInfo, error)

	// SignOut は現在の認証状態を破棄する。
	SignOut(ctx context.Context) error

	// SendPasswordReset はパスワードリセットメールの送信を要求する。
	// 認証状態には影響しない。
	SendPasswordReset(ctx context.Context, email string) error

	// IDToken は現在のユーザーのIDトークンを返す。
	// APIクライアントがリクエストごとに取得する。未認証の場合はエラー。
	IDToken(ctx context.Context) (string, error)

	// Subscribe は認証状態の変化を購読する。
	// 登録時に現在の状態（未認証ならnil）で1回呼び出され、
	// 以降は変化のたびに呼び出される。戻り値で購読を解除する。
	Subscribe(fn func(*UserInfo)) (unsubscribe func())
}
