// Package session はクライアント側のセッション状態を管理する。
// 外部IDプロバイダーのイベントストリームから現在ユーザーの状態を導出し、
// サインイン/サインアップ/サインアウト/パスワードリセットの操作を公開する。
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/labelplay/internal/clock"
	"github.com/hitoshi/labelplay/internal/identity"
	"github.com/hitoshi/labelplay/internal/validate"
)

// errorClearAfter は認証エラーが自動クリアされるまでの時間。
// エラースロットは1つだけで、新しいエラーが上書きするとタイマーは再スタートする。
const errorClearAfter = 5 * time.Second

// State はセッションの認証状態を表す。
// 初期状態はStateUnknownで、プロバイダーの購読が最初のイベントを
// 配信した時点でAuthenticatedまたはUnauthenticatedに一度だけ遷移する。
type State int

const (
	// StateUnknown はプロバイダーの初回イベント待ちの状態。
	StateUnknown State = iota
	// StateAuthenticated は認証済みユーザーが存在する状態。
	StateAuthenticated
	// StateUnauthenticated は未認証の状態。
	StateUnauthenticated
)

// Session は認証済みユーザーのスナップショット。
// 認証イベントのたびに丸ごと置き換えられる。
// 不変条件: IsAuthenticated == (UserID != "")。
type Session struct {
	UserID          string
	Email           string
	DisplayName     string
	IsAuthenticated bool
}

// AuthError は失敗した操作の後に表示される一時的なエラー。
// 固定タクソノミーのカテゴリと、表示可能な文面のみを持つ。
type AuthError struct {
	Message  string
	Category identity.Category
}

// ValidationError はネットワークに到達する前に弾かれた入力エラー。
// エラースロットには記録されず、呼び出し元がフィールド単位で表示する。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Snapshot はリスナーに配信されるセッション状態の静的コピー。
type Snapshot struct {
	State   State
	Session Session
	Loading bool
	Err     *AuthError
}

// Manager はセッション状態の唯一の所有者。
// アプリインスタンスごとに1つ生成し、依存として引き回す。
// 認証操作はUI視点で同時に1つだけ実行される想定だが、重複した呼び出しは
// 調整もキューイングもされない。最後に解決した操作がloadingを落とす。
type Manager struct {
	provider identity.Provider
	clk      clock.Clock

	mu           sync.Mutex
	state        State
	session      Session
	loading      bool
	authErr      *AuthError
	errTimer     clock.Timer
	errGen       int
	listeners    map[int]func(Snapshot)
	nextListener int
	unsubscribe  func()
	closed       bool
}

// NewManager はManagerを生成する。clkがnilの場合は実時間の時計を使用する。
func NewManager(provider identity.Provider, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.New()
	}
	return &Manager{
		provider:  provider,
		clk:       clk,
		state:     StateUnknown,
		loading:   true,
		listeners: make(map[int]func(Snapshot)),
	}
}

// Start はプロバイダーの認証状態購読を開始する。
// プロバイダーは登録時に現在の状態（未認証ならnil）を即座に配信するため、
// 匿名のままでもStateUnknownに留まり続けることはない。
func (m *Manager) Start() {
	m.unsubscribe = m.provider.Subscribe(func(info *identity.UserInfo) {
		m.applyProviderEvent(info)
	})
}

// Close はエラークリアタイマーを止め、プロバイダーの購読を解除する。
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	if m.errTimer != nil {
		m.errTimer.Stop()
		m.errTimer = nil
	}
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Subscribe は状態変化のリスナーを登録する。戻り値で解除する。
func (m *Manager) Subscribe(fn func(Snapshot)) func() {
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

// Snapshot は現在のセッション状態のコピーを返す。
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// SignInWithPassword はメール/パスワードでサインインする。
// 失敗時はセッション状態を変えず、分類済みエラーを記録して返す。
func (m *Manager) SignInWithPassword(ctx context.Context, email, password string) error {
	m.beginOperation()

	info, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.finishWithError(err)
		return err
	}

	m.finishWithUser(info)
	slog.Info("user signed in", slog.String("user_id", info.UserID))
	return nil
}

// SignUpWithPassword はアカウントを作成してサインインする。
// 入力の形式チェックはプロバイダー呼び出しの前にローカルで行う。
// 表示名の設定はプロバイダー側で二段階目の呼び出しとして実行され、
// そこでの失敗は操作全体の失敗にはならない。
func (m *Manager) SignUpWithPassword(ctx context.Context, email, password, displayName string) error {
	if !validate.Email(email) {
		return &ValidationError{Field: "email", Message: "Invalid email address format."}
	}
	if res := validate.Password(password); !res.Valid {
		return &ValidationError{Field: "password", Message: res.Message}
	}
	if !validate.DisplayName(displayName) {
		return &ValidationError{Field: "display_name", Message: "Display name must be 2-50 characters."}
	}

	m.beginOperation()

	info, err := m.provider.SignUpWithPassword(ctx, email, password, validate.SanitizeInput(displayName))
	if err != nil {
		m.finishWithError(err)
		return err
	}

	m.finishWithUser(info)
	slog.Info("user signed up", slog.String("user_id", info.UserID))
	return nil
}

// SignInWithProvider はOAuthの対話的同意フローでサインインする。
// ポップアップを閉じた場合はCategoryUserCancelledの非致命的な失敗になる。
func (m *Manager) SignInWithProvider(ctx context.Context, kind identity.OAuthKind) error {
	m.beginOperation()

	info, err := m.provider.SignInWithOAuth(ctx, kind)
	if err != nil {
		m.finishWithError(err)
		return err
	}

	m.finishWithUser(info)
	slog.Info("user signed in via oauth",
		slog.String("user_id", info.UserID),
		slog.String("provider", string(kind)),
	)
	return nil
}

// SignOut はセッションを破棄する。
// プロバイダー側の失敗時はセッションをクリアせず、失敗を報告する。
func (m *Manager) SignOut(ctx context.Context) error {
	m.clearError()

	if err := m.provider.SignOut(ctx); err != nil {
		m.recordError(err)
		return err
	}

	m.mu.Lock()
	m.session = Session{}
	m.state = StateUnauthenticated
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()

	slog.Info("user signed out")
	return nil
}

// RequestPasswordReset はパスワードリセットメールの送信を要求する。
// 成否はセッション状態と独立で、セッションを変更しない。
func (m *Manager) RequestPasswordReset(ctx context.Context, email string) error {
	if !validate.Email(email) {
		return &ValidationError{Field: "email", Message: "Invalid email address format."}
	}

	m.clearError()

	if err := m.provider.SendPasswordReset(ctx, email); err != nil {
		m.recordError(err)
		return err
	}
	return nil
}

// IDToken は現在のユーザーのIDトークンを返す。
// APIクライアントのTokenSourceとして使用する。
func (m *Manager) IDToken(ctx context.Context) (string, error) {
	return m.provider.IDToken(ctx)
}

// applyProviderEvent はプロバイダーの認証状態イベントを反映する。
// 初回イベントでStateUnknownから抜ける。
func (m *Manager) applyProviderEvent(info *identity.UserInfo) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}

	if info == nil {
		m.session = Session{}
		m.state = StateUnauthenticated
	} else {
		m.session = Session{
			UserID:          info.UserID,
			Email:           info.Email,
			DisplayName:     info.DisplayName,
			IsAuthenticated: true,
		}
		m.state = StateAuthenticated
	}
	if m.loading && m.state != StateUnknown {
		// 初回イベントでローディングを解除する
		m.loading = false
	}
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

// beginOperation は操作開始時にエラーをクリアしローディングを立てる。
func (m *Manager) beginOperation() {
	m.mu.Lock()
	m.clearErrorLocked()
	m.loading = true
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

// finishWithUser は操作成功時にセッションを置き換える。
func (m *Manager) finishWithUser(info *identity.UserInfo) {
	m.mu.Lock()
	m.session = Session{
		UserID:          info.UserID,
		Email:           info.Email,
		DisplayName:     info.DisplayName,
		IsAuthenticated: true,
	}
	m.state = StateAuthenticated
	m.loading = false
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

// finishWithError は操作失敗時にローディングを落とし、エラーを記録する。
// セッション状態は変更しない。
func (m *Manager) finishWithError(err error) {
	m.mu.Lock()
	m.loading = false
	m.recordErrorLocked(err)
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

// recordError はエラースロットを上書きし自動クリアタイマーを再スタートする。
func (m *Manager) recordError(err error) {
	m.mu.Lock()
	m.recordErrorLocked(err)
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

func (m *Manager) recordErrorLocked(err error) {
	var idErr *identity.Error
	if errors.As(err, &idErr) {
		m.authErr = &AuthError{Message: idErr.Message, Category: idErr.Category}
	} else {
		m.authErr = &AuthError{Message: err.Error(), Category: identity.CategoryUnknown}
	}

	if m.errTimer != nil {
		m.errTimer.Stop()
	}
	m.errGen++
	gen := m.errGen
	m.errTimer = m.clk.AfterFunc(errorClearAfter, func() {
		m.clearErrorIfCurrent(gen)
	})
}

// clearErrorIfCurrent はタイマー発火時点でエラーが上書きされていなければクリアする。
func (m *Manager) clearErrorIfCurrent(gen int) {
	m.mu.Lock()
	if m.errGen != gen || m.authErr == nil {
		m.mu.Unlock()
		return
	}
	m.authErr = nil
	m.errTimer = nil
	notify := m.notifyLocked()
	m.mu.Unlock()
	notify()
}

// clearError はエラースロットを明示的に空にする。
func (m *Manager) clearError() {
	m.mu.Lock()
	m.clearErrorLocked()
	m.mu.Unlock()
}

func (m *Manager) clearErrorLocked() {
	if m.errTimer != nil {
		m.errTimer.Stop()
		m.errTimer = nil
	}
	m.errGen++
	m.authErr = nil
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:   m.state,
		Session: m.session,
		Loading: m.loading,
		Err:     m.authErr,
	}
}

// notifyLocked はロック保持中にスナップショットとリスナーのコピーを取り、
// ロック解放後に呼び出すための配信クロージャを返す。
// リスナーがManagerのメソッドを呼び返してもデッドロックしない。
func (m *Manager) notifyLocked() func() {
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
