package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrConsentCancelled は同意フローがユーザー操作で閉じられたことを示す。
var ErrConsentCancelled = errors.New("consent flow cancelled by user")

// ErrNotAuthenticated は認証済みユーザーが存在しないことを示す。
var ErrNotAuthenticated = errors.New("no authenticated user")

// ConsentFlow はOAuthの対話的な同意フローを抽象化する。
// 実装は認可URLを開き、ユーザーの同意後に認可コードを返す。
// ユーザーがフローを閉じた場合はErrConsentCancelledを返す。
type ConsentFlow interface {
	Open(ctx context.Context, authorizeURL string) (code string, err error)
}

// RESTProviderConfig はRESTProviderの設定。
type RESTProviderConfig struct {
	BaseURL string // IDプロバイダーのベースURL
	APIKey  string // プロジェクトAPIキー
	Timeout time.Duration

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// RESTProvider はidentity-toolkit互換のRESTエンドポイントに対するProvider実装。
// 現在の認証状態を保持し、変化をリスナーに通知する。
type RESTProvider struct {
	config  RESTProviderConfig
	client  *http.Client
	consent ConsentFlow

	mu           sync.Mutex
	current      *UserInfo
	idToken      string
	listeners    map[int]func(*UserInfo)
	nextListener int
}

// NewRESTProvider はRESTProviderを生成する。
// consentはOAuthサインインを使用しない場合nilでよい。
func NewRESTProvider(config RESTProviderConfig, consent ConsentFlow) *RESTProvider {
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RESTProvider{
		config:    config,
		client:    client,
		consent:   consent,
		listeners: make(map[int]func(*UserInfo)),
	}
}

// credentialResponse はプロバイダーの認証系エンドポイントのレスポンス。
type credentialResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
	ExpiresIn   string `json:"expiresIn"`
}

// errorResponse はプロバイダーのエラーレスポンス。
type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SignInWithPassword はメール/パスワードでサインインする。
func (p *RESTProvider) SignInWithPassword(ctx context.Context, email, password string) (*UserInfo, error) {
	cred, err := p.postCredential(ctx, "accounts:signInWithPassword", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}
	return p.setCurrent(cred), nil
}

// SignUpWithPassword はアカウントを作成し、表示名を設定する。
// 表示名設定の失敗はアカウント作成の成功を覆さない。
func (p *RESTProvider) SignUpWithPassword(ctx context.Context, email, password, displayName string) (*UserInfo, error) {
	cred, err := p.postCredential(ctx, "accounts:signUp", map[string]any{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, err
	}

	if displayName != "" {
		if err := p.updateDisplayName(ctx, cred.IDToken, displayName); err != nil {
			slog.Warn("failed to set display name after sign-up",
				slog.String("email", email),
				slog.String("error", err.Error()),
			)
		} else {
			cred.DisplayName = displayName
		}
	}

	return p.setCurrent(cred), nil
}

// SignInWithOAuth は同意フロー経由でOAuthサインインを行う。
func (p *RESTProvider) SignInWithOAuth(ctx context.Context, kind OAuthKind) (*UserInfo, error) {
	if p.consent == nil {
		return nil, Classify(CodeOperationNotAllowed, "")
	}

	authorizeURL := fmt.Sprintf("%s/v1/oauth/authorize?%s",
		strings.TrimSuffix(p.config.BaseURL, "/"),
		url.Values{"provider": {string(kind)}, "key": {p.config.APIKey}}.Encode(),
	)

	code, err := p.consent.Open(ctx, authorizeURL)
	if err != nil {
		if errors.Is(err, ErrConsentCancelled) {
			return nil, Classify(CodePopupClosedByUser, "")
		}
		return nil, Classify(CodeNetworkRequestFailed, "")
	}

	cred, err := p.postCredential(ctx, "oauth/token", map[string]any{
		"code":     code,
		"provider": string(kind),
	})
	if err != nil {
		return nil, err
	}
	return p.setCurrent(cred), nil
}

// SignOut は現在の認証状態を破棄し、リスナーに通知する。
// プロバイダー側の呼び出しは伴わないため失敗しない。
func (p *RESTProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.idToken = ""
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

// SendPasswordReset はパスワードリセットメールの送信を要求する。
func (p *RESTProvider) SendPasswordReset(ctx context.Context, email string) error {
	_, err := p.post(ctx, "accounts:sendOobCode", map[string]any{
		"requestType": "PASSWORD_RESET",
		"email":       email,
	})
	return err
}

// IDToken は現在のユーザーのIDトークンを返す。
func (p *RESTProvider) IDToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.idToken == "" {
		return "", ErrNotAuthenticated
	}
	return p.idToken, nil
}

// Subscribe は認証状態の変化を購読する。
// 登録時に現在の状態で1回同期的に呼び出される。
func (p *RESTProvider) Subscribe(fn func(*UserInfo)) func() {
	p.mu.Lock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	current := p.current
	p.mu.Unlock()

	fn(current)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// setCurrent は認証状態を置き換え、リスナーに通知して新しいUserInfoを返す。
func (p *RESTProvider) setCurrent(cred *credentialResponse) *UserInfo {
	info := &UserInfo{
		UserID:      cred.LocalID,
		Email:       cred.Email,
		DisplayName: cred.DisplayName,
	}

	p.mu.Lock()
	p.current = info
	p.idToken = cred.IDToken
	listeners := p.snapshotListenersLocked()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(info)
	}
	return info
}

// snapshotListenersLocked はロック保持中にリスナーのコピーを返す。
func (p *RESTProvider) snapshotListenersLocked() []func(*UserInfo) {
	listeners := make([]func(*UserInfo), 0, len(p.listeners))
	for _, fn := range p.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

// updateDisplayName はaccounts:updateで表示名を設定する。
func (p *RESTProvider) updateDisplayName(ctx context.Context, idToken, displayName string) error {
	_, err := p.post(ctx, "accounts:update", map[string]any{
		"idToken":     idToken,
		"displayName": displayName,
	})
	return err
}

// postCredential は認証系エンドポイントを呼び出し、資格情報レスポンスを解析する。
func (p *RESTProvider) postCredential(ctx context.Context, endpoint string, body map[string]any) (*credentialResponse, error) {
	raw, err := p.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cred credentialResponse
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, Classify("", "invalid response from identity provider")
	}
	if cred.IDToken == "" {
		return nil, Classify("", "empty token in identity provider response")
	}
	return &cred, nil
}

// post はプロバイダーのエンドポイントを呼び出す。
// 失敗はすべて分類済みの*Errorとして返す（マッピングは全域）。
func (p *RESTProvider) post(ctx context.Context, endpoint string, body map[string]any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, Classify("", err.Error())
	}

	reqURL := fmt.Sprintf("%s/v1/%s?key=%s",
		strings.TrimSuffix(p.config.BaseURL, "/"),
		endpoint,
		url.QueryEscape(p.config.APIKey),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, Classify("", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, Classify(CodeNetworkRequestFailed, "")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(CodeNetworkRequestFailed, "")
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Error.Message == "" {
			return nil, Classify("", fmt.Sprintf("identity provider returned status %d", resp.StatusCode))
		}
		return nil, Classify(errResp.Error.Message, errResp.Error.Message)
	}

	return raw, nil
}

// compile-time interface check
var _ Provider = (*RESTProvider)(nil)
