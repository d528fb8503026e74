package fakeidp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"

	"github.com/hitoshi/labelplay/internal/identity"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// setupProvider はfakeidpサーバーとそれを指すRESTProviderを用意する。
func setupProvider(t *testing.T, config ServerConfig) (*identity.RESTProvider, *Server) {
	t.Helper()

	server := NewServer(config, NewStore(), testLogger())
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	provider := identity.NewRESTProvider(identity.RESTProviderConfig{
		BaseURL: ts.URL,
		APIKey:  config.APIKey,
	}, &httpConsentFlow{baseURL: ts.URL, apiKey: config.APIKey})

	return provider, server
}

// httpConsentFlow は認可URLを実際に叩いてコードを受け取る同意フロー実装。
type httpConsentFlow struct {
	baseURL string
	apiKey  string
}

func (f *httpConsentFlow) Open(ctx context.Context, authorizeURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Code, nil
}

// TestSignUpAndSignIn はアカウント作成とサインインの往復を検証する。
func TestSignUpAndSignIn(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))
	ctx := context.Background()

	created, err := provider.SignUpWithPassword(ctx, "alice@example.com", "secret1pass", "Alice")
	if err != nil {
		t.Fatalf("SignUpWithPassword returned error: %v", err)
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email = %q, want alice@example.com", created.Email)
	}
	// 表示名は二段階目のaccounts:update呼び出しで設定される
	if created.DisplayName != "Alice" {
		t.Errorf("DisplayName = %q, want Alice", created.DisplayName)
	}

	info, err := provider.SignInWithPassword(ctx, "alice@example.com", "secret1pass")
	if err != nil {
		t.Fatalf("SignInWithPassword returned error: %v", err)
	}
	if info.UserID != created.UserID {
		t.Errorf("UserID = %q, want %q", info.UserID, created.UserID)
	}
}

// TestSignUp_DuplicateEmail は重複メールがDuplicateAccountに分類されることを検証する。
func TestSignUp_DuplicateEmail(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))
	ctx := context.Background()

	if _, err := provider.SignUpWithPassword(ctx, "bob@example.com", "secret1pass", ""); err != nil {
		t.Fatalf("first sign-up returned error: %v", err)
	}

	_, err := provider.SignUpWithPassword(ctx, "bob@example.com", "secret1pass", "")
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if idErr.Category != identity.CategoryDuplicateAccount {
		t.Errorf("Category = %q, want %q", idErr.Category, identity.CategoryDuplicateAccount)
	}
}

// TestSignUp_WeakPassword は短いパスワードがWeakCredentialに分類されることを検証する。
func TestSignUp_WeakPassword(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))

	_, err := provider.SignUpWithPassword(context.Background(), "carol@example.com", "short1", "")
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if idErr.Category != identity.CategoryWeakCredential {
		t.Errorf("Category = %q, want %q", idErr.Category, identity.CategoryWeakCredential)
	}
}

// TestSignIn_WrongPassword は誤パスワードがWrongCredentialに分類されることを検証する。
func TestSignIn_WrongPassword(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))
	ctx := context.Background()

	if _, err := provider.SignUpWithPassword(ctx, "dave@example.com", "secret1pass", ""); err != nil {
		t.Fatalf("sign-up returned error: %v", err)
	}

	_, err := provider.SignInWithPassword(ctx, "dave@example.com", "wrong1pass")
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if idErr.Category != identity.CategoryWrongCredential {
		t.Errorf("Category = %q, want %q", idErr.Category, identity.CategoryWrongCredential)
	}
	// ユーザーに見える文面は固定タクソノミーのもの
	if idErr.Message != "Incorrect password. Please try again." {
		t.Errorf("Message = %q, want taxonomy message", idErr.Message)
	}
}

// TestSignIn_UnknownEmail は未登録メールがAccountNotFoundに分類されることを検証する。
func TestSignIn_UnknownEmail(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))

	_, err := provider.SignInWithPassword(context.Background(), "nobody@example.com", "whatever1")
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if idErr.Category != identity.CategoryAccountNotFound {
		t.Errorf("Category = %q, want %q", idErr.Category, identity.CategoryAccountNotFound)
	}
}

// TestSignIn_DisabledAccount は無効化アカウントがAccountDisabledに
// 分類されることを検証する。
func TestSignIn_DisabledAccount(t *testing.T) {
	provider, server := setupProvider(t, DefaultServerConfig("test-key"))
	ctx := context.Background()

	if _, err := provider.SignUpWithPassword(ctx, "eve@example.com", "secret1pass", ""); err != nil {
		t.Fatalf("sign-up returned error: %v", err)
	}
	server.Store().Disable("eve@example.com")

	_, err := provider.SignInWithPassword(ctx, "eve@example.com", "secret1pass")
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if idErr.Category != identity.CategoryAccountDisabled {
		t.Errorf("Category = %q, want %q", idErr.Category, identity.CategoryAccountDisabled)
	}
}

// TestSignIn_RateLimited は試行超過がRateLimitedに分類されることを検証する。
func TestSignIn_RateLimited(t *testing.T) {
	config := DefaultServerConfig("test-key")
	config.SignInRate = rate.Limit(0.001)
	config.SignInBurst = 2
	provider, _ := setupProvider(t, config)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		provider.SignInWithPassword(ctx, "frank@example.com", "whatever1")
	}

	_, err := provider.SignInWithPassword(ctx, "frank@example.com", "whatever1")
	var idErr *identity.Error
	if !errors.As(err, &idErr) {
		t.Fatalf("expected classified error, got %v", err)
	}
	if idErr.Category != identity.CategoryRateLimited {
		t.Errorf("Category = %q, want %q", idErr.Category, identity.CategoryRateLimited)
	}
}

// TestSendPasswordReset はリセット要求の成否を検証する。
func TestSendPasswordReset(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))
	ctx := context.Background()

	if _, err := provider.SignUpWithPassword(ctx, "grace@example.com", "secret1pass", ""); err != nil {
		t.Fatalf("sign-up returned error: %v", err)
	}

	if err := provider.SendPasswordReset(ctx, "grace@example.com"); err != nil {
		t.Errorf("SendPasswordReset returned error: %v", err)
	}

	err := provider.SendPasswordReset(ctx, "unknown@example.com")
	var idErr *identity.Error
	if !errors.As(err, &idErr) || idErr.Category != identity.CategoryAccountNotFound {
		t.Errorf("expected AccountNotFound for unknown email, got %v", err)
	}
}

// TestOAuthFlow は同意フロー経由のOAuthサインインを検証する。
func TestOAuthFlow(t *testing.T) {
	provider, _ := setupProvider(t, DefaultServerConfig("test-key"))

	info, err := provider.SignInWithOAuth(context.Background(), identity.OAuthGoogle)
	if err != nil {
		t.Fatalf("SignInWithOAuth returned error: %v", err)
	}
	if info.Email != "demo-google@example.com" {
		t.Errorf("Email = %q, want demo-google@example.com", info.Email)
	}
}

// TestTokenVerification は発行済みトークンの検証を検証する。
func TestTokenVerification(t *testing.T) {
	provider, server := setupProvider(t, DefaultServerConfig("test-key"))
	ctx := context.Background()

	created, err := provider.SignUpWithPassword(ctx, "henry@example.com", "secret1pass", "")
	if err != nil {
		t.Fatalf("sign-up returned error: %v", err)
	}

	token, err := provider.IDToken(ctx)
	if err != nil {
		t.Fatalf("IDToken returned error: %v", err)
	}

	userID, err := server.Store().Verify(ctx, token)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if userID != created.UserID {
		t.Errorf("userID = %q, want %q", userID, created.UserID)
	}

	if _, err := server.Store().Verify(ctx, "forged-token"); err == nil {
		t.Error("expected error for unknown token")
	}
}

// TestInvalidAPIKey はキー不一致で拒否されることを検証する。
func TestInvalidAPIKey(t *testing.T) {
	server := NewServer(DefaultServerConfig("right-key"), NewStore(), testLogger())
	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	provider := identity.NewRESTProvider(identity.RESTProviderConfig{
		BaseURL: ts.URL,
		APIKey:  "wrong-key",
	}, nil)

	_, err := provider.SignUpWithPassword(context.Background(), "iris@example.com", "secret1pass", "")
	if err == nil {
		t.Fatal("expected error for wrong API key")
	}
}
