// Package fakeidp はidentity-toolkit互換のIDプロバイダーのインプロセス実装を提供する。
// 開発とテストで本物のIDプロバイダーの代わりに使用する。
// アカウントとトークンはインメモリで、プロセス終了とともに消える。
package fakeidp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmailExists は同一メールアドレスのアカウントが既に存在することを示す。
var ErrEmailExists = errors.New("email already registered")

// Account はプロバイダーが保持するアカウント。
type Account struct {
	ID           string
	Email        string
	PasswordHash []byte
	DisplayName  string
	Provider     string // "password" またはOAuthプロバイダー名
	Disabled     bool
}

// Store はアカウントと発行済みトークンのインメモリストア。
type Store struct {
	mu        sync.Mutex
	byEmail   map[string]*Account
	byID      map[string]*Account
	tokens    map[string]string // idToken -> accountID
	oauthCode map[string]string // 認可コード -> accountID
}

// NewStore は空のStoreを生成する。
func NewStore() *Store {
	return &Store{
		byEmail:   make(map[string]*Account),
		byID:      make(map[string]*Account),
		tokens:    make(map[string]string),
		oauthCode: make(map[string]string),
	}
}

// CreateAccount はメール/パスワードのアカウントを作成する。
// メールアドレスは小文字化して一意性を判定する。
func (s *Store) CreateAccount(email, password string) (*Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := s.byEmail[key]; exists {
		return nil, ErrEmailExists
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Provider:     "password",
	}
	s.byEmail[key] = account
	s.byID[account.ID] = account
	return account, nil
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnil。
func (s *Store) FindByEmail(email string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byEmail[strings.ToLower(email)]
}

// CheckPassword はパスワードを照合する。
func (s *Store) CheckPassword(account *Account, password string) bool {
	return bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)) == nil
}

// UpdateDisplayName は表示名を設定する。
func (s *Store) UpdateDisplayName(accountID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.byID[accountID]
	if !ok {
		return fmt.Errorf("account not found: %s", accountID)
	}
	account.DisplayName = displayName
	return nil
}

// Disable はアカウントを無効化する。テストシナリオ用。
func (s *Store) Disable(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.byEmail[strings.ToLower(email)]; ok {
		account.Disabled = true
	}
}

// IssueToken はアカウントのIDトークンを発行する。
func (s *Store) IssueToken(accountID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := uuid.NewString()
	s.tokens[token] = accountID
	return token
}

// Verify はIDトークンを検証してアカウントIDを返す。
// middleware.TokenVerifierを満たし、APIサーバー側の認証に使用する。
func (s *Store) Verify(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountID, ok := s.tokens[token]
	if !ok {
		return "", fmt.Errorf("unknown token")
	}
	return accountID, nil
}

// IssueOAuthCode はOAuth同意後の認可コードを発行する。
// 対応するアカウントが未作成の場合はプロバイダー連携アカウントを作成する。
func (s *Store) IssueOAuthCode(provider, email, displayName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	account, ok := s.byEmail[key]
	if !ok {
		account = &Account{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: displayName,
			Provider:    provider,
		}
		s.byEmail[key] = account
		s.byID[account.ID] = account
	}

	code := uuid.NewString()
	s.oauthCode[code] = account.ID
	return code
}

// RedeemOAuthCode は認可コードをアカウントに引き換える。コードは一度しか使えない。
func (s *Store) RedeemOAuthCode(code string) *Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	accountID, ok := s.oauthCode[code]
	if !ok {
		return nil
	}
	delete(s.oauthCode, code)
	return s.byID[accountID]
}
