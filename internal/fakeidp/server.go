package fakeidp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/hitoshi/labelplay/internal/identity"
)

// tokenExpirySeconds は発行するトークンの有効期限（秒）。レスポンスにのみ使用する。
const tokenExpirySeconds = "3600"

// minPasswordLength はWEAK_PASSWORDと判定する境界。
const minPasswordLength = 8

// emailPattern はメールアドレスの形式チェック。
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ServerConfig はfakeidpサーバーの設定。
type ServerConfig struct {
	// APIKey は?key=パラメータで要求するプロジェクトキー。空の場合は検証しない。
	APIKey string

	// SignInRate はアカウントごとのサインイン試行レート。
	// 超過するとTOO_MANY_ATTEMPTS_TRY_LATERを返す。
	SignInRate  rate.Limit
	SignInBurst int
}

// DefaultServerConfig はデフォルト設定を返す。サインインは毎分10回まで。
func DefaultServerConfig(apiKey string) ServerConfig {
	return ServerConfig{
		APIKey:      apiKey,
		SignInRate:  rate.Limit(10.0 / 60.0),
		SignInBurst: 10,
	}
}

// Server はIDプロバイダーのHTTPハンドラー群。
type Server struct {
	config ServerConfig
	store  *Store
	logger *slog.Logger

	limitMu  sync.Mutex
	limiters map[string]*rate.Limiter // メールアドレス -> サインイン試行リミッター
}

// NewServer はServerを生成する。
func NewServer(config ServerConfig, store *Store, logger *slog.Logger) *Server {
	return &Server{
		config:   config,
		store:    store,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Store は内部ストアを返す。APIサーバー側のトークン検証に共有する。
func (s *Server) Store() *Store {
	return s.store
}

// Router はプロバイダーの全エンドポイントを構成したchi.Routerを返す。
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Route("/v1", func(r chi.Router) {
		r.Post("/accounts:signUp", s.requireKey(s.handleSignUp))
		r.Post("/accounts:signInWithPassword", s.requireKey(s.handleSignInWithPassword))
		r.Post("/accounts:update", s.requireKey(s.handleUpdate))
		r.Post("/accounts:sendOobCode", s.requireKey(s.handleSendOobCode))

		r.Get("/oauth/authorize", s.handleOAuthAuthorize)
		r.Post("/oauth/token", s.requireKey(s.handleOAuthToken))
	})

	return r
}

// credentialBody は認証系エンドポイントの成功レスポンス。
type credentialBody struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	IDToken     string `json:"idToken"`
	ExpiresIn   string `json:"expiresIn"`
}

// requireKey は?key=パラメータを検証するハンドラーラッパー。
func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.APIKey != "" && r.URL.Query().Get("key") != s.config.APIKey {
			writeProviderError(w, http.StatusBadRequest, "INVALID_API_KEY")
			return
		}
		next(w, r)
	}
}

// handleSignUp はアカウント作成を処理する。
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if !emailPattern.MatchString(req.Email) {
		writeProviderError(w, http.StatusBadRequest, identity.CodeInvalidEmail)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeProviderError(w, http.StatusBadRequest, identity.CodeWeakPassword)
		return
	}

	account, err := s.store.CreateAccount(req.Email, req.Password)
	if err != nil {
		if err == ErrEmailExists {
			writeProviderError(w, http.StatusBadRequest, identity.CodeEmailExists)
			return
		}
		s.logger.Error("failed to create account", slog.String("error", err.Error()))
		writeProviderError(w, http.StatusInternalServerError, "INTERNAL_ERROR")
		return
	}

	s.logger.Info("account created", slog.String("account_id", account.ID))
	s.writeCredential(w, account)
}

// handleSignInWithPassword はメール/パスワードのサインインを処理する。
// アカウントごとの試行レートを超えるとTOO_MANY_ATTEMPTS_TRY_LATERを返す。
func (s *Server) handleSignInWithPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	if !s.allowSignInAttempt(req.Email) {
		writeProviderError(w, http.StatusBadRequest, identity.CodeTooManyAttempts)
		return
	}

	account := s.store.FindByEmail(req.Email)
	if account == nil {
		writeProviderError(w, http.StatusBadRequest, identity.CodeEmailNotFound)
		return
	}
	if account.Disabled {
		writeProviderError(w, http.StatusBadRequest, identity.CodeUserDisabled)
		return
	}
	if account.Provider != "password" {
		writeProviderError(w, http.StatusBadRequest, identity.CodeAccountExistsWithDiffCred)
		return
	}
	if !s.store.CheckPassword(account, req.Password) {
		writeProviderError(w, http.StatusBadRequest, identity.CodeInvalidPassword)
		return
	}

	s.writeCredential(w, account)
}

// handleUpdate は表示名の更新を処理する。
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken     string `json:"idToken"`
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	accountID, err := s.store.Verify(r.Context(), req.IDToken)
	if err != nil {
		writeProviderError(w, http.StatusUnauthorized, "INVALID_ID_TOKEN")
		return
	}
	if err := s.store.UpdateDisplayName(accountID, req.DisplayName); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_ID_TOKEN")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"localId":     accountID,
		"displayName": req.DisplayName,
	})
}

// handleSendOobCode はパスワードリセットメールの送信要求を処理する。
// 実際のメール送信は行わず、ログに記録するだけ。
func (s *Server) handleSendOobCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestType string `json:"requestType"`
		Email       string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.RequestType != "PASSWORD_RESET" {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REQUEST_TYPE")
		return
	}

	if s.store.FindByEmail(req.Email) == nil {
		writeProviderError(w, http.StatusBadRequest, identity.CodeEmailNotFound)
		return
	}

	s.logger.Info("password reset requested", slog.String("email", req.Email))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"email": req.Email})
}

// handleOAuthAuthorize は同意フローの開始点。
// 本物のプロバイダーでは同意画面を表示するが、ここでは即座に同意済みとして
// 認可コードを返す。デモとテストの同意フローがこのコードを受け取る。
func (s *Server) handleOAuthAuthorize(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	if provider == "" {
		writeProviderError(w, http.StatusBadRequest, identity.CodeOperationNotAllowed)
		return
	}

	email := fmt.Sprintf("demo-%s@example.com", provider)
	code := s.store.IssueOAuthCode(provider, email, "Demo User")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"code": code})
}

// handleOAuthToken は認可コードを資格情報に引き換える。
func (s *Server) handleOAuthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	account := s.store.RedeemOAuthCode(req.Code)
	if account == nil {
		writeProviderError(w, http.StatusBadRequest, "INVALID_GRANT")
		return
	}
	if account.Disabled {
		writeProviderError(w, http.StatusBadRequest, identity.CodeUserDisabled)
		return
	}

	s.writeCredential(w, account)
}

// allowSignInAttempt はアカウントごとのサインイン試行を制限する。
func (s *Server) allowSignInAttempt(email string) bool {
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	limiter, ok := s.limiters[email]
	if !ok {
		limiter = rate.NewLimiter(s.config.SignInRate, s.config.SignInBurst)
		s.limiters[email] = limiter
	}
	return limiter.Allow()
}

// writeCredential はトークンを発行して資格情報レスポンスを書き込む。
func (s *Server) writeCredential(w http.ResponseWriter, account *Account) {
	token := s.store.IssueToken(account.ID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(credentialBody{
		LocalID:     account.ID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		IDToken:     token,
		ExpiresIn:   tokenExpirySeconds,
	})
}

// writeProviderError はidentity-toolkit形式のエラーレスポンスを書き込む。
// messageフィールドにプロバイダーのエラーコードをそのまま載せる。
func writeProviderError(w http.ResponseWriter, statusCode int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    statusCode,
			"message": code,
		},
	})
}
