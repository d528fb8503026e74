// Package apiclient はバックエンドREST APIの薄いHTTPラッパーを提供する。
// リクエストごとにセッションから新しいIDトークンを取得してBearerヘッダーに載せ、
// ステータスコードをユーザー向けエラーにマッピングする。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/labelplay/internal/model"
)

// defaultTimeout はAPIリクエストのデフォルトタイムアウト。
const defaultTimeout = 30 * time.Second

// TokenSource はリクエストごとのIDトークン供給源を抽象化する。
// セッションマネージャーがこのインターフェースを満たす。
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// StatusError はAPIのエラーレスポンスを表す。
// サーバーが統一エラーフォーマットを返した場合はAPIErrをセットする。
type StatusError struct {
	StatusCode int
	APIErr     *model.APIError
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.APIErr != nil {
		return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.APIErr.Message)
	}
	return fmt.Sprintf("api returned status %d", e.StatusCode)
}

// Config はClientの設定。
type Config struct {
	BaseURL string
	Timeout time.Duration

	// OnUnauthorized は401レスポンス受信時に呼び出される。
	// ログイン画面へのリダイレクトをここに差し込む。nil可。
	OnUnauthorized func()

	// テスト用にオーバーライド可能なHTTPクライアント
	HTTPClient *http.Client
}

// Client はREST APIクライアント。
// リトライは行わない。429と500はログに記録してエラーとして返すだけで、
// バックオフ付き再試行は呼び出し元にも課さない。
type Client struct {
	baseURL        string
	httpClient     *http.Client
	tokens         TokenSource
	logger         *slog.Logger
	onUnauthorized func()
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(config Config, tokens TokenSource, logger *slog.Logger) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:        strings.TrimSuffix(config.BaseURL, "/"),
		httpClient:     httpClient,
		tokens:         tokens,
		logger:         logger,
		onUnauthorized: config.OnUnauthorized,
	}
}

// ListProjects は現在のユーザーのプロジェクト一覧を取得する。
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject はプロジェクトを1件取得する。
func (c *Client) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject はプロジェクトを作成し、サーバーが採番した結果を返す。
func (c *Client) CreateProject(ctx context.Context, p model.Project) (*model.Project, error) {
	var created model.Project
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects", p, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateProject はプロジェクトを部分更新し、更新後の全体を返す。
func (c *Client) UpdateProject(ctx context.Context, id string, patch model.ProjectPatch) (*model.Project, error) {
	var updated model.Project
	if err := c.doJSON(ctx, http.MethodPatch, "/api/projects/"+url.PathEscape(id), patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteProject はプロジェクトを削除する。
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

// CreateTask はプロジェクトにラベリングタスク定義を作成する。
func (c *Client) CreateTask(ctx context.Context, projectID string, task model.Task) (*model.Task, error) {
	var created model.Task
	path := "/api/projects/" + url.PathEscape(projectID) + "/task"
	if err := c.doJSON(ctx, http.MethodPost, path, task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Dashboard はプロジェクトの集計統計を取得する。
func (c *Client) Dashboard(ctx context.Context, projectID string) (*model.DashboardStats, error) {
	var stats model.DashboardStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/dashboard/"+url.PathEscape(projectID), nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Me は現在のユーザーのプロフィールを取得する。
func (c *Client) Me(ctx context.Context) (*model.Profile, error) {
	var p model.Profile
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/me", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateMe は現在のユーザーのプロフィールを部分更新する。
func (c *Client) UpdateMe(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error) {
	var p model.Profile
	if err := c.doJSON(ctx, http.MethodPatch, "/api/users/me", patch, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UploadProgress はアップロードの進捗コールバック。
type UploadProgress func(sent, total int64)

// Upload はデータセットファイルをmultipartでアップロードする。
// progressはnil可で、送信済みバイト数を随時通知する。
func (c *Client) Upload(ctx context.Context, projectID, filename string, file io.Reader, progress UploadProgress) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("project_id", projectID); err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("failed to read upload file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish multipart body: %w", err)
	}

	body := io.Reader(&buf)
	if progress != nil {
		body = &progressReader{r: &buf, total: int64(buf.Len()), report: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.checkStatus(resp)
}

// Download はプロジェクトのエクスポートをバイナリで取得する。
func (c *Client) Download(ctx context.Context, projectID string) ([]byte, error) {
	path := "/api/projects/" + url.PathEscape(projectID) + "/download"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return nil, err
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}
	return blob, nil
}

// doJSON はJSONリクエストを送り、レスポンスをoutにデコードする。
// outがnilの場合はボディを破棄する。
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}

// send はIDトークンを付与してリクエストを実行する。
// トークンはリクエストごとにセッションから新しく取得する。
func (c *Client) send(req *http.Request) (*http.Response, error) {
	token, err := c.tokens.IDToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("failed to get id token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("api request failed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("api request failed: %w", err)
	}
	return resp, nil
}

// checkStatus はエラーステータスをStatusErrorに変換する。
// 401は未認証フックを呼び出す。429と500はログに記録するだけで再試行しない。
func (c *Client) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	statusErr := &StatusError{StatusCode: resp.StatusCode}

	var body struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Category string `json:"category"`
		Action   string `json:"action"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Code != "" {
		statusErr.APIErr = &model.APIError{
			Code:     body.Code,
			Message:  body.Message,
			Category: body.Category,
			Action:   body.Action,
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		c.logger.Warn("api returned unauthorized, redirecting to login",
			slog.String("path", resp.Request.URL.Path),
		)
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	case http.StatusTooManyRequests:
		c.logger.Warn("api rate limit hit, not retrying",
			slog.String("path", resp.Request.URL.Path),
		)
	case http.StatusInternalServerError:
		c.logger.Error("api returned internal server error",
			slog.String("path", resp.Request.URL.Path),
		)
	}

	return statusErr
}

// progressReader は読み取り済みバイト数をコールバックに通知するReader。
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	report UploadProgress
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.sent += int64(n)
		p.report(p.sent, p.total)
	}
	return n, err
}
