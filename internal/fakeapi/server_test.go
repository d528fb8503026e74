package fakeapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/labelplay/internal/apiclient"
	"github.com/hitoshi/labelplay/internal/middleware"
	"github.com/hitoshi/labelplay/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// staticVerifier はトークンとユーザーIDの固定対応表。
type staticVerifier map[string]string

func (v staticVerifier) Verify(ctx context.Context, token string) (string, error) {
	userID, ok := v[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userID, nil
}

// staticTokens は常に同じトークンを返すTokenSource。
type staticTokens string

func (t staticTokens) IDToken(ctx context.Context) (string, error) {
	return string(t), nil
}

// setupClient はfakeapiサーバーとそれを指すapiclient.Clientを用意する。
func setupClient(t *testing.T, token string) (*apiclient.Client, *Store) {
	t.Helper()

	store := NewStore()
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    1000,
		UploadRate:      rate.Limit(1000),
		UploadBurst:     1000,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(limiter.Stop)

	verifier := staticVerifier{
		"token-user1": "user-1",
		"token-user2": "user-2",
	}
	server := NewServer(ServerConfig{UploadMaxSizeMB: 10}, store, verifier, limiter, testLogger())
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	client := apiclient.NewClient(apiclient.Config{BaseURL: ts.URL}, staticTokens(token), testLogger())
	return client, store
}

// TestCreateAndListProjects はプロジェクト作成と一覧取得の往復を検証する。
func TestCreateAndListProjects(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{
		Name:        "動物画像の分類",
		Description: "犬と猫の画像を分類するプロジェクト",
		Type:        model.ProjectTypeImageClassification,
	})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	if created.ID == "" {
		t.Error("expected server-assigned project ID")
	}
	if created.Status != model.ProjectStatusDraft {
		t.Errorf("Status = %q, want draft", created.Status)
	}

	projects, err := client.ListProjects(ctx)
	if err != nil {
		t.Fatalf("ListProjects returned error: %v", err)
	}
	if len(projects) != 1 || projects[0].ID != created.ID {
		t.Errorf("ListProjects = %+v, want single project %s", projects, created.ID)
	}
}

// TestCreateProject_SanitizesDescription は説明文のHTMLが無害化されることを検証する。
func TestCreateProject_SanitizesDescription(t *testing.T) {
	client, _ := setupClient(t, "token-user1")

	created, err := client.CreateProject(context.Background(), model.Project{
		Name:        "サニタイズ検証",
		Description: "<p>説明</p><script>alert(1)</script>",
	})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}
	if strings.Contains(created.Description, "script") {
		t.Errorf("Description = %q, script tag should be removed", created.Description)
	}
	if !strings.Contains(created.Description, "<p>説明</p>") {
		t.Errorf("Description = %q, formatting should be kept", created.Description)
	}
}

// TestCreateProject_InvalidName は短すぎる名前が拒否されることを検証する。
func TestCreateProject_InvalidName(t *testing.T) {
	client, _ := setupClient(t, "token-user1")

	_, err := client.CreateProject(context.Background(), model.Project{Name: "ab"})
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", statusErr.StatusCode)
	}
	if statusErr.APIErr.Code != model.ErrCodeInvalidProject {
		t.Errorf("Code = %q, want %q", statusErr.APIErr.Code, model.ErrCodeInvalidProject)
	}
}

// TestPatchProject_ItemCountInvariant はラベル済み件数が総件数を超える更新が
// 拒否されることを検証する。
func TestPatchProject_ItemCountInvariant(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "件数検証プロジェクト"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	total := 10
	labeled := 11
	_, err = client.UpdateProject(ctx, created.ID, model.ProjectPatch{
		TotalItems:   &total,
		LabeledItems: &labeled,
	})
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.APIErr.Code != model.ErrCodeInvalidItemCount {
		t.Errorf("Code = %q, want %q", statusErr.APIErr.Code, model.ErrCodeInvalidItemCount)
	}

	// 有効な範囲内の更新は通る
	labeled = 5
	updated, err := client.UpdateProject(ctx, created.ID, model.ProjectPatch{
		TotalItems:   &total,
		LabeledItems: &labeled,
	})
	if err != nil {
		t.Fatalf("valid patch returned error: %v", err)
	}
	if updated.LabeledItems != 5 || updated.TotalItems != 10 {
		t.Errorf("updated = %d/%d, want 5/10", updated.LabeledItems, updated.TotalItems)
	}
}

// TestGetProject_NotFound は未知のIDが404になることを検証する。
func TestGetProject_NotFound(t *testing.T) {
	client, _ := setupClient(t, "token-user1")

	_, err := client.GetProject(context.Background(), "no-such-id")
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", statusErr.StatusCode)
	}
	if statusErr.APIErr.Code != model.ErrCodeProjectNotFound {
		t.Errorf("Code = %q, want %q", statusErr.APIErr.Code, model.ErrCodeProjectNotFound)
	}
}

// TestDeleteProject は削除後に取得できないことを検証する。
func TestDeleteProject(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "削除対象プロジェクト"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	if err := client.DeleteProject(ctx, created.ID); err != nil {
		t.Fatalf("DeleteProject returned error: %v", err)
	}

	_, err = client.GetProject(ctx, created.ID)
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %v", err)
	}
}

// TestOwnerIsolation は他ユーザーのプロジェクトが見えないことを検証する。
func TestOwnerIsolation(t *testing.T) {
	client1, store := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client1.CreateProject(ctx, model.Project{Name: "ユーザー1のプロジェクト"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	if p := store.GetProject("user-2", created.ID); p != nil {
		t.Error("expected other user's project to be invisible")
	}
	projects := store.ListProjects("user-2")
	if len(projects) != 0 {
		t.Errorf("ListProjects for user-2 = %d projects, want 0", len(projects))
	}
}

// TestUploadAndDownload はデータセットのアップロードとダウンロードの往復を検証する。
func TestUploadAndDownload(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "アップロード検証"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	csvData := "text,label\nこの映画は最高,positive\nひどい内容だった,negative\n"
	var lastSent, lastTotal int64
	err = client.Upload(ctx, created.ID, "dataset.csv", strings.NewReader(csvData),
		func(sent, total int64) {
			lastSent, lastTotal = sent, total
		})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if lastSent != lastTotal || lastTotal == 0 {
		t.Errorf("progress ended at %d/%d, want complete", lastSent, lastTotal)
	}

	// ヘッダー行を除いた2件が加算される
	p, err := client.GetProject(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetProject returned error: %v", err)
	}
	if p.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", p.TotalItems)
	}

	data, err := client.Download(ctx, created.ID)
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if string(data) != csvData {
		t.Errorf("downloaded data mismatch: %q", string(data))
	}
}

// TestUpload_InvalidFileType は非対応拡張子が拒否されることを検証する。
func TestUpload_InvalidFileType(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "拡張子検証"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	err = client.Upload(ctx, created.ID, "dataset.exe", strings.NewReader("data"), nil)
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.APIErr.Code != model.ErrCodeInvalidFileType {
		t.Errorf("Code = %q, want %q", statusErr.APIErr.Code, model.ErrCodeInvalidFileType)
	}
}

// TestUpload_UnsafeURL はデータセット内の内部ネットワークURLが拒否されることを検証する。
func TestUpload_UnsafeURL(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "URL検証"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	csvData := "image_url,label\nhttp://169.254.169.254/meta,cat\n"
	err = client.Upload(ctx, created.ID, "dataset.csv", strings.NewReader(csvData), nil)
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.APIErr.Code != model.ErrCodeUnsafeDataURL {
		t.Errorf("Code = %q, want %q", statusErr.APIErr.Code, model.ErrCodeUnsafeDataURL)
	}
}

// TestCreateTask はタスク定義の作成とバリデーションを検証する。
func TestCreateTask(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "タスク定義検証"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	task, err := client.CreateTask(ctx, created.ID, model.Task{
		Question: "この画像の動物は？",
		DataType: "text",
		Options: []model.TaskOption{
			{Label: "犬", Emoji: "🐕"},
			{Label: "猫", Emoji: "🐈"},
		},
	})
	if err != nil {
		t.Fatalf("CreateTask returned error: %v", err)
	}
	if task.ID == "" || task.ProjectID != created.ID {
		t.Errorf("task = %+v, want server-assigned ID and project ID", task)
	}

	// 選択肢1つでは拒否される
	_, err = client.CreateTask(ctx, created.ID, model.Task{
		Question: "選択肢不足",
		Options:  []model.TaskOption{{Label: "のみ"}},
	})
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.APIErr.Code != model.ErrCodeInvalidTask {
		t.Errorf("Code = %q, want %q", statusErr.APIErr.Code, model.ErrCodeInvalidTask)
	}
}

// TestDashboard は集計統計の取得を検証する。
func TestDashboard(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	created, err := client.CreateProject(ctx, model.Project{Name: "統計検証プロジェクト"})
	if err != nil {
		t.Fatalf("CreateProject returned error: %v", err)
	}

	total := 100
	labeled := 42
	if _, err := client.UpdateProject(ctx, created.ID, model.ProjectPatch{
		TotalItems:   &total,
		LabeledItems: &labeled,
	}); err != nil {
		t.Fatalf("UpdateProject returned error: %v", err)
	}

	stats, err := client.Dashboard(ctx, created.ID)
	if err != nil {
		t.Fatalf("Dashboard returned error: %v", err)
	}
	if stats.ProjectID != created.ID || stats.TotalItems != 100 || stats.LabeledItems != 42 {
		t.Errorf("stats = %+v, want 42/100 for %s", stats, created.ID)
	}
}

// TestProfileRoundtrip はプロフィールの取得と部分更新を検証する。
func TestProfileRoundtrip(t *testing.T) {
	client, _ := setupClient(t, "token-user1")
	ctx := context.Background()

	profile, err := client.Me(ctx)
	if err != nil {
		t.Fatalf("Me returned error: %v", err)
	}
	if profile.ID != "user-1" {
		t.Errorf("ID = %q, want user-1", profile.ID)
	}

	name := "ラベル職人"
	score := 340
	updated, err := client.UpdateMe(ctx, model.ProfilePatch{
		DisplayName: &name,
		Score:       &score,
	})
	if err != nil {
		t.Fatalf("UpdateMe returned error: %v", err)
	}
	if updated.DisplayName != "ラベル職人" || updated.Score != 340 {
		t.Errorf("updated = %+v, want patched fields applied", updated)
	}
}

// TestUnauthorizedToken は不正トークンで401フックが呼ばれることを検証する。
func TestUnauthorizedToken(t *testing.T) {
	store := NewStore()
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	server := NewServer(ServerConfig{UploadMaxSizeMB: 10}, store,
		staticVerifier{}, limiter, testLogger())
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	hookCalled := false
	client := apiclient.NewClient(apiclient.Config{
		BaseURL:        ts.URL,
		OnUnauthorized: func() { hookCalled = true },
	}, staticTokens("forged"), testLogger())

	_, err := client.ListProjects(context.Background())
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
	if !hookCalled {
		t.Error("expected OnUnauthorized hook to be invoked")
	}
}
