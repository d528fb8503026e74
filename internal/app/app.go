// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/labelplay/internal/apiclient"
	"github.com/hitoshi/labelplay/internal/clock"
	"github.com/hitoshi/labelplay/internal/config"
	"github.com/hitoshi/labelplay/internal/fakeapi"
	"github.com/hitoshi/labelplay/internal/fakeidp"
	"github.com/hitoshi/labelplay/internal/game"
	"github.com/hitoshi/labelplay/internal/identity"
	"github.com/hitoshi/labelplay/internal/localstate"
	"github.com/hitoshi/labelplay/internal/logger"
	"github.com/hitoshi/labelplay/internal/metrics"
	"github.com/hitoshi/labelplay/internal/middleware"
	"github.com/hitoshi/labelplay/internal/model"
	"github.com/hitoshi/labelplay/internal/project"
	"github.com/hitoshi/labelplay/internal/session"
	"github.com/hitoshi/labelplay/internal/worker/cleanup"
	"github.com/hitoshi/labelplay/internal/worker/progresssync"
	"github.com/hitoshi/labelplay/internal/worker/statspoll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	// demo は自己完結モードのため、環境変数の必須チェックをスキップする
	if cmd == CommandDemo {
		logger.SetupDefault(w)
		return runDemo()
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// buildBackend は開発用バックエンドのHTTPハンドラーを構築する。
// IDプロバイダー（/v1）とラベリングAPI（/api）が1プロセスに同居し、
// IDプロバイダーが発行したトークンをAPI側の認証で共有する。
func buildBackend(cfg *config.Config, registry *prometheus.Registry) http.Handler {
	idpStore := fakeidp.NewStore()
	idpServer := fakeidp.NewServer(fakeidp.DefaultServerConfig(cfg.IdentityAPIKey), idpStore, slog.Default())

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(cfg.RateLimitGeneral) / 60.0),
		GeneralBurst:    cfg.RateLimitGeneral,
		UploadRate:      rate.Limit(float64(cfg.RateLimitUpload) / 60.0),
		UploadBurst:     cfg.RateLimitUpload,
		CleanupInterval: 5 * time.Minute,
	})

	apiServer := fakeapi.NewServer(fakeapi.ServerConfig{
		UploadMaxSizeMB:   cfg.UploadMaxSizeMB,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
	}, fakeapi.NewStore(), idpStore, limiter, slog.Default())

	mux := http.NewServeMux()
	mux.Handle("/v1/", idpServer.Router())
	mux.Handle("/api/", apiServer.Router())
	mux.Handle("/metrics", metrics.SetupMetricsRoute(registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	return mux
}

// runServe は開発用バックエンドを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	handler := buildBackend(cfg, registry)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("backend server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down backend server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("backend server stopped gracefully")
	return nil
}

// demoRounds はデモモードで回答するタスク数。
const demoRounds = 6

// autoConsentFlow は認可URLを叩いてコードを受け取る非対話の同意フロー。
// デモモードでのみ使用する。
type autoConsentFlow struct{}

func (autoConsentFlow) Open(ctx context.Context, authorizeURL string) (string, error) {
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

// runDemo はバックエンドを内蔵起動し、クライアントコアの一連の操作を実行する。
// サインアップからプロジェクト作成、データセットアップロード、
// ラベリングプレイ、進捗同期までを通しで流す。
func runDemo() error {
	// 1. ローカル状態DBの準備
	statePath := filepath.Join(os.TempDir(), "labelplay-demo.db")
	if err := localstate.RunMigrations(statePath); err != nil {
		return fmt.Errorf("failed to migrate local state: %w", err)
	}
	db, err := localstate.Open(statePath)
	if err != nil {
		return fmt.Errorf("failed to open local state: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if err := cleanup.NewCleanupJob(db, slog.Default()).Run(ctx); err != nil {
		slog.Warn("local state cleanup failed", slog.String("error", err.Error()))
	}

	// 2. バックエンドの内蔵起動
	cfg := &config.Config{
		IdentityAPIKey:    "demo-key",
		UploadMaxSizeMB:   50,
		RateLimitGeneral:  120,
		RateLimitUpload:   10,
		CORSAllowedOrigin: "http://localhost:3000",
		DailyGoal:         20,
	}
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	server := &http.Server{Handler: buildBackend(cfg, registry)}
	go server.Serve(ln)
	defer server.Shutdown(context.Background())

	baseURL := "http://" + ln.Addr().String()
	slog.Info("demo backend started", slog.String("base_url", baseURL))

	// 3. 認証セッション
	provider := identity.NewRESTProvider(identity.RESTProviderConfig{
		BaseURL: baseURL,
		APIKey:  cfg.IdentityAPIKey,
	}, autoConsentFlow{})

	sessionMgr := session.NewManager(provider, clock.New())
	sessionMgr.Start()
	defer sessionMgr.Close()

	err = sessionMgr.SignUpWithPassword(ctx, "demo@example.com", "demo-pass-123", "デモプレイヤー")
	collector.RecordAuthOutcome("sign_up", err == nil)
	if err != nil {
		return fmt.Errorf("demo sign-up failed: %w", err)
	}
	snap := sessionMgr.Snapshot()
	slog.Info("signed up", slog.String("user_id", snap.Session.UserID))

	// 4. プロジェクト作成とデータセットアップロード
	client := apiclient.NewClient(apiclient.Config{BaseURL: baseURL}, sessionMgr, slog.Default())

	store := project.NewStore(localstate.NewSelectionSlot(db))

	created, err := client.CreateProject(ctx, model.Project{
		Name:        "デモ: 動物画像の分類",
		Description: "デモ用のサンプルプロジェクト",
		Type:        model.ProjectTypeImageClassification,
		Icon:        "🐾",
	})
	if err != nil {
		return fmt.Errorf("demo project creation failed: %w", err)
	}
	store.Add(*created)
	store.Select(*created)

	csvData := "text,label\nこの映画は最高だった,positive\n退屈で眠くなった,negative\n普通の出来,neutral\n"
	err = client.Upload(ctx, created.ID, "demo-dataset.csv", strings.NewReader(csvData),
		func(sent, total int64) {
			collector.RecordUploadBytes(sent)
		})
	if err != nil {
		return fmt.Errorf("demo upload failed: %w", err)
	}

	// 5. ラベリングプレイ
	machine := game.NewMachine(game.SampleTasks(), game.NewDemoJudge(time.Now().UnixNano()), cfg.DailyGoal, clock.New())
	defer machine.Close()

	for i := 0; i < demoRounds; i++ {
		task := machine.CurrentTask()
		if len(task.Options) == 0 {
			break
		}
		prevStreak := machine.Counters().Streak
		machine.SubmitAnswer(task.Options[0].Label)

		progress := machine.Counters()
		correct := progress.Streak > prevStreak
		collector.RecordAnswer(correct)
		if correct && progress.Streak%5 == 0 {
			collector.RecordStreakBonus()
		}
		slog.Info("answered task",
			slog.String("question", task.Question),
			slog.Int("score", progress.Score),
			slog.Int("streak", progress.Streak),
		)

		// フィードバック表示と次タスクへの送りを実時間で待つ
		time.Sleep(1600 * time.Millisecond)
	}

	// 6. バックグラウンド同期を1サイクルずつ実行
	if err := statspoll.NewPoller(client, store, slog.Default()).RunOnce(ctx); err != nil {
		slog.Warn("stats poll failed", slog.String("error", err.Error()))
	}
	if err := progresssync.NewSyncer(machine, client, slog.Default()).RunOnce(ctx); err != nil {
		slog.Warn("progress sync failed", slog.String("error", err.Error()))
	}

	// 7. 最終結果
	profile, err := client.Me(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch final profile: %w", err)
	}
	final := machine.Counters()
	slog.Info("demo completed",
		slog.Int("score", final.Score),
		slog.Int("best_streak", final.BestStreak),
		slog.Int("tasks_completed", final.TasksCompleted),
		slog.Float64("daily_progress_pct", machine.ProgressPercent()),
		slog.Int("profile_score", profile.Score),
	)

	return nil
}

// runMigrate はローカル状態DBのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running local state migrations",
		slog.String("path", cfg.LocalStatePath),
	)

	if err := localstate.RunMigrations(cfg.LocalStatePath); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("local state migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
