// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Identity Provider
	IdentityBaseURL string
	IdentityAPIKey  string

	// Labeling API
	APIBaseURL string
	APITimeout time.Duration

	// Local State
	LocalStatePath string

	// Game
	DailyGoal            int
	ProgressSyncInterval time.Duration

	// Dashboard
	DashboardPollInterval time.Duration

	// Upload
	UploadMaxSizeMB int

	// Rate Limit
	RateLimitGeneral int
	RateLimitUpload  int

	// Server（デモ/開発用バックエンド）
	ServerPort        string
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.IdentityBaseURL = os.Getenv("IDENTITY_BASE_URL")
	if cfg.IdentityBaseURL == "" {
		missing = append(missing, "IDENTITY_BASE_URL")
	}

	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	if cfg.IdentityAPIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}

	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.APITimeout = getEnvDuration("API_TIMEOUT", 30*time.Second)
	cfg.LocalStatePath = getEnvString("LOCAL_STATE_PATH", "labelplay.db")
	cfg.DailyGoal = getEnvInt("DAILY_GOAL", 20)
	cfg.ProgressSyncInterval = getEnvDuration("PROGRESS_SYNC_INTERVAL", 30*time.Second)
	cfg.DashboardPollInterval = getEnvDuration("DASHBOARD_POLL_INTERVAL", 10*time.Second)
	cfg.UploadMaxSizeMB = getEnvInt("UPLOAD_MAX_SIZE_MB", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
