package fakeapi

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/labelplay/internal/middleware"
	"github.com/hitoshi/labelplay/internal/model"
	"github.com/hitoshi/labelplay/internal/security"
	"github.com/hitoshi/labelplay/internal/validate"
)

// ServerConfig はfakeapiサーバーの設定。
type ServerConfig struct {
	UploadMaxSizeMB   int
	CORSAllowedOrigin string
}

// Server はバックエンドAPIのHTTPハンドラー群。
type Server struct {
	config    ServerConfig
	store     *Store
	verifier  middleware.TokenVerifier
	limiter   *middleware.RateLimiter
	guard     security.DatasetURLGuardService
	sanitizer security.DescriptionSanitizerService
	logger    *slog.Logger
}

// NewServer はServerを生成する。
func NewServer(config ServerConfig, store *Store, verifier middleware.TokenVerifier, limiter *middleware.RateLimiter, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		store:     store,
		verifier:  verifier,
		limiter:   limiter,
		guard:     security.NewDatasetURLGuard(),
		sanitizer: security.NewDescriptionSanitizer(),
		logger:    logger,
	}
}

// Router は全APIエンドポイントのルーティングとミドルウェアチェーンを構成した
// chi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → BearerAuth → RateLimit(General)
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(s.logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(s.config.CORSAllowedOrigin))

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewBearerAuthMiddleware(s.verifier))
		r.Use(s.limiter.GeneralMiddleware())

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.Post("/", s.handleCreateProject)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Patch("/", s.handlePatchProject)
				r.Delete("/", s.handleDeleteProject)
				r.Post("/task", s.handleCreateTask)
				r.Get("/download", s.handleDownload)
			})
		})

		// アップロードは専用のレート制限を重ねる
		r.With(s.limiter.UploadMiddleware()).Post("/api/upload", s.handleUpload)

		r.Get("/api/dashboard/{id}", s.handleDashboard)

		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/", s.handleGetMe)
			r.Patch("/", s.handlePatchMe)
		})
	})

	return r
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	projects := s.store.ListProjects(userID)
	if projects == nil {
		projects = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var p model.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectError("malformed body"))
		return
	}

	if res := validate.ProjectName(p.Name); !res.Valid {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectError(res.Message))
		return
	}
	if res := validate.Description(p.Description); !res.Valid {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectError(res.Message))
		return
	}

	p.ID = uuid.NewString()
	p.Description = s.sanitizer.Sanitize(p.Description)
	p.CreatedAt = time.Now().UTC()
	if p.Status == "" {
		p.Status = model.ProjectStatusDraft
	}
	p.TotalItems = 0
	p.LabeledItems = 0
	p.Quality = 0

	s.store.CreateProject(userID, p)
	s.logger.Info("project created",
		slog.String("project_id", p.ID),
		slog.String("user_id", userID),
	)
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p := s.store.GetProject(userID, id)
	if p == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePatchProject(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var patch model.ProjectPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectError("malformed body"))
		return
	}

	current := s.store.GetProject(userID, id)
	if current == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}

	// 不変条件: LabeledItems <= TotalItems
	preview := *current
	patch.Apply(&preview)
	if preview.LabeledItems > preview.TotalItems {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidItemCountError(preview.LabeledItems, preview.TotalItems))
		return
	}
	if patch.Name != nil {
		if res := validate.ProjectName(*patch.Name); !res.Valid {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectError(res.Message))
			return
		}
	}
	if patch.Description != nil {
		if res := validate.Description(*patch.Description); !res.Valid {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidProjectError(res.Message))
			return
		}
		sanitized := s.sanitizer.Sanitize(*patch.Description)
		patch.Description = &sanitized
	}

	updated := s.store.PatchProject(userID, id, patch)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if !s.store.DeleteProject(userID, id) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	if s.store.GetProject(userID, projectID) == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(projectID))
		return
	}

	var task model.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidTaskError("malformed body"))
		return
	}
	if strings.TrimSpace(task.Question) == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidTaskError("question is required"))
		return
	}
	if len(task.Options) < 2 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidTaskError("at least 2 options are required"))
		return
	}
	if task.DataType == "image" && task.DataValue != "" {
		if err := s.guard.ValidateDataURL(task.DataValue); err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnsafeDataURLError(task.DataValue))
			return
		}
	}

	task.ID = uuid.NewString()
	task.ProjectID = projectID
	s.store.AddTask(projectID, task)
	writeJSON(w, http.StatusCreated, task)
}

// handleUpload はデータセットのmultipartアップロードを処理する。
// サイズと拡張子を検証し、行内のURLをすべてSSRFガードに通してから保存する。
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	maxBytes := int64(s.config.UploadMaxSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+(1<<20)) // multipart境界ぶんの余裕

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
			model.NewFileTooLargeError(s.config.UploadMaxSizeMB))
		return
	}

	projectID := r.FormValue("project_id")
	if s.store.GetProject(userID, projectID) == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(projectID))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidFileTypeError(""))
		return
	}
	defer file.Close()

	if res := validate.FileType(header.Filename); !res.Valid {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidFileTypeError(strings.ToLower(header.Filename)))
		return
	}
	if res := validate.FileSize(header.Size, s.config.UploadMaxSizeMB); !res.Valid {
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
			model.NewFileTooLargeError(s.config.UploadMaxSizeMB))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.logger.Error("failed to read upload", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	itemCount, badURL := s.scanDataset(header.Filename, data)
	if badURL != "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewUnsafeDataURLError(badURL))
		return
	}

	s.store.SaveDataset(projectID, data, itemCount)
	s.logger.Info("dataset uploaded",
		slog.String("project_id", projectID),
		slog.String("user_id", userID),
		slog.Int("item_count", itemCount),
		slog.Int64("bytes", header.Size),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"project_id": projectID,
		"item_count": itemCount,
	})
}

// scanDataset はデータセットの行数を数え、行内URLの安全性を検証する。
// 危険なURLを見つけた場合はそのURLを返す。
func (s *Server) scanDataset(filename string, data []byte) (itemCount int, badURL string) {
	if strings.HasSuffix(strings.ToLower(filename), ".json") {
		var rows []map[string]string
		if err := json.Unmarshal(data, &rows); err != nil {
			return 0, ""
		}
		for _, row := range rows {
			for _, value := range row {
				if isURLLike(value) {
					if err := s.guard.ValidateDataURL(value); err != nil {
						return 0, value
					}
				}
			}
		}
		return len(rows), ""
	}

	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return 0, ""
	}
	count := 0
	for i, record := range records {
		// 先頭行はヘッダーとして数えない
		if i == 0 {
			continue
		}
		count++
		for _, field := range record {
			if isURLLike(field) {
				if err := s.guard.ValidateDataURL(field); err != nil {
					return 0, field
				}
			}
		}
	}
	return count, ""
}

// isURLLike はフィールドがURLとして検証すべき値かを判定する。
func isURLLike(value string) bool {
	lower := strings.ToLower(strings.TrimSpace(value))
	return strings.Contains(lower, "://")
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	p := s.store.GetProject(userID, id)
	if p == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}

	writeJSON(w, http.StatusOK, model.DashboardStats{
		ProjectID:     p.ID,
		TotalItems:    p.TotalItems,
		LabeledItems:  p.LabeledItems,
		Quality:       p.Quality,
		ActivePlayers: 0,
		UpdatedAt:     time.Now().UTC(),
	})
}

// handleDownload はアップロード済みデータセットをそのまま返す。
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if s.store.GetProject(userID, id) == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewProjectNotFoundError(id))
		return
	}

	data := s.store.Dataset(id)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename=export.csv")
	w.Write(data)
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.store.Profile(userID))
}

func (s *Server) handlePatchMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var patch model.ProfilePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewProfileNotFoundError())
		return
	}
	if patch.DisplayName != nil {
		sanitized := validate.SanitizeInput(*patch.DisplayName)
		if !validate.DisplayName(sanitized) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewProfileNotFoundError())
			return
		}
		patch.DisplayName = &sanitized
	}

	writeJSON(w, http.StatusOK, s.store.PatchProfile(userID, patch))
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
