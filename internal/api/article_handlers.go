// Package api provides HTTP API handlers for the Scribe ranking service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/scribeworks/scribe/internal/article"
	"github.com/scribeworks/scribe/internal/invalidation"
	"github.com/scribeworks/scribe/internal/middleware"
	"github.com/scribeworks/scribe/internal/rank"
)

// Hot list query bounds.
const (
	DefaultHotLimit = 10
	MaxHotLimit     = 100
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// InvalidationPublisher is the slice of the invalidation bus the handlers
// need: the delayed double delete for like/favorite status cache keys.
type InvalidationPublisher interface {
	PublishDoubleDelete(cacheKey string, delay time.Duration)
}

// ActionRequest is the request body for reader action endpoints
// (view, like, comment, favorite).
type ActionRequest struct {
	UserID int64 `json:"user_id"`
}

// ScoresResponse is the per-period score breakdown for one article.
type ScoresResponse struct {
	ArticleID int64              `json:"article_id"`
	Scores    map[string]float64 `json:"scores"`
}

// ArticleHandlers holds dependencies for article ranking HTTP handlers.
type ArticleHandlers struct {
	engine      *rank.Engine
	articles    article.Reader
	bus         InvalidationPublisher
	deleteDelay time.Duration
	logger      *slog.Logger
}

// NewArticleHandlers creates a new ArticleHandlers instance. bus may be nil,
// in which case action endpoints skip cache invalidation.
func NewArticleHandlers(engine *rank.Engine, articles article.Reader, bus InvalidationPublisher, deleteDelay time.Duration, logger *slog.Logger) *ArticleHandlers {
	if deleteDelay <= 0 {
		deleteDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleHandlers{
		engine:      engine,
		articles:    articles,
		bus:         bus,
		deleteDelay: deleteDelay,
		logger:      logger,
	}
}

// HotArticles handles GET /api/articles/hot - the ranked hot list.
//
// Query parameters:
//   - limit: number of articles to return (default 10, max 100)
//   - period: ranking window, one of "all", "day", "week" (default "day")
func (h *ArticleHandlers) HotArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	limit := DefaultHotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > MaxHotLimit {
		limit = MaxHotLimit
	}

	period := rank.ParsePeriod(r.URL.Query().Get("period"))

	ranked, err := h.engine.HotArticles(r.Context(), limit, period)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load hot articles")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"period":   string(period),
		"articles": ranked,
	})
}

// HotArticlesPage handles GET /api/articles/hot/page - the paginated hot list.
//
// Query parameters:
//   - page: 1-based page number (default 1)
//   - size: page size (default 20, max 100)
//   - period: ranking window, one of "all", "day", "week" (default "day")
func (h *ArticleHandlers) HotArticlesPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "page must be a positive integer")
			return
		}
		page = n
	}

	size := DefaultPageSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "size must be a positive integer")
			return
		}
		size = n
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	period := rank.ParsePeriod(r.URL.Query().Get("period"))

	result, err := h.engine.HotArticlesPage(r.Context(), page, size, period)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load hot articles page")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, result)
}

// HandleArticle dispatches /api/articles/{id}/{action} requests:
//
//	GET    /api/articles/{id}/scores   - per-period scores
//	POST   /api/articles/{id}/view     - record a view
//	POST   /api/articles/{id}/like     - record a like
//	DELETE /api/articles/{id}/like     - retract a like
//	POST   /api/articles/{id}/comment  - record a comment
//	DELETE /api/articles/{id}/comment  - retract a comment
//	POST   /api/articles/{id}/favorite - record a favorite
//	DELETE /api/articles/{id}/favorite - retract a favorite
func (h *ArticleHandlers) HandleArticle(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/articles/"), "/")
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
		return
	}

	articleID, err := strconv.ParseInt(pathParts[0], 10, 64)
	if err != nil || articleID < 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "article id must be a positive integer")
		return
	}

	action := pathParts[1]
	if action == "scores" {
		h.scores(w, r, articleID)
		return
	}

	switch action {
	case "view", "like", "comment", "favorite":
		h.action(w, r, articleID, action)
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Not found")
	}
}

// scores handles GET /api/articles/{id}/scores.
func (h *ArticleHandlers) scores(w http.ResponseWriter, r *http.Request, articleID int64) {
	if r.Method != http.MethodGet {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	if _, err := h.articles.GetByID(r.Context(), articleID); err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	scores := make(map[string]float64, 3)
	for _, p := range []rank.Period{rank.PeriodAllTime, rank.PeriodDay, rank.PeriodWeek} {
		scores[string(p)] = h.engine.Scores(r.Context(), []int64{articleID}, p)[articleID]
	}

	writeJSON(w, h.logger, http.StatusOK, ScoresResponse{
		ArticleID: articleID,
		Scores:    scores,
	})
}

// action handles the reader action endpoints. POST records the action,
// DELETE retracts it (views and one-off actions only support POST).
func (h *ArticleHandlers) action(w http.ResponseWriter, r *http.Request, articleID int64, action string) {
	retract := false
	switch r.Method {
	case http.MethodPost:
	case http.MethodDelete:
		if action == "view" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
			WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Views cannot be retracted")
			return
		}
		retract = true
	default:
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeMethodNotAllowed)
		WriteError(w, ctx, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
		return
	}

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}
	if req.UserID < 1 {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "user_id is required")
		return
	}

	a, err := h.articles.GetByID(r.Context(), articleID)
	if err != nil {
		h.writeLookupError(w, r, err)
		return
	}

	ctx := r.Context()
	switch action {
	case "view":
		h.engine.IncrementViewScore(ctx, articleID, req.UserID, a.AuthorID)
	case "like":
		if retract {
			h.engine.DecrementLikeScore(ctx, articleID, req.UserID, a.AuthorID)
		} else {
			h.engine.IncrementLikeScore(ctx, articleID, req.UserID, a.AuthorID)
		}
		if h.bus != nil {
			h.bus.PublishDoubleDelete(invalidation.LikeStatusKey(articleID, req.UserID), h.deleteDelay)
		}
	case "comment":
		if retract {
			h.engine.DecrementCommentScore(ctx, articleID, req.UserID, a.AuthorID)
		} else {
			h.engine.IncrementCommentScore(ctx, articleID, req.UserID, a.AuthorID)
		}
	case "favorite":
		if retract {
			h.engine.DecrementFavoriteScore(ctx, articleID, req.UserID, a.AuthorID)
		} else {
			h.engine.IncrementFavoriteScore(ctx, articleID, req.UserID, a.AuthorID)
		}
		if h.bus != nil {
			h.bus.PublishDoubleDelete(invalidation.FavoriteStatusKey(articleID, req.UserID), h.deleteDelay)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ArticleHandlers) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, article.ErrArticleNotFound) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "Article not found")
		return
	}
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
	WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to load article")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
