package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/telhawk-systems/feedgen/common/httputil"
	"github.com/telhawk-systems/feedgen/common/logging"
	"github.com/telhawk-systems/feedgen/internal/models"
	"github.com/telhawk-systems/feedgen/internal/repository"
)

const (
	defaultLimit     = 50
	maxSkeletonLimit = 100
	maxPostsLimit    = 200
)

type Handler struct {
	store      repository.EventStore
	collection string
	logger     *logging.Logger
}

func NewHandler(store repository.EventStore, collection string, logger *logging.Logger) *Handler {
	if collection == "" {
		collection = models.DefaultCollection
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, collection: collection, logger: logger.WithComponent("api")}
}

// GetFeedSkeleton handles GET /xrpc/app.bsky.feed.getFeedSkeleton.
// The cursor is an exclusive upper bound on time_us; a non-numeric cursor is
// ignored and the first page is returned.
func (h *Handler) GetFeedSkeleton(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("feed") == "" {
		httputil.WriteError(w, http.StatusBadRequest, "feed is required")
		return
	}

	limit, err := httputil.ParseBoundedInt(q, "limit", defaultLimit, 1, maxSkeletonLimit)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := repository.LatestQuery{Collection: h.collection, Limit: limit}
	if raw := q.Get("cursor"); raw != "" {
		if before, err := strconv.ParseInt(raw, 10, 64); err == nil {
			query.Before = &before
		}
	}

	events, err := h.store.QueryLatestBefore(r.Context(), query)
	if err != nil {
		h.internalError(w, r, "failed to load feed skeleton", err)
		return
	}

	resp := models.SkeletonResponse{
		Cursor: models.PageCursor(events),
		Feed:   make([]models.SkeletonItem, len(events)),
	}
	for i, e := range events {
		resp.Feed[i] = models.SkeletonItem{Post: e.URI}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListPosts handles GET /posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := httputil.ParseBoundedInt(q, "limit", defaultLimit, 1, maxPostsLimit)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	before, ok, err := httputil.ParseOptionalInt64(q, "cursor")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	query := repository.LatestQuery{
		Collection:   h.collection,
		Limit:        limit,
		DID:          q.Get("did"),
		TextContains: q.Get("contains"),
	}
	if ok {
		query.Before = &before
	}

	events, err := h.store.QueryLatestBefore(r.Context(), query)
	if err != nil {
		h.internalError(w, r, "failed to list posts", err)
		return
	}

	includeRaw := httputil.ParseBoolParam(q.Get("include_raw"))
	resp := models.PostsResponse{
		Cursor: models.PageCursor(events),
		Items:  make([]models.PostItem, len(events)),
	}
	for i, e := range events {
		resp.Items[i] = models.NewPostItem(e, includeRaw)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Health handles GET /health. It does not touch the store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, models.HealthResponse{OK: true, DB: h.store.Describe()})
}

// Ready handles GET /readyz by pinging the store.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "store not ready", logging.Error(err))
		httputil.WriteError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats handles GET /stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context(), "")
	if err != nil {
		h.internalError(w, r, "failed to count events", err)
		return
	}

	resp := models.StatsResponse{Count: count}
	latest, err := h.store.QueryMostRecent(r.Context(), "")
	switch {
	case err == nil:
		resp.LatestTimeUS = &latest.TimeUS
		resp.LatestURI = &latest.URI
	case errors.Is(err, repository.ErrNotFound):
	default:
		h.internalError(w, r, "failed to load latest event", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.ErrorContext(r.Context(), msg, logging.Error(err), logging.Path(r.URL.Path))
	httputil.WriteError(w, http.StatusInternalServerError, err.Error())
}
