package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"balloon-service/internal/service"
)

type StatisticsHandler struct {
	statisticsService *service.StatisticsService
	logger            *zap.Logger
}

func NewStatisticsHandler(statisticsService *service.StatisticsService, logger *zap.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		statisticsService: statisticsService,
		logger:            logger,
	}
}

func (h *StatisticsHandler) RegisterRoutes(router chi.Router) {
	router.Route("/userStatistics", func(r chi.Router) {
		r.Get("/", h.ListUserStatistics)
		r.Get("/{userName}", h.GetUserStatistics)
	})
}

func (h *StatisticsHandler) GetUserStatistics(w http.ResponseWriter, r *http.Request) {
	userName := chi.URLParam(r, "userName")

	stats, tag, err := h.statisticsService.Get(r.Context(), userName)
	if err != nil {
		if errors.Is(err, service.ErrUserStatisticsNotFound) {
			respondWithProblem(h.logger, w, http.StatusNotFound, "Not Found",
				fmt.Sprintf("User statistics for '%s' not found.", userName))
			return
		}
		respondWithError(h.logger, w, err)
		return
	}

	w.Header().Set("ETag", tag)
	respondWithJSON(h.logger, w, http.StatusOK, stats)
}

// ListUserStatistics returns every record, sorted by the orderBy query
// parameter ("hits desc, lastHit asc").
func (h *StatisticsHandler) ListUserStatistics(w http.ResponseWriter, r *http.Request) {
	list, tag, err := h.statisticsService.List(r.Context(), r.URL.Query().Get("orderBy"))
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	w.Header().Set("ETag", tag)
	respondWithJSON(h.logger, w, http.StatusOK, list)
}
