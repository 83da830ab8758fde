package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"balloon-service/internal/identity"
	"balloon-service/internal/models"
	"balloon-service/internal/service"
	"balloon-service/internal/util"
)

// maxPutBodyBytes bounds the PUT body; a valid one is a few dozen bytes.
const maxPutBodyBytes = 1 << 10

type BalloonHandler struct {
	balloonService *service.BalloonService
	authorizer     *identity.Authorizer
	logger         *zap.Logger
}

func NewBalloonHandler(balloonService *service.BalloonService, authorizer *identity.Authorizer, logger *zap.Logger) *BalloonHandler {
	return &BalloonHandler{
		balloonService: balloonService,
		authorizer:     authorizer,
		logger:         logger,
	}
}

func (h *BalloonHandler) RegisterRoutes(router chi.Router) {
	router.Route("/balloon", func(r chi.Router) {
		r.Get("/", h.GetBalloon)
		r.Put("/", h.PutBalloon)
	})
}

// GetBalloon returns the current fill status, or 304 when If-None-Match
// carries the current ETag.
func (h *BalloonHandler) GetBalloon(w http.ResponseWriter, r *http.Request) {
	st, err := h.balloonService.GetBalloon(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	w.Header().Set("ETag", st.ETag)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == st.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, st.Balloon)
}

type putBalloonRequest struct {
	FillStatus *float64 `json:"fillStatus"`
}

// PutBalloon handles one increment attempt.
func (h *BalloonHandler) PutBalloon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userName, ok := identity.FromRequest(r)
	if !ok || !h.authorizer.Authorize(userName) {
		respondWithError(h.logger, w, service.ErrUnauthorized)
		return
	}

	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		respondWithError(h.logger, w, fmt.Errorf("%w: missing If-Match header", service.ErrInvalidInput))
		return
	}

	fillStatus, err := decodeFillStatus(w, r)
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	st, err := h.balloonService.UpdateBalloon(ctx, service.UpdateRequest{
		UserName:   userName,
		IfMatch:    ifMatch,
		FillStatus: fillStatus,
		RequestID:  middleware.GetReqID(ctx),
	})
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}

	w.Header().Set("ETag", st.ETag)
	respondWithJSON(h.logger, w, http.StatusOK, st.Balloon)
	h.logger.Debug("Balloon updated via HTTP",
		util.Int("fill_status", st.Balloon.FillStatus),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "PutBalloon"),
	)
}

// decodeFillStatus requires an integral fillStatus within the valid range.
func decodeFillStatus(w http.ResponseWriter, r *http.Request) (int, error) {
	var req putBalloonRequest
	body := http.MaxBytesReader(w, r.Body, maxPutBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return 0, fmt.Errorf("%w: invalid request body: %v", service.ErrInvalidInput, err)
	}
	if req.FillStatus == nil {
		return 0, fmt.Errorf("%w: fillStatus is required", service.ErrInvalidInput)
	}

	f := *req.FillStatus
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: fillStatus must be an integer", service.ErrInvalidInput)
	}
	if f < models.MinFillStatus || f > models.MaxFillStatus {
		return 0, fmt.Errorf("%w: fillStatus must be between %d and %d", service.ErrInvalidInput, models.MinFillStatus, models.MaxFillStatus)
	}
	return int(f), nil
}
