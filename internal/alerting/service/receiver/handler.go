package receiver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	ing *Ingestor
}

func NewHandler(ing *Ingestor) *Handler { return &Handler{ing: ing} }

// PositionUpdate is the body of POST /v1/events/position.
type PositionUpdate struct {
	Exposure *float64 `json:"exposure"`
}

func (h *Handler) MarketData(c *gin.Context) {
	var ev model.MarketDataEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		log.Warn().Err(err).Msg("MarketData: failed to parse JSON request")
		badRequest(c, "invalid JSON", "", "")
		return
	}
	if err := h.ing.MarketData(c.Request.Context(), &ev); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, map[string]any{"ok": true})
}

func (h *Handler) Orders(c *gin.Context) {
	var ev model.OrderEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		log.Warn().Err(err).Msg("Orders: failed to parse JSON request")
		badRequest(c, "invalid JSON", "", "")
		return
	}
	recorded, err := h.ing.Order(c.Request.Context(), &ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, map[string]any{"ok": true, "duplicate": !recorded})
}

func (h *Handler) Position(c *gin.Context) {
	var req PositionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("Position: failed to parse JSON request")
		badRequest(c, "invalid JSON", "", "")
		return
	}
	if req.Exposure == nil {
		badRequest(c, "exposure is required", "exposure", "")
		return
	}
	if err := h.ing.Position(*req.Exposure); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, map[string]any{"ok": true})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var inv *model.InvalidEventError
	if errors.As(err, &inv) {
		badRequest(c, err.Error(), inv.Field, inv.Value)
		return
	}
	log.Error().Err(err).Str("path", c.FullPath()).Msg("event ingestion failed")
	code := model.ErrorCodeInternalError
	if model.IsStorageError(err) {
		code = model.ErrorCodeStorage
	}
	c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: model.ErrorDetail{Code: code, Message: "event ingestion failed"}})
}

func badRequest(c *gin.Context, msg, param, value string) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: model.ErrorDetail{
		Code:      model.ErrorCodeInvalidParameter,
		Message:   msg,
		Parameter: param,
		Value:     value,
	}})
}
