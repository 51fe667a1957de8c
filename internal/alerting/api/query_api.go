package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/alerting/service/healthcheck"
	"github.com/rs/zerolog/log"
)

const (
	maxWindowMinutes = 7 * 24 * 60
	maxWindowHours   = 30 * 24
)

type listResponse[T any] struct {
	Items []T `json:"items"`
}

type kpiResponse struct {
	WindowMinutes int               `json:"windowMinutes"`
	KPIs          model.KPISnapshot `json:"kpis"`
}

type metricsResponse struct {
	MetricName    string              `json:"metricName"`
	WindowMinutes int                 `json:"windowMinutes"`
	Items         []model.Observation `json:"items"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, model.ErrorResponse{Error: model.ErrorDetail{Code: code, Message: msg}})
}

func invalidParam(c *gin.Context, name, value, msg string) {
	c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: model.ErrorDetail{
		Code: model.ErrorCodeInvalidParameter, Message: msg, Parameter: name, Value: value,
	}})
}

// failed maps a service error to its HTTP status.
func failed(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidWindow):
		writeError(c, http.StatusBadRequest, model.ErrorCodeInvalidParameter, err.Error())
	case errors.Is(err, model.ErrAlertNotFound):
		writeError(c, http.StatusNotFound, model.ErrorCodeNotFound, err.Error())
	case model.IsStorageError(err):
		log.Error().Err(err).Str("op", op).Msg("storage unavailable")
		writeError(c, http.StatusServiceUnavailable, model.ErrorCodeStorage, "storage unavailable")
	default:
		log.Error().Err(err).Str("op", op).Msg("request failed")
		writeError(c, http.StatusInternalServerError, model.ErrorCodeInternalError, err.Error())
	}
}

// queryWindow reads a positive integer query parameter bounded by limit.
func queryWindow(c *gin.Context, name string, def, limit int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > limit {
		invalidParam(c, name, raw, name+" must be 1-"+strconv.Itoa(limit))
		return 0, false
	}
	return n, true
}

// GetKPIs implements GET /v1/kpis?minutes=60
func (api *Api) GetKPIs(c *gin.Context) {
	minutes, ok := queryWindow(c, "minutes", api.deps.DefaultWindowMinutes, maxWindowMinutes)
	if !ok {
		return
	}
	snap, err := api.deps.Aggregator.CalculateKPIs(c.Request.Context(), minutes)
	if err != nil {
		failed(c, "kpis", err)
		return
	}
	c.JSON(http.StatusOK, kpiResponse{WindowMinutes: minutes, KPIs: snap})
}

// GetRecentMetrics implements GET /v1/metrics/:metricName?minutes=60
func (api *Api) GetRecentMetrics(c *gin.Context) {
	name := strings.TrimSpace(c.Param("metricName"))
	if name == "" {
		invalidParam(c, "metricName", name, "missing metricName")
		return
	}
	minutes, ok := queryWindow(c, "minutes", api.deps.DefaultWindowMinutes, maxWindowMinutes)
	if !ok {
		return
	}
	obs, err := api.deps.Aggregator.GetRecentMetrics(c.Request.Context(), name, minutes)
	if err != nil {
		failed(c, "metrics", err)
		return
	}
	c.JSON(http.StatusOK, metricsResponse{MetricName: name, WindowMinutes: minutes, Items: obs})
}

// ListActiveAlerts implements GET /v1/alerts
func (api *Api) ListActiveAlerts(c *gin.Context) {
	alerts, err := api.deps.Engine.GetActiveAlerts(c.Request.Context())
	if err != nil {
		failed(c, "alerts", err)
		return
	}
	c.JSON(http.StatusOK, listResponse[model.Alert]{Items: alerts})
}

// CheckAlerts implements POST /v1/alerts/check: one evaluation cycle on demand.
func (api *Api) CheckAlerts(c *gin.Context) {
	res, err := healthcheck.RunOnce(c.Request.Context(), api.deps.Cycle)
	if res == nil {
		failed(c, "check", err)
		return
	}
	if err != nil {
		// transitions were applied; failed side effects are retried next cycle
		log.Warn().Err(err).Msg("on-demand evaluation finished with errors")
	}
	c.JSON(http.StatusOK, res)
}

// AcknowledgeAlert implements POST /v1/alerts/:alertID/ack
func (api *Api) AcknowledgeAlert(c *gin.Context) {
	id := strings.TrimSpace(c.Param("alertID"))
	a, err := api.deps.Engine.Acknowledge(c.Request.Context(), id)
	if err != nil {
		failed(c, "ack", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// ListIncidents implements GET /v1/incidents?hours=24
func (api *Api) ListIncidents(c *gin.Context) {
	hours, ok := queryWindow(c, "hours", 24, maxWindowHours)
	if !ok {
		return
	}
	incs, err := api.deps.Incidents.GetRecentIncidents(c.Request.Context(), hours)
	if err != nil {
		failed(c, "incidents", err)
		return
	}
	c.JSON(http.StatusOK, listResponse[model.Incident]{Items: incs})
}

// ListFeeds implements GET /v1/feeds
func (api *Api) ListFeeds(c *gin.Context) {
	feeds, err := api.deps.Feeds.ListFeedHealth(c.Request.Context())
	if err != nil {
		failed(c, "feeds", err)
		return
	}
	c.JSON(http.StatusOK, listResponse[model.FeedHealth]{Items: feeds})
}

// ListRunbooks implements GET /v1/runbooks[?alert_type=...]
func (api *Api) ListRunbooks(c *gin.Context) {
	ctx := c.Request.Context()
	if alertType := strings.TrimSpace(c.Query("alert_type")); alertType != "" {
		rb, err := api.deps.Runbooks.GetRunbook(ctx, alertType)
		if err != nil {
			failed(c, "runbook", err)
			return
		}
		if rb == nil {
			writeError(c, http.StatusNotFound, model.ErrorCodeNotFound, "no runbook for alert type "+alertType)
			return
		}
		c.JSON(http.StatusOK, rb)
		return
	}
	books, err := api.deps.Runbooks.ListRunbooks(ctx)
	if err != nil {
		failed(c, "runbooks", err)
		return
	}
	c.JSON(http.StatusOK, listResponse[model.Runbook]{Items: books})
}
