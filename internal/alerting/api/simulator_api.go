package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qiniu/venueops/internal/alerting/model"
	"github.com/qiniu/venueops/internal/simulator"
)

type simulatorResponse struct {
	Message string           `json:"message,omitempty"`
	Status  simulator.Status `json:"status"`
}

// SimulatorStatus implements GET /v1/simulator
func (api *Api) SimulatorStatus(c *gin.Context) {
	if api.deps.Simulator == nil {
		c.JSON(http.StatusOK, simulatorResponse{Status: simulator.Status{}})
		return
	}
	c.JSON(http.StatusOK, simulatorResponse{Status: api.deps.Simulator.Status()})
}

// SimulatorControl implements POST /v1/simulator {"action": ..., "config": {...}}
func (api *Api) SimulatorControl(c *gin.Context) {
	if api.deps.Simulator == nil {
		writeError(c, http.StatusServiceUnavailable, model.ErrorCodeInternalError, "simulator not configured")
		return
	}
	var cmd simulator.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		invalidParam(c, "body", "", "invalid JSON")
		return
	}
	msg, err := api.deps.Simulator.Apply(c.Request.Context(), cmd)
	if errors.Is(err, simulator.ErrInvalidCommand) {
		invalidParam(c, "action", cmd.Action, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, model.ErrorCodeInternalError, err.Error())
		return
	}
	c.JSON(http.StatusOK, simulatorResponse{Message: msg, Status: api.deps.Simulator.Status()})
}
