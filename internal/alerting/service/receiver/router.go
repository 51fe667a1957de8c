package receiver

import "github.com/gin-gonic/gin"

func RegisterReceiverRoutes(r *gin.Engine, h *Handler) {
	r.POST("/v1/events/market-data", h.MarketData)
	r.POST("/v1/events/orders", h.Orders)
	r.POST("/v1/events/position", h.Position)
}
