package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qiniu/venueops/internal/alerting/service/healthcheck"
	"github.com/qiniu/venueops/internal/alerting/service/metrics"
	"github.com/qiniu/venueops/internal/alerting/service/receiver"
	"github.com/qiniu/venueops/internal/alerting/service/remediation"
	"github.com/qiniu/venueops/internal/alerting/store"
	"github.com/qiniu/venueops/internal/simulator"
)

// Deps are the components behind the HTTP surface. Simulator and Gatherer may be nil.
type Deps struct {
	Aggregator *metrics.Aggregator
	Engine     *healthcheck.Engine
	Cycle      healthcheck.Deps
	Incidents  *remediation.Manager
	Feeds      store.FeedHealthStore
	Runbooks   store.RunbookStore
	Receiver   *receiver.Handler
	Simulator  *simulator.Runner
	Gatherer   prometheus.Gatherer

	DefaultWindowMinutes int
}

type Api struct {
	deps Deps
}

func NewApi(router *gin.Engine, deps Deps) *Api {
	if deps.DefaultWindowMinutes <= 0 {
		deps.DefaultWindowMinutes = 60
	}
	api := &Api{deps: deps}
	api.setupRouters(router)
	return api
}

func (api *Api) setupRouters(router *gin.Engine) {
	router.GET("/v1/kpis", api.GetKPIs)
	router.GET("/v1/metrics/:metricName", api.GetRecentMetrics)

	router.GET("/v1/alerts", api.ListActiveAlerts)
	router.POST("/v1/alerts/check", api.CheckAlerts)
	router.POST("/v1/alerts/:alertID/ack", api.AcknowledgeAlert)

	router.GET("/v1/incidents", api.ListIncidents)
	router.GET("/v1/feeds", api.ListFeeds)
	router.GET("/v1/runbooks", api.ListRunbooks)

	router.GET("/v1/simulator", api.SimulatorStatus)
	router.POST("/v1/simulator", api.SimulatorControl)

	if api.deps.Receiver != nil {
		receiver.RegisterReceiverRoutes(router, api.deps.Receiver)
	}
	if api.deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(api.deps.Gatherer, promhttp.HandlerOpts{})))
	}
}
