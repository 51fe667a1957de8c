package model

// KPISnapshot is derived from the observations of one trailing window. It is never persisted.
type KPISnapshot struct {
	FillRate         float64 `json:"fillRate"`
	CancelRate       float64 `json:"cancelRate"`
	RejectRate       float64 `json:"rejectRate"`
	LatencyP50       float64 `json:"latencyP50"`
	LatencyP95       float64 `json:"latencyP95"`
	LatencyP99       float64 `json:"latencyP99"`
	PositionExposure float64 `json:"positionExposure"`
	OrderCount       int     `json:"orderCount"`
	MessageRate      float64 `json:"messageRate"`
}
