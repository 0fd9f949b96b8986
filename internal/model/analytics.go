package model

// Series is one labelled analytics series.
type Series struct {
	Labels []string `json:"labels"`
	Values []int    `json:"values"`
}

// AnalyticsPayload maps a series name to its samples. Payloads are built
// fresh for every snapshot or broadcast and never stored.
type AnalyticsPayload map[string]Series

const (
	SeriesOrders  = "orders"
	SeriesRevenue = "revenue"
)
