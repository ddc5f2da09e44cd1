package models

// CacheStats reports cache performance metrics. Hits, misses, and
// saves are lifetime counters independent of current occupancy.
type CacheStats struct {
	Entries        int64   `json:"entries"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Saves          int64   `json:"saves"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}
