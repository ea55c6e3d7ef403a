package records

import "time"

// SleepMetrics are the per-day aggregates synced from the device. Pointer
// fields distinguish "not measured" from zero; stats averages skip nils.
type SleepMetrics struct {
	TotalMinutes     *float64 `json:"totalMinutes,omitempty"`
	DeepMinutes      *float64 `json:"deepMinutes,omitempty"`
	RemMinutes       *float64 `json:"remMinutes,omitempty"`
	CoreMinutes      *float64 `json:"coreMinutes,omitempty"`
	AwakeMinutes     *float64 `json:"awakeMinutes,omitempty"`
	Efficiency       *float64 `json:"efficiency,omitempty"`
	RestingHeartRate *float64 `json:"restingHeartRate,omitempty"`
	HRV              *float64 `json:"hrv,omitempty"`
}

// SleepSegment is one contiguous stage interval within a night.
type SleepSegment struct {
	Stage string    `json:"stage"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// BehaviorEvent is one tagged behavior logged against a day (caffeine,
// exercise, screen time, and so on).
type BehaviorEvent struct {
	Category        string    `json:"category"`
	Label           string    `json:"label,omitempty"`
	At              time.Time `json:"at"`
	DurationMinutes float64   `json:"durationMinutes,omitempty"`
}

// DayPayload is one day of the sync batch as sent by the client. The
// service splits it into a sleep blob and an events blob, each encrypted
// independently.
type DayPayload struct {
	Date     string          `json:"date"`
	Metrics  SleepMetrics    `json:"metrics"`
	Segments []SleepSegment  `json:"segments,omitempty"`
	Events   []BehaviorEvent `json:"events,omitempty"`
}

// sleepBlob is the plaintext structure of a sleep-kind row.
type sleepBlob struct {
	Metrics  SleepMetrics   `json:"metrics"`
	Segments []SleepSegment `json:"segments,omitempty"`
}

// eventsBlob is the plaintext structure of an events-kind row.
type eventsBlob struct {
	Events []BehaviorEvent `json:"events"`
}

// SleepDay is a decrypted sleep record as served to queries.
type SleepDay struct {
	Date     string         `json:"date"`
	Metrics  SleepMetrics   `json:"metrics"`
	Segments []SleepSegment `json:"segments,omitempty"`
	SyncedAt time.Time      `json:"syncedAt"`
}

// EventDay is a decrypted behavior-event record.
type EventDay struct {
	Date     string          `json:"date"`
	Events   []BehaviorEvent `json:"events"`
	SyncedAt time.Time       `json:"syncedAt"`
}

// Stats are order-independent reductions over a decrypted window.
type Stats struct {
	Days          int                `json:"days"`
	RecordCount   int                `json:"recordCount"`
	Averages      SleepMetrics       `json:"averages"`
	EventMinutes  map[string]float64 `json:"eventMinutesByCategory"`
	EventCounts   map[string]int     `json:"eventCountsByCategory"`
	From          string             `json:"from"`
	To            string             `json:"to"`
}
