package models

import "time"

// Measurement is one kWh reading recorded against a tower.
type Measurement struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Tower     string    `json:"torre"`
	KWh       float64   `json:"kwh"`
	CreatedAt time.Time `json:"created_at"`
}

// MeasurementUpdate carries the mutable fields of a measurement. Nil means unchanged.
type MeasurementUpdate struct {
	Tower *string
	KWh   *float64
}
