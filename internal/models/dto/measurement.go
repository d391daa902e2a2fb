package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/hongminglow/ondata-be/internal/models"
)

// Number decodes either a JSON number or a string holding one. Mobile
// forms post text field values verbatim, so "12.5" and 12.5 are both accepted.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
		if s == "" {
			return fmt.Errorf("empty number")
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

type CreateMeasurementRequest struct {
	UserID *int64  `json:"user_id"`
	Tower  string  `json:"torre"`
	KWh    *Number `json:"kwh"`
}

type UpdateMeasurementRequest struct {
	Tower *string `json:"torre,omitempty"`
	KWh   *Number `json:"kwh,omitempty"`
}

type MeasurementResponse struct {
	Message     string             `json:"message"`
	Measurement models.Measurement `json:"medicao"`
}

// TowerShare is the wire form of a tower's aggregated consumption.
type TowerShare struct {
	Tower      string  `json:"torre"`
	KWh        float64 `json:"kwh"`
	Percentage float64 `json:"percentage"`
}
