package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stations are not consistent about offsets. A timestamp without one is read
// as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999-0700",
}

// ParseTimestamp reads a station timestamp in any of the accepted layouts.
func ParseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

// TelemetryPayload is the body a station posts to the ingestion endpoint.
type TelemetryPayload struct {
	DeviceID     string          `json:"device_id"`
	Name         string          `json:"name"`
	DeviceStatus string          `json:"device_status"`
	Timestamp    time.Time       `json:"timestamp"`
	LastBattery  float64         `json:"last_battery"`
	LastSignal   float64         `json:"last_signal"`
	Lat          float64         `json:"lat"`
	Long         float64         `json:"long"`
	Value        *float64        `json:"value"`
	CCTVURL      *string         `json:"cctv_url,omitempty"`
	DeviceTagID  []int           `json:"device_tag_id,omitempty"`
	CatchmentID  *uint           `json:"catchment_id,omitempty"`
	Sensors      []SensorReading `json:"sensors"`
}

func (p *TelemetryPayload) UnmarshalJSON(data []byte) error {
	type plain TelemetryPayload
	aux := struct {
		*plain
		Timestamp *string `json:"timestamp"`
	}{plain: (*plain)(p)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Timestamp == nil || *aux.Timestamp == "" {
		return nil
	}
	ts, err := ParseTimestamp(*aux.Timestamp)
	if err != nil {
		return err
	}
	p.Timestamp = ts
	return nil
}

type SensorReading struct {
	SensorID    string   `json:"sensor_id"`
	Name        string   `json:"name"`
	Unit        string   `json:"unit"`
	SensorType  string   `json:"sensor_type,omitempty"`
	Value       *float64 `json:"value"`
	ValueChange *float64 `json:"value_change,omitempty"`
	CriteriaID  *uint    `json:"criteria_id,omitempty"`
	Elevation   *float64 `json:"elevation,omitempty"`
	Debit       *float64 `json:"debit,omitempty"`
}

// DistributionEvent is broadcast to realtime clients once a job has been committed.
type DistributionEvent struct {
	JobID           string        `json:"job_id"`
	ID              uint          `json:"id"`
	DeviceUID       string        `json:"device_uid"`
	DeviceName      string        `json:"device_name"`
	DeviceStatus    string        `json:"device_status"`
	Lat             float64       `json:"lat"`
	Long            float64       `json:"long"`
	Value           float64       `json:"value"`
	LastSendingData time.Time     `json:"last_sending_data"`
	LastBattery     float64       `json:"last_battery"`
	LastSignal      float64       `json:"last_signal"`
	CCTVURL         *string       `json:"cctv_url,omitempty"`
	DeviceTagID     []int         `json:"device_tag_id,omitempty"`
	CatchmentID     *uint         `json:"catchment_id,omitempty"`
	Sensors         []SensorEvent `json:"sensors"`
}

type SensorEvent struct {
	ID            uint     `json:"id"`
	SensorUID     string   `json:"sensor_id"`
	Name          string   `json:"name"`
	Unit          string   `json:"unit"`
	SensorType    string   `json:"sensor_type,omitempty"`
	Value         float64  `json:"value"`
	ValueChange   *float64 `json:"value_change,omitempty"`
	Debit         *float64 `json:"debit,omitempty"`
	Elevation     *float64 `json:"elevation,omitempty"`
	AbsoluteLevel *float64 `json:"absolute_level,omitempty"`
	CriteriaID    *uint    `json:"criteria_id,omitempty"`
	Level         *int     `json:"level,omitempty"`
	Label         string   `json:"label,omitempty"`
	Color         string   `json:"color,omitempty"`
	Icon          string   `json:"icon,omitempty"`
}
