package models

import (
	"time"

	"gorm.io/datatypes"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDead       JobStatus = "dead"
	JobStatusRejected   JobStatus = "rejected"
)

// Device is the latest known state of one field station, keyed externally by DeviceUID.
type Device struct {
	ID              uint                     `gorm:"primaryKey" json:"id"`
	DeviceUID       string                   `gorm:"column:device_uid;uniqueIndex;not null" json:"device_uid"`
	Name            string                   `json:"name"`
	DeviceStatus    string                   `json:"device_status"`
	Value           float64                  `json:"value"`
	LastSendingData time.Time                `json:"last_sending_data"`
	LastBattery     float64                  `json:"last_battery"`
	LastSignal      float64                  `json:"last_signal"`
	Lat             float64                  `json:"lat"`
	Long            float64                  `json:"long"`
	CCTVURL         *string                  `gorm:"column:cctv_url" json:"cctv_url,omitempty"`
	DeviceTagID     datatypes.JSONSlice[int] `gorm:"column:device_tag_id" json:"device_tag_id,omitempty"`
	CatchmentID     *uint                    `json:"catchment_id,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`

	Sensors []Sensor `gorm:"foreignKey:DeviceUID;references:DeviceUID" json:"sensors,omitempty"`
}

type Sensor struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	DeviceUID       string    `gorm:"column:device_uid;uniqueIndex:idx_device_sensor;not null" json:"device_uid"`
	SensorUID       string    `gorm:"column:sensor_uid;uniqueIndex:idx_device_sensor;not null" json:"sensor_id"`
	Name            string    `json:"name"`
	Unit            string    `json:"unit"`
	SensorType      string    `json:"sensor_type,omitempty"`
	Value           float64   `json:"value"`
	ValueChange     *float64  `json:"value_change,omitempty"`
	Elevation       *float64  `json:"elevation,omitempty"`
	Debit           *float64  `json:"debit,omitempty"`
	AbsoluteLevel   *float64  `json:"absolute_level,omitempty"`
	CriteriaID      *uint     `json:"criteria_id,omitempty"`
	Level           *int      `json:"level,omitempty"`
	Label           string    `json:"label,omitempty"`
	Color           string    `json:"color,omitempty"`
	Icon            string    `json:"icon,omitempty"`
	LastSendingData time.Time `json:"last_sending_data"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Band is one severity range of a CriteriaSet. A nil End means no upper bound.
type Band struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
	Level int      `json:"level"`
	Label string   `json:"label"`
	Color string   `json:"color"`
	Icon  string   `json:"icon"`
}

type CriteriaSet struct {
	ID         uint                      `gorm:"primaryKey" json:"id"`
	Name       string                    `gorm:"uniqueIndex;not null" json:"name"`
	TagID      *int                      `gorm:"index" json:"tag_id,omitempty"`
	SensorType string                    `gorm:"index" json:"sensor_type,omitempty"`
	Bands      datatypes.JSONSlice[Band] `json:"bands"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

type TelemetryJob struct {
	ID             string         `gorm:"primaryKey" json:"id"`
	Queue          string         `gorm:"index:idx_queue_due,priority:1;not null" json:"queue"`
	DeviceUID      string         `gorm:"column:device_uid;index" json:"device_uid"`
	Payload        datatypes.JSON `json:"payload"`
	Status         JobStatus      `gorm:"type:varchar(20);index:idx_queue_due,priority:2;check:status IN ('pending','processing','failed','dead','rejected')" json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	MaxAttempts    int            `json:"max_attempts"`
	NextAttemptAt  time.Time      `gorm:"index:idx_queue_due,priority:3" json:"next_attempt_at"`
	LeaseExpiresAt *time.Time     `json:"lease_expires_at,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
