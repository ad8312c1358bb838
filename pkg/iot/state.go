package iot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

var deviceUpdateColumns = []string{
	"name", "device_status", "value", "last_sending_data",
	"last_battery", "last_signal", "lat", "long", "updated_at",
}

var sensorUpdateColumns = []string{
	"name", "unit", "sensor_type", "value", "value_change", "elevation", "debit",
	"absolute_level", "criteria_id", "level", "label", "color", "icon",
	"last_sending_data", "updated_at",
}

func (t *stateTxImpl) upsertDevice(ctx context.Context, input *models.Device) (*models.Device, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTDevice),
	)

	if input.DeviceUID == "" {
		return nil, fmt.Errorf("device uid is required")
	}

	device := *input
	device.ID = 0
	device.Sensors = nil
	device.LastSendingData = input.LastSendingData.UTC()

	// optional attributes only overwrite when the report carries them
	columns := append([]string{}, deviceUpdateColumns...)
	if input.CCTVURL != nil {
		columns = append(columns, "cctv_url")
	}
	if input.DeviceTagID != nil {
		columns = append(columns, "device_tag_id")
	}
	if input.CatchmentID != nil {
		columns = append(columns, "catchment_id")
	}

	logger.Debug("Received device state", zap.Reflect("device", device))

	result := t.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_uid"}},
		DoUpdates: clause.AssignmentColumns(columns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.last_sending_data >= devices.last_sending_data"},
		}},
	}).Create(&device)
	if result.Error != nil {
		return nil, fmt.Errorf("upsert device %s: %w", input.DeviceUID, result.Error)
	}

	var stored models.Device
	if err := t.tx.WithContext(ctx).Where("device_uid = ?", input.DeviceUID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload device %s: %w", input.DeviceUID, err)
	}

	if result.RowsAffected == 0 {
		logger.Info("Skipped stale device state",
			zap.String(common.LoggerFieldDeviceUID, stored.DeviceUID),
			zap.Time("stored", stored.LastSendingData),
			zap.Time("received", device.LastSendingData),
		)
	} else {
		logger.Info("Upserted device state", zap.String(common.LoggerFieldDeviceUID, stored.DeviceUID), zap.Uint("id", stored.ID))
	}

	return &stored, nil
}

func (t *stateTxImpl) upsertSensor(ctx context.Context, input *models.Sensor) (*models.Sensor, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTSensor),
	)

	if input.DeviceUID == "" || input.SensorUID == "" {
		return nil, fmt.Errorf("device uid and sensor uid are required")
	}

	sensor := *input
	sensor.ID = 0
	sensor.LastSendingData = input.LastSendingData.UTC()

	result := t.tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_uid"}, {Name: "sensor_uid"}},
		DoUpdates: clause.AssignmentColumns(sensorUpdateColumns),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "excluded.last_sending_data >= sensors.last_sending_data"},
		}},
	}).Create(&sensor)
	if result.Error != nil {
		return nil, fmt.Errorf("upsert sensor %s/%s: %w", input.DeviceUID, input.SensorUID, result.Error)
	}

	var stored models.Sensor
	if err := t.tx.WithContext(ctx).
		Where("device_uid = ? AND sensor_uid = ?", input.DeviceUID, input.SensorUID).
		First(&stored).Error; err != nil {
		return nil, fmt.Errorf("reload sensor %s/%s: %w", input.DeviceUID, input.SensorUID, err)
	}

	logger.Info("Upserted sensor state",
		zap.String(common.LoggerFieldDeviceUID, stored.DeviceUID),
		zap.String("sensor_uid", stored.SensorUID),
		zap.Bool("applied", result.RowsAffected > 0),
	)

	return &stored, nil
}

type stateTxImpl struct {
	tx *gorm.DB
}

func (t *stateTxImpl) UpsertDevice(ctx context.Context, input *models.Device) (*models.Device, error) {
	return t.upsertDevice(ctx, input)
}

func (t *stateTxImpl) UpsertSensor(ctx context.Context, input *models.Sensor) (*models.Sensor, error) {
	return t.upsertSensor(ctx, input)
}

type StateStoreImpl struct {
	iot *IOT
}

func (s *StateStoreImpl) WithTx(ctx context.Context, fn func(tx StateTx) error) error {
	return s.iot.Db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&stateTxImpl{tx: tx})
	})
}

func (i *IOT) GetStateStore() StateStore {
	return &StateStoreImpl{iot: i}
}
