package iot

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

func (i *IOT) getDevice(ctx context.Context, deviceUID string) (*models.Device, error) {
	var device models.Device
	err := i.Db.Conn.WithContext(ctx).
		Preload("Sensors", func(tx *gorm.DB) *gorm.DB { return tx.Order("sensor_uid asc") }).
		First(&device, "device_uid = ?", deviceUID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("device %s: %w", deviceUID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

func (i *IOT) listDevices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	err := i.Db.Conn.WithContext(ctx).
		Order("device_uid asc").
		Find(&devices).Error
	return devices, err
}

func (i *IOT) listSensors(ctx context.Context, deviceUID string) ([]models.Sensor, error) {
	var sensors []models.Sensor
	err := i.Db.Conn.WithContext(ctx).
		Where("device_uid = ?", deviceUID).
		Order("sensor_uid asc").
		Find(&sensors).Error
	return sensors, err
}

type IDeviceImpl struct {
	iot *IOT
}

func (id *IDeviceImpl) GetDevice(ctx context.Context, deviceUID string) (*models.Device, error) {
	return id.iot.getDevice(ctx, deviceUID)
}

func (id *IDeviceImpl) ListDevices(ctx context.Context) ([]models.Device, error) {
	return id.iot.listDevices(ctx)
}

func (id *IDeviceImpl) ListSensors(ctx context.Context, deviceUID string) ([]models.Sensor, error) {
	return id.iot.listSensors(ctx, deviceUID)
}

func (i *IOT) GetIDevice() IDevice {
	return &IDeviceImpl{iot: i}
}
