package iot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

func TestGetDevice(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false)
	defer ctrl.Finish()

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	err := iotObj.State.WithTx(context.Background(), func(tx iot.StateTx) error {
		ctx := context.Background()
		if _, err := tx.UpsertDevice(ctx, &models.Device{DeviceUID: "D2", LastSendingData: ts}); err != nil {
			return err
		}
		if _, err := tx.UpsertDevice(ctx, &models.Device{DeviceUID: "D1", LastSendingData: ts}); err != nil {
			return err
		}
		for _, uid := range []string{"S2", "S1"} {
			if _, err := tx.UpsertSensor(ctx, &models.Sensor{DeviceUID: "D1", SensorUID: uid, LastSendingData: ts}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	device, err := iotObj.Device.GetDevice(context.Background(), "D1")
	require.NoError(t, err)
	require.Len(t, device.Sensors, 2)
	assert.Equal(t, "S1", device.Sensors[0].SensorUID)
	assert.Equal(t, "S2", device.Sensors[1].SensorUID)

	sensors, err := iotObj.Device.ListSensors(context.Background(), "D1")
	require.NoError(t, err)
	require.Len(t, sensors, 2)
	assert.Equal(t, "S1", sensors[0].SensorUID)

	devices, err := iotObj.Device.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "D1", devices[0].DeviceUID)
	assert.Equal(t, "D2", devices[1].DeviceUID)

	_, err = iotObj.Device.GetDevice(context.Background(), "missing")
	assert.ErrorIs(t, err, iot.ErrNotFound)
}
