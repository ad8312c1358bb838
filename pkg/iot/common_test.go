package iot_test

import (
	"bufio"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"liyu1981.xyz/hydro-telemetry-service/pkg/db"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot/mocks"
)

func GetMockIOTWithMemorySqliteDialector(t *testing.T, useMockIDevice, useMockICriteria bool) (
	*gomock.Controller,
	*iot.IOT,
	*mocks.MockIDevice,
	*mocks.MockICriteria,
) {
	ctrl := gomock.NewController(t)

	mockIDevice := mocks.NewMockIDevice(ctrl)
	mockICriteria := mocks.NewMockICriteria(ctrl)

	dbInstance, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbInstance.Close() })

	iotInstance := iot.New(dbInstance)

	deviceService := iotInstance.GetIDevice()
	if useMockIDevice {
		deviceService = mockIDevice
	}

	criteriaService := iotInstance.GetICriteria()
	if useMockICriteria {
		criteriaService = mockICriteria
	}

	iotInstance.WithServices(iot.ServiceOpts{
		Device:   deviceService,
		Criteria: criteriaService,
	})

	return ctrl, iotInstance, mockIDevice, mockICriteria
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}

func ptr[T any](v T) *T {
	return &v
}
