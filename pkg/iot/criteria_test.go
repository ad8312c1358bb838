package iot_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zapcore"

	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

func TestUpsertCriteriaSet(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	err := iotObj.Criteria.UpsertCriteriaSet(ctx, &models.CriteriaSet{
		Name:       "awlr-default",
		SensorType: "AWLR",
		Bands:      twoBands(),
	})
	require.NoError(t, err)

	err = iotObj.Criteria.UpsertCriteriaSet(ctx, &models.CriteriaSet{
		Name:       "awlr-default",
		TagID:      ptr(4),
		SensorType: "water_level",
		Bands:      []models.Band{{Start: 0, Level: 9}},
	})
	require.NoError(t, err)

	sets, err := iotObj.Criteria.GetCriteriaSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "water_level", sets[0].SensorType)
	require.NotNil(t, sets[0].TagID)
	assert.Equal(t, 4, *sets[0].TagID)
	require.Len(t, sets[0].Bands, 1)
	assert.Equal(t, 9, sets[0].Bands[0].Level)
}

func TestUpsertCriteriaSet_Invalid(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	cases := []*models.CriteriaSet{
		{Name: "", Bands: twoBands()},
		{Name: "empty"},
		{Name: "reversed", Bands: []models.Band{{Start: 10, End: ptr(5.0)}}},
	}
	for _, c := range cases {
		err := iotObj.Criteria.UpsertCriteriaSet(ctx, c)
		assert.ErrorIs(t, err, iot.ErrInvalidCriteria, "criteria %q", c.Name)
	}

	sets, err := iotObj.Criteria.GetCriteriaSets(ctx)
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestUpsertCriteriaSet_Logging(t *testing.T) {
	var buf bytes.Buffer
	common.SetTestCaptureLogger(&buf, zapcore.InfoLevel)

	ctrl, iotObj, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false)
	defer ctrl.Finish()

	err := iotObj.Criteria.UpsertCriteriaSet(context.Background(), &models.CriteriaSet{Name: "rain", Bands: twoBands()})
	require.NoError(t, err)

	logs := ParseLogs(&buf)
	require.Len(t, logs, 2)

	msgs := []string{}
	for _, l := range logs {
		entry := l.(map[string]any)
		assert.Equal(t, "iot_core", entry["logger"])
		assert.Equal(t, "criteria", entry["category"])
		msgs = append(msgs, entry["msg"].(string))
	}
	assert.Equal(t, []string{"Received criteria set", "Upserted criteria set"}, msgs)
}

func TestFindCriteriaSet(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false)
	defer ctrl.Finish()

	ctx := context.Background()
	require.NoError(t, iotObj.Criteria.UpsertCriteriaSet(ctx, &models.CriteriaSet{Name: "by-type", SensorType: "water-level", Bands: twoBands()}))
	require.NoError(t, iotObj.Criteria.UpsertCriteriaSet(ctx, &models.CriteriaSet{Name: "by-tag", TagID: ptr(7), Bands: twoBands()}))

	set, err := iotObj.Criteria.FindCriteriaSetForSensorType(ctx, "AWLR")
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, "by-type", set.Name)

	set, err = iotObj.Criteria.FindCriteriaSetForTag(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, "by-tag", set.Name)

	byID, err := iotObj.Criteria.FindCriteriaSetByID(ctx, set.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "by-tag", byID.Name)

	set, err = iotObj.Criteria.FindCriteriaSetForTag(ctx, 8)
	assert.NoError(t, err)
	assert.Nil(t, set)

	set, err = iotObj.Criteria.FindCriteriaSetForSensorType(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, set)
}

func TestResolveCriteriaSet(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, mockICriteria := GetMockIOTWithMemorySqliteDialector(t, false, true)
	defer ctrl.Finish()

	ctx := context.Background()
	explicit := &models.CriteriaSet{ID: 1, Name: "explicit"}
	tagged := &models.CriteriaSet{ID: 2, Name: "tagged"}
	typed := &models.CriteriaSet{ID: 3, Name: "typed"}

	t.Run("explicit id wins", func(t *testing.T) {
		mockICriteria.EXPECT().FindCriteriaSetByID(gomock.Any(), uint(1)).Return(explicit, nil)

		set, err := iot.ResolveCriteriaSet(ctx, iotObj.Criteria, &models.SensorReading{CriteriaID: ptr(uint(1))}, []int{5})
		require.NoError(t, err)
		assert.Equal(t, "explicit", set.Name)
	})

	t.Run("unknown id falls back to tags in order", func(t *testing.T) {
		gomock.InOrder(
			mockICriteria.EXPECT().FindCriteriaSetByID(gomock.Any(), uint(99)).Return(nil, nil),
			mockICriteria.EXPECT().FindCriteriaSetForTag(gomock.Any(), 5).Return(nil, nil),
			mockICriteria.EXPECT().FindCriteriaSetForTag(gomock.Any(), 6).Return(tagged, nil),
		)

		set, err := iot.ResolveCriteriaSet(ctx, iotObj.Criteria, &models.SensorReading{CriteriaID: ptr(uint(99))}, []int{5, 6, 7})
		require.NoError(t, err)
		assert.Equal(t, "tagged", set.Name)
	})

	t.Run("sensor type is the last resort", func(t *testing.T) {
		mockICriteria.EXPECT().FindCriteriaSetForTag(gomock.Any(), 5).Return(nil, nil)
		mockICriteria.EXPECT().FindCriteriaSetForSensorType(gomock.Any(), "water_level").Return(typed, nil)

		set, err := iot.ResolveCriteriaSet(ctx, iotObj.Criteria, &models.SensorReading{SensorType: "water_level"}, []int{5})
		require.NoError(t, err)
		assert.Equal(t, "typed", set.Name)
	})

	t.Run("lookup errors stop resolution", func(t *testing.T) {
		boom := errors.New("db down")
		mockICriteria.EXPECT().FindCriteriaSetForTag(gomock.Any(), 5).Return(nil, boom)

		_, err := iot.ResolveCriteriaSet(ctx, iotObj.Criteria, &models.SensorReading{SensorType: "rainfall"}, []int{5})
		assert.ErrorIs(t, err, boom)
	})
}
