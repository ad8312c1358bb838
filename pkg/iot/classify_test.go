package iot_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

func twoBands() []models.Band {
	return []models.Band{
		{Start: 0, End: ptr(50.0), Level: 1, Label: "normal", Color: "green", Icon: "ok"},
		{Start: 50, End: nil, Level: 2, Label: "alert", Color: "red", Icon: "warn"},
	}
}

func TestClassify(t *testing.T) {
	bands := twoBands()

	band, ok := iot.Classify(bands, 49.9)
	assert.True(t, ok)
	assert.Equal(t, 1, band.Level)
	assert.Equal(t, "normal", band.Label)

	band, ok = iot.Classify(bands, 50)
	assert.True(t, ok)
	assert.Equal(t, 2, band.Level)
	assert.Equal(t, "red", band.Color)

	band, ok = iot.Classify(bands, 1e9)
	assert.True(t, ok, "a nil end has no upper bound")
	assert.Equal(t, 2, band.Level)

	_, ok = iot.Classify(bands, -1)
	assert.False(t, ok)

	_, ok = iot.Classify(nil, 10)
	assert.False(t, ok)
}

func TestClassify_FirstMatchWins(t *testing.T) {
	overlapping := []models.Band{
		{Start: 10, End: ptr(100.0), Level: 3},
		{Start: 0, End: ptr(20.0), Level: 1},
	}

	band, ok := iot.Classify(overlapping, 15)
	assert.True(t, ok)
	assert.Equal(t, 3, band.Level)

	band, ok = iot.Classify(overlapping, 5)
	assert.True(t, ok)
	assert.Equal(t, 1, band.Level)

	_, ok = iot.Classify(overlapping, 100)
	assert.False(t, ok, "end is exclusive")
}

func TestClassifyWith_NoCriteria(t *testing.T) {
	_, ok := iot.ClassifyWith(nil, 10)
	assert.False(t, ok)

	band, ok := iot.ClassifyWith(&models.CriteriaSet{Bands: twoBands()}, 10)
	assert.True(t, ok)
	assert.Equal(t, 1, band.Level)
}

func TestAbsoluteWaterLevel(t *testing.T) {
	cases := []struct {
		unit     string
		expected float64
	}{
		{"mm", 10.15},
		{"cm", 11.50},
		{"m", 160.00},
		{"ft", 160.00},
		{"", 160.00},
		{" MM ", 10.15},
	}

	for _, c := range cases {
		assert.Equal(t, c.expected, iot.AbsoluteWaterLevel(10, 150, c.unit), "unit %q", c.unit)
	}

	assert.Equal(t, 0.33, iot.AbsoluteWaterLevel(0, 333, "mm"), "rounded to 2 decimals")
}

func TestIsWaterLevel(t *testing.T) {
	assert.True(t, iot.IsWaterLevel("water_level"))
	assert.True(t, iot.IsWaterLevel("Water-Level"))
	assert.True(t, iot.IsWaterLevel("AWLR"))
	assert.False(t, iot.IsWaterLevel("rainfall"))
	assert.False(t, iot.IsWaterLevel(""))
}
