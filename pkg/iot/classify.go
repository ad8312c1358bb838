package iot

import (
	"strings"

	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

const (
	SensorTypeWaterLevel = "water_level"
	SensorTypeRainfall   = "rainfall"
)

var sensorTypeAliases = map[string]string{
	"awlr":       SensorTypeWaterLevel,
	"waterlevel": SensorTypeWaterLevel,
	"arr":        SensorTypeRainfall,
}

func normalizeSensorType(sensorType string) string {
	normalized := strings.ToLower(strings.TrimSpace(sensorType))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	if alias, ok := sensorTypeAliases[normalized]; ok {
		return alias
	}
	return normalized
}

// Classify returns the first band containing value. A band covers
// [Start, End), or [Start, +inf) when End is nil.
func Classify(bands []models.Band, value float64) (models.Band, bool) {
	for _, band := range bands {
		if value < band.Start {
			continue
		}
		if band.End != nil && value >= *band.End {
			continue
		}
		return band, true
	}
	return models.Band{}, false
}

// ClassifyWith is Classify for an optional criteria set.
func ClassifyWith(criteria *models.CriteriaSet, value float64) (models.Band, bool) {
	if criteria == nil {
		return models.Band{}, false
	}
	return Classify(criteria.Bands, value)
}

func IsWaterLevel(sensorType string) bool {
	return normalizeSensorType(sensorType) == SensorTypeWaterLevel
}

// NormalizeToMeters converts mm and cm readings, anything else is taken as meters.
func NormalizeToMeters(value float64, unit string) float64 {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "mm":
		return value / 1000
	case "cm":
		return value / 100
	default:
		return value
	}
}

func AbsoluteWaterLevel(elevation float64, value float64, unit string) float64 {
	return common.RoundTo(elevation+NormalizeToMeters(value, unit), 2)
}
