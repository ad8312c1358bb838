package iot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

var ErrInvalidCriteria = errors.New("invalid criteria set")

// ValidateBands rejects bands that can never match. Overlapping bands are
// accepted, classification takes the first match.
func ValidateBands(bands []models.Band) error {
	if len(bands) == 0 {
		return fmt.Errorf("%w: at least one band is required", ErrInvalidCriteria)
	}
	for idx, band := range bands {
		if band.End != nil && *band.End < band.Start {
			return fmt.Errorf("%w: band %d ends (%v) before it starts (%v)", ErrInvalidCriteria, idx, *band.End, band.Start)
		}
	}
	return nil
}

func (i *IOT) upsertCriteriaSet(ctx context.Context, input *models.CriteriaSet) error {
	logger := common.GetLoggerWith(
		common.LoggerNameIOTCore,
		zap.String(common.LoggerFieldIOTCategory, common.LoggerCategoryIOTCriteria),
	)

	if strings.TrimSpace(input.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCriteria)
	}
	if err := ValidateBands(input.Bands); err != nil {
		return err
	}

	criteria := models.CriteriaSet{
		Name:       input.Name,
		TagID:      input.TagID,
		SensorType: normalizeSensorType(input.SensorType),
		Bands:      input.Bands,
	}

	logger.Info("Received criteria set", zap.Reflect("criteria", criteria))

	err := i.Db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"tag_id", "sensor_type", "bands", "updated_at"}),
	}).Create(&criteria).Error

	if err == nil {
		logger.Info("Upserted criteria set", zap.Reflect("criteria", criteria))
	}

	return err
}

func (i *IOT) getCriteriaSets(ctx context.Context) ([]models.CriteriaSet, error) {
	var sets []models.CriteriaSet
	err := i.Db.Conn.WithContext(ctx).Order("id asc").Find(&sets).Error
	return sets, err
}

func (i *IOT) findCriteriaSet(ctx context.Context, query string, args ...any) (*models.CriteriaSet, error) {
	var criteria models.CriteriaSet
	err := i.Db.Conn.WithContext(ctx).Where(query, args...).Order("id asc").First(&criteria).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &criteria, nil
}

type ICriteriaImpl struct {
	iot *IOT
}

func (ic *ICriteriaImpl) UpsertCriteriaSet(ctx context.Context, input *models.CriteriaSet) error {
	return ic.iot.upsertCriteriaSet(ctx, input)
}

func (ic *ICriteriaImpl) GetCriteriaSets(ctx context.Context) ([]models.CriteriaSet, error) {
	return ic.iot.getCriteriaSets(ctx)
}

func (ic *ICriteriaImpl) FindCriteriaSetByID(ctx context.Context, id uint) (*models.CriteriaSet, error) {
	return ic.iot.findCriteriaSet(ctx, "id = ?", id)
}

func (ic *ICriteriaImpl) FindCriteriaSetForTag(ctx context.Context, tag int) (*models.CriteriaSet, error) {
	return ic.iot.findCriteriaSet(ctx, "tag_id = ?", tag)
}

func (ic *ICriteriaImpl) FindCriteriaSetForSensorType(ctx context.Context, sensorType string) (*models.CriteriaSet, error) {
	normalized := normalizeSensorType(sensorType)
	if normalized == "" {
		return nil, nil
	}
	return ic.iot.findCriteriaSet(ctx, "sensor_type = ?", normalized)
}

func (i *IOT) GetICriteria() ICriteria {
	return &ICriteriaImpl{iot: i}
}

// ResolveCriteriaSet picks the band set for one reading: the reading's explicit
// criteria id first, then the device tags in order, then the sensor type.
// A nil set with a nil error means the reading stays unclassified.
func ResolveCriteriaSet(ctx context.Context, criteria ICriteria, reading *models.SensorReading, tags []int) (*models.CriteriaSet, error) {
	if reading.CriteriaID != nil {
		set, err := criteria.FindCriteriaSetByID(ctx, *reading.CriteriaID)
		if err != nil || set != nil {
			return set, err
		}
	}

	for _, tag := range tags {
		set, err := criteria.FindCriteriaSetForTag(ctx, tag)
		if err != nil || set != nil {
			return set, err
		}
	}

	return criteria.FindCriteriaSetForSensorType(ctx, reading.SensorType)
}
