package iot

//go:generate mockgen -source=iot.go -destination=mocks/iot_mock.go -package=mocks

import (
	"context"
	"errors"

	"liyu1981.xyz/hydro-telemetry-service/pkg/db"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

var ErrNotFound = errors.New("not found")

// IDevice answers current-state queries, e.g. for a dashboard that just connected.
type IDevice interface {
	GetDevice(ctx context.Context, deviceUID string) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	ListSensors(ctx context.Context, deviceUID string) ([]models.Sensor, error)
}

// ICriteria is the read-mostly store of named band sets.
// Find* return (nil, nil) when nothing matches.
type ICriteria interface {
	UpsertCriteriaSet(ctx context.Context, input *models.CriteriaSet) error
	GetCriteriaSets(ctx context.Context) ([]models.CriteriaSet, error)
	FindCriteriaSetByID(ctx context.Context, id uint) (*models.CriteriaSet, error)
	FindCriteriaSetForTag(ctx context.Context, tag int) (*models.CriteriaSet, error)
	FindCriteriaSetForSensorType(ctx context.Context, sensorType string) (*models.CriteriaSet, error)
}

// StateStore runs fn in one transaction: committed when fn returns nil, rolled back otherwise.
type StateStore interface {
	WithTx(ctx context.Context, fn func(tx StateTx) error) error
}

// StateTx writes latest-known state. Both upserts keep the newer report when
// two reports for the same key race, so applying them in any order converges.
type StateTx interface {
	UpsertDevice(ctx context.Context, input *models.Device) (*models.Device, error)
	UpsertSensor(ctx context.Context, input *models.Sensor) (*models.Sensor, error)
}

type IOT struct {
	Db       db.DB
	Device   IDevice
	Criteria ICriteria
	State    StateStore
}

type ServiceOpts struct {
	Device   IDevice
	Criteria ICriteria
	State    StateStore
}

func (i *IOT) WithServices(opts ServiceOpts) *IOT {
	if opts.Device != nil {
		i.Device = opts.Device
	}
	if opts.Criteria != nil {
		i.Criteria = opts.Criteria
	}
	if opts.State != nil {
		i.State = opts.State
	}
	return i
}

// New wires an IOT core whose services are all backed by database.
func New(database *db.DB) *IOT {
	core := &IOT{Db: *database}
	return core.WithServices(ServiceOpts{
		Device:   core.GetIDevice(),
		Criteria: core.GetICriteria(),
		State:    core.GetStateStore(),
	})
}
