package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/report"
	"github.com/hongminglow/ondata-be/internal/storage"
)

// MeasurementService validates and persists tower measurements.
type MeasurementService struct {
	store           storage.MeasurementStore
	strictOwnership bool
	logger          *zap.Logger
}

// NewMeasurementService builds MeasurementService. With strictOwnership set,
// only the owner or an admin may write a measurement.
func NewMeasurementService(store storage.MeasurementStore, strictOwnership bool, logger *zap.Logger) *MeasurementService {
	return &MeasurementService{store: store, strictOwnership: strictOwnership, logger: logger}
}

// Create records kwh against tower on behalf of ownerID.
func (s *MeasurementService) Create(ctx context.Context, caller auth.Identity, ownerID int64, tower string, kwh *float64) (models.Measurement, error) {
	tower = strings.TrimSpace(tower)
	if ownerID <= 0 || tower == "" || kwh == nil {
		return models.Measurement{}, newError(ErrBadRequest, "user_id, torre and kwh are required")
	}
	if err := validateKWh(*kwh); err != nil {
		return models.Measurement{}, err
	}
	if err := s.authorize(caller, ownerID); err != nil {
		return models.Measurement{}, err
	}
	if caller.UserID != ownerID {
		s.logger.Info("measurement recorded on behalf of another user",
			zap.Int64("caller_id", caller.UserID), zap.Int64("owner_id", ownerID))
	}

	created, err := s.store.CreateMeasurement(ctx, models.Measurement{UserID: ownerID, Tower: tower, KWh: *kwh})
	if err != nil {
		if errors.Is(err, storage.ErrReferenced) {
			return models.Measurement{}, newError(ErrNotFound, "user not found")
		}
		return models.Measurement{}, fmt.Errorf("create measurement: %w", err)
	}
	return created, nil
}

// List returns every measurement of every account.
func (s *MeasurementService) List(ctx context.Context) ([]models.Measurement, error) {
	out, err := s.store.ListMeasurements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	return out, nil
}

// Summary aggregates every measurement into per-tower shares.
func (s *MeasurementService) Summary(ctx context.Context) ([]report.TowerShare, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return report.Aggregate(all), nil
}

// Get fetches a single measurement.
func (s *MeasurementService) Get(ctx context.Context, id int64) (models.Measurement, error) {
	m, err := s.store.GetMeasurement(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Measurement{}, newError(ErrNotFound, "measurement not found")
		}
		return models.Measurement{}, fmt.Errorf("get measurement: %w", err)
	}
	return m, nil
}

// Update changes tower and/or kwh of a measurement.
func (s *MeasurementService) Update(ctx context.Context, caller auth.Identity, id int64, update models.MeasurementUpdate) (models.Measurement, error) {
	if update.Tower != nil {
		t := strings.TrimSpace(*update.Tower)
		if t == "" {
			update.Tower = nil
		} else {
			update.Tower = &t
		}
	}
	if update.Tower == nil && update.KWh == nil {
		return models.Measurement{}, newError(ErrBadRequest, "torre or kwh is required")
	}
	if update.KWh != nil {
		if err := validateKWh(*update.KWh); err != nil {
			return models.Measurement{}, err
		}
	}
	if err := s.authorizeExisting(ctx, caller, id); err != nil {
		return models.Measurement{}, err
	}

	m, err := s.store.UpdateMeasurement(ctx, id, update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Measurement{}, newError(ErrNotFound, "measurement not found")
		}
		return models.Measurement{}, fmt.Errorf("update measurement: %w", err)
	}
	return m, nil
}

// Delete removes a measurement.
func (s *MeasurementService) Delete(ctx context.Context, caller auth.Identity, id int64) error {
	if err := s.authorizeExisting(ctx, caller, id); err != nil {
		return err
	}
	if err := s.store.DeleteMeasurement(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return newError(ErrNotFound, "measurement not found")
		}
		return fmt.Errorf("delete measurement: %w", err)
	}
	s.logger.Info("measurement deleted", zap.Int64("measurement_id", id), zap.Int64("caller_id", caller.UserID))
	return nil
}

func (s *MeasurementService) authorize(caller auth.Identity, ownerID int64) error {
	if !s.strictOwnership || caller.IsAdmin() || caller.UserID == ownerID {
		return nil
	}
	return newError(ErrForbidden, "measurement belongs to another user")
}

func (s *MeasurementService) authorizeExisting(ctx context.Context, caller auth.Identity, id int64) error {
	if !s.strictOwnership || caller.IsAdmin() {
		return nil
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return s.authorize(caller, m.UserID)
}

func validateKWh(kwh float64) error {
	if math.IsNaN(kwh) || math.IsInf(kwh, 0) || kwh <= 0 {
		return newError(ErrBadRequest, "kwh must be a number greater than 0")
	}
	return nil
}
