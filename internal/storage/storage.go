package storage

import (
	"context"
	"errors"

	"github.com/hongminglow/ondata-be/internal/models"
)

// ErrNotFound indicates a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness conflict.
var ErrAlreadyExists = errors.New("record already exists")

// ErrReferenced indicates a foreign key target is missing.
var ErrReferenced = errors.New("referenced record missing")

// UserStore captures persistence operations on accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	UpdateProfile(ctx context.Context, id int64, update models.ProfileUpdate) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
}

// MeasurementStore captures persistence operations on measurements.
type MeasurementStore interface {
	CreateMeasurement(ctx context.Context, m models.Measurement) (models.Measurement, error)
	ListMeasurements(ctx context.Context) ([]models.Measurement, error)
	GetMeasurement(ctx context.Context, id int64) (models.Measurement, error)
	UpdateMeasurement(ctx context.Context, id int64, update models.MeasurementUpdate) (models.Measurement, error)
	DeleteMeasurement(ctx context.Context, id int64) error
}

// Store is the full persistence surface handed to the server.
type Store interface {
	UserStore
	MeasurementStore
	Ping(ctx context.Context) error
	Close()
}
