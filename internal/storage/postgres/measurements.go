package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/storage"
	"github.com/jackc/pgx/v5"
)

const measurementColumns = `id, user_id, tower, kwh, created_at`

// CreateMeasurement inserts a measurement and returns it with id and timestamp.
func (s *Store) CreateMeasurement(ctx context.Context, m models.Measurement) (models.Measurement, error) {
	query := `INSERT INTO measurements (user_id, tower, kwh) VALUES ($1, $2, $3) RETURNING ` + measurementColumns + `;`
	created, err := scanMeasurement(s.pool.QueryRow(ctx, query, m.UserID, m.Tower, m.KWh))
	if err != nil {
		return models.Measurement{}, translate(err)
	}
	return created, nil
}

// ListMeasurements returns every measurement across all accounts.
func (s *Store) ListMeasurements(ctx context.Context) ([]models.Measurement, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+measurementColumns+` FROM measurements ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	defer rows.Close()

	out := make([]models.Measurement, 0)
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list measurements: %w", err)
	}
	return out, nil
}

// GetMeasurement fetches a single measurement.
func (s *Store) GetMeasurement(ctx context.Context, id int64) (models.Measurement, error) {
	m, err := scanMeasurement(s.pool.QueryRow(ctx, `SELECT `+measurementColumns+` FROM measurements WHERE id = $1;`, id))
	if err != nil {
		return models.Measurement{}, translate(err)
	}
	return m, nil
}

// UpdateMeasurement changes tower and/or kwh and returns the updated row.
func (s *Store) UpdateMeasurement(ctx context.Context, id int64, update models.MeasurementUpdate) (models.Measurement, error) {
	var sets []string
	var args []any
	if update.Tower != nil {
		args = append(args, *update.Tower)
		sets = append(sets, fmt.Sprintf("tower = $%d", len(args)))
	}
	if update.KWh != nil {
		args = append(args, *update.KWh)
		sets = append(sets, fmt.Sprintf("kwh = $%d", len(args)))
	}
	if len(sets) == 0 {
		return models.Measurement{}, errors.New("update measurement: no fields")
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE measurements SET %s WHERE id = $%d RETURNING %s;",
		strings.Join(sets, ", "), len(args), measurementColumns)

	m, err := scanMeasurement(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return models.Measurement{}, translate(err)
	}
	return m, nil
}

// DeleteMeasurement removes a measurement by id.
func (s *Store) DeleteMeasurement(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM measurements WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanMeasurement(row pgx.Row) (models.Measurement, error) {
	var m models.Measurement
	if err := row.Scan(&m.ID, &m.UserID, &m.Tower, &m.KWh, &m.CreatedAt); err != nil {
		return models.Measurement{}, err
	}
	return m, nil
}
