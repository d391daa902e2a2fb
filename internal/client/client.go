package client

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/models/dto"
)

const apiPrefix = "/api"

// ErrInvalidKWh is returned by ParseKWh for input that is not a positive number.
var ErrInvalidKWh = errors.New("kwh must be a number greater than 0")

// Register creates an account.
func (c *Client) Register(ctx context.Context, req dto.RegisterRequest) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/register", "", req, nil)
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var out dto.LoginResponse
	err := c.do(ctx, http.MethodPost, apiPrefix+"/login", "", dto.LoginRequest{Username: username, Password: password}, &out)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: out.Token, Username: username}, nil
}

// Me fetches the caller's profile.
func (c *Client) Me(ctx context.Context, s Session) (models.Profile, error) {
	var out models.Profile
	err := c.do(ctx, http.MethodGet, apiPrefix+"/me", s.Token, nil, &out)
	return out, err
}

// UpdateProfile changes username and/or email of the caller.
func (c *Client) UpdateProfile(ctx context.Context, s Session, req dto.UpdateProfileRequest) error {
	return c.do(ctx, http.MethodPut, apiPrefix+"/update", s.Token, req, nil)
}

// ResetPassword replaces the password of the account registered with email.
func (c *Client) ResetPassword(ctx context.Context, email, newPassword string) error {
	return c.do(ctx, http.MethodPost, apiPrefix+"/reset-password", "", dto.ResetPasswordRequest{Email: email, NewPassword: newPassword}, nil)
}

// VerifyUser resolves username to an account id.
func (c *Client) VerifyUser(ctx context.Context, s Session, username string) (int64, error) {
	var out dto.VerifyUserResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/verify-user", s.Token, dto.VerifyUserRequest{Username: username}, &out); err != nil {
		return 0, err
	}
	return out.UserID, nil
}

// CreateMeasurement records kwh for tower on behalf of ownerID.
func (c *Client) CreateMeasurement(ctx context.Context, s Session, ownerID int64, tower string, kwh float64) (models.Measurement, error) {
	n := dto.Number(kwh)
	req := dto.CreateMeasurementRequest{UserID: &ownerID, Tower: tower, KWh: &n}
	var out dto.MeasurementResponse
	if err := c.do(ctx, http.MethodPost, apiPrefix+"/medicoes", s.Token, req, &out); err != nil {
		return models.Measurement{}, err
	}
	return out.Measurement, nil
}

// ListMeasurements returns every measurement.
func (c *Client) ListMeasurements(ctx context.Context, s Session) ([]models.Measurement, error) {
	var out []models.Measurement
	err := c.do(ctx, http.MethodGet, apiPrefix+"/medicoes", s.Token, nil, &out)
	return out, err
}

// GetMeasurement fetches one measurement.
func (c *Client) GetMeasurement(ctx context.Context, s Session, id int64) (models.Measurement, error) {
	var out models.Measurement
	err := c.do(ctx, http.MethodGet, measurementPath(id), s.Token, nil, &out)
	return out, err
}

// UpdateMeasurement changes tower and/or kwh of a measurement.
func (c *Client) UpdateMeasurement(ctx context.Context, s Session, id int64, update models.MeasurementUpdate) (models.Measurement, error) {
	req := dto.UpdateMeasurementRequest{Tower: update.Tower}
	if update.KWh != nil {
		n := dto.Number(*update.KWh)
		req.KWh = &n
	}
	var out dto.MeasurementResponse
	if err := c.do(ctx, http.MethodPut, measurementPath(id), s.Token, req, &out); err != nil {
		return models.Measurement{}, err
	}
	return out.Measurement, nil
}

// DeleteMeasurement removes a measurement.
func (c *Client) DeleteMeasurement(ctx context.Context, s Session, id int64) error {
	return c.do(ctx, http.MethodDelete, measurementPath(id), s.Token, nil, nil)
}

// Summary fetches the server-side per-tower aggregation.
func (c *Client) Summary(ctx context.Context, s Session) ([]dto.TowerShare, error) {
	var out []dto.TowerShare
	err := c.do(ctx, http.MethodGet, apiPrefix+"/medicoes/summary", s.Token, nil, &out)
	return out, err
}

func measurementPath(id int64) string {
	return apiPrefix + "/medicoes/" + strconv.FormatInt(id, 10)
}

// ParseKWh validates a kwh form value before it is sent. A decimal comma is accepted.
func ParseKWh(text string) (float64, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, ErrInvalidKWh
	}
	return v, nil
}
