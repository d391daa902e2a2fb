package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/models/dto"
	"github.com/hongminglow/ondata-be/internal/password"
	"github.com/hongminglow/ondata-be/internal/service"
	"github.com/hongminglow/ondata-be/internal/storage/sqlite"
)

type apiFixture struct {
	mux    *http.ServeMux
	tokens *auth.TokenManager
	store  *sqlite.Store
}

func newAPI(t *testing.T, strict bool) apiFixture {
	t.Helper()
	store, err := sqlite.NewStore(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	logger := zap.NewNop()
	tokens := auth.NewTokenManager("handler-secret", "ondata-test", time.Hour)
	authSvc := service.NewAuthService(store, password.NewBcryptHasher(bcrypt.MinCost), tokens, logger, service.WithAdminSignup(!strict))
	measurementSvc := service.NewMeasurementService(store, strict, logger)

	mux := http.NewServeMux()
	NewHealthHandler(time.Now(), store, logger).Register(mux)
	NewAuthHandler(authSvc, logger).Register(mux)
	NewMeasurementHandler(measurementSvc, authSvc, logger).Register(mux)
	return apiFixture{mux: mux, tokens: tokens, store: store}
}

func (f apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

// signup registers username and returns a bearer token for it.
func (f apiFixture) signup(t *testing.T, username, role string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/register", "", dto.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw-" + username,
		Role:     role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: username, Password: "pw-" + username})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out dto.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

// seedAdmin inserts an admin account directly, the way an operator would
// when self-registration as admin is closed, and returns its token.
func (f apiFixture) seedAdmin(t *testing.T, username string) string {
	t.Helper()
	hash, err := password.NewBcryptHasher(bcrypt.MinCost).Hash("pw-" + username)
	require.NoError(t, err)
	_, err = f.store.CreateUser(context.Background(), models.User{
		Username:     username,
		Email:        username + "@example.com",
		Role:         models.RoleAdmin,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	rec := f.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: username, Password: "pw-" + username})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out dto.LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Token
}

func (f apiFixture) userID(t *testing.T, token, username string) int64 {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/verify-user", token, dto.VerifyUserRequest{Username: username})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out dto.VerifyUserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.UserID
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestHealth(t *testing.T) {
	api := newAPI(t, false)
	rec := api.do(t, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_DatabaseDown(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthHandler(time.Now(), downPinger{}, zap.NewNop()).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unreachable"`)
}

func TestRegisterAndLogin(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "ana", "")

	identity, err := api.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, identity.Role)

	rec := api.do(t, http.MethodPost, "/api/register", "", dto.RegisterRequest{Username: "ana", Email: "other@example.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/register", "", dto.RegisterRequest{Username: "bob", Email: "ana@example.com", Password: "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/register", "", dto.RegisterRequest{Username: "", Email: "e@example.com", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/register", "", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid JSON payload", errorOf(t, rec))

	rec = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: "ana", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: "nobody", Password: "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: "ana"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "carla", "")
	api.signup(t, "dani", "")

	rec := api.do(t, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/me", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var profile models.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, models.Profile{Username: "carla", Email: "carla@example.com"}, profile)

	rec = api.do(t, http.MethodPut, "/api/update", token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/update", token, map[string]string{"username": "dani"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/update", token, map[string]string{"email": "carla@new.example.com"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/me", token, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profile))
	assert.Equal(t, "carla@new.example.com", profile.Email)
}

func TestResetPasswordEndpoint(t *testing.T) {
	api := newAPI(t, false)
	api.signup(t, "eva", "")

	rec := api.do(t, http.MethodPost, "/api/reset-password", "", dto.ResetPasswordRequest{Email: "missing@example.com", NewPassword: "n"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/reset-password", "", dto.ResetPasswordRequest{Email: "eva@example.com", NewPassword: "pw-eva"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/reset-password", "", dto.ResetPasswordRequest{Email: "eva@example.com", NewPassword: "fresh"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: "eva", Password: "fresh"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestVerifyUserEndpoint(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "fabio", "")

	assert.Positive(t, api.userID(t, token, "fabio"))

	rec := api.do(t, http.MethodPost, "/api/verify-user", token, dto.VerifyUserRequest{Username: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/verify-user", token, dto.VerifyUserRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/verify-user", "", dto.VerifyUserRequest{Username: "fabio"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeasurementLifecycle(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "gil", "")
	owner := api.userID(t, token, "gil")

	rec := api.do(t, http.MethodGet, "/api/medicoes", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/medicoes", token, map[string]any{"user_id": owner, "torre": "Torre A", "kwh": "12,5"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created dto.MeasurementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 12.5, created.Measurement.KWh)
	assert.Equal(t, "Torre A", created.Measurement.Tower)
	assert.Equal(t, owner, created.Measurement.UserID)
	assert.Contains(t, rec.Body.String(), `"medicao"`)

	rec = api.do(t, http.MethodPost, "/api/medicoes", token, map[string]any{"user_id": owner, "torre": "Torre B", "kwh": 30})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/medicoes", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []models.Measurement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Less(t, all[0].ID, all[1].ID)

	path := "/api/medicoes/" + strconv.FormatInt(created.Measurement.ID, 10)
	rec = api.do(t, http.MethodGet, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPut, path, token, map[string]any{"kwh": 15})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated dto.MeasurementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 15.0, updated.Measurement.KWh)
	assert.Equal(t, "Torre A", updated.Measurement.Tower)

	rec = api.do(t, http.MethodPut, path, token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/medicoes/summary", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var shares []dto.TowerShare
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shares))
	assert.Equal(t, []dto.TowerShare{
		{Tower: "Torre A", KWh: 15, Percentage: 33.3},
		{Tower: "Torre B", KWh: 30, Percentage: 66.7},
	}, shares)

	rec = api.do(t, http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, path, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateMeasurementValidation(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "hugo", "")
	owner := api.userID(t, token, "hugo")

	cases := []struct {
		name   string
		body   any
		status int
	}{
		{"negative kwh", map[string]any{"user_id": owner, "torre": "Torre A", "kwh": -5}, http.StatusBadRequest},
		{"zero kwh", map[string]any{"user_id": owner, "torre": "Torre A", "kwh": 0}, http.StatusBadRequest},
		{"missing kwh", map[string]any{"user_id": owner, "torre": "Torre A"}, http.StatusBadRequest},
		{"missing tower", map[string]any{"user_id": owner, "kwh": 3}, http.StatusBadRequest},
		{"missing owner", map[string]any{"torre": "Torre A", "kwh": 3}, http.StatusBadRequest},
		{"text kwh", map[string]any{"user_id": owner, "torre": "Torre A", "kwh": "abc"}, http.StatusBadRequest},
		{"unknown owner", map[string]any{"user_id": owner + 100, "torre": "Torre A", "kwh": 3}, http.StatusNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/medicoes", token, c.body)
			assert.Equal(t, c.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestMeasurementByID_BadID(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "ivo", "")

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := api.do(t, method, "/api/medicoes/abc", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, method)
	}
	rec := api.do(t, http.MethodGet, "/api/medicoes/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStrictOwnership(t *testing.T) {
	api := newAPI(t, true)
	owner := api.signup(t, "joao", "")
	other := api.signup(t, "kiko", "")
	admin := api.seedAdmin(t, "root")
	ownerID := api.userID(t, owner, "joao")

	rec := api.do(t, http.MethodPost, "/api/medicoes", other, map[string]any{"user_id": ownerID, "torre": "Torre C", "kwh": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/medicoes", owner, map[string]any{"user_id": ownerID, "torre": "Torre C", "kwh": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created dto.MeasurementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := "/api/medicoes/" + strconv.FormatInt(created.Measurement.ID, 10)

	rec = api.do(t, http.MethodPut, path, other, map[string]any{"torre": "Torre A"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodDelete, path, other, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/register", "", dto.RegisterRequest{
		Username: "mallory", Email: "mallory@example.com", Password: "pw", Role: models.RoleAdmin,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = api.do(t, http.MethodPost, "/api/login", "", dto.LoginRequest{Username: "mallory", Password: "pw"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, http.MethodDelete, path, admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister_AdminAllowedWithoutStrictOwnership(t *testing.T) {
	api := newAPI(t, false)
	token := api.signup(t, "boss", models.RoleAdmin)

	identity, err := api.tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, identity.Role)
}

func TestPasswordTooLong(t *testing.T) {
	api := newAPI(t, false)
	api.signup(t, "lena", "")
	long := strings.Repeat("x", 100)

	rec := api.do(t, http.MethodPost, "/api/register", "", dto.RegisterRequest{Username: "max", Email: "max@example.com", Password: long})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at most 72 bytes", errorOf(t, rec))

	rec = api.do(t, http.MethodPost, "/api/reset-password", "", dto.ResetPasswordRequest{Email: "lena@example.com", NewPassword: long})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "password must be at most 72 bytes", errorOf(t, rec))
}
