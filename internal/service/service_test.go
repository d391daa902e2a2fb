package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/ondata-be/internal/auth"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/password"
	"github.com/hongminglow/ondata-be/internal/storage/sqlite"
)

type fixture struct {
	store        *sqlite.Store
	tokens       *auth.TokenManager
	auth         *AuthService
	measurements *MeasurementService
}

func newFixture(t *testing.T, strict bool) fixture {
	t.Helper()
	store, err := sqlite.NewStore(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	tokens := auth.NewTokenManager("test-secret", "ondata-test", time.Hour)
	logger := zap.NewNop()
	return fixture{
		store:        store,
		tokens:       tokens,
		auth:         NewAuthService(store, password.NewBcryptHasher(bcrypt.MinCost), tokens, logger),
		measurements: NewMeasurementService(store, strict, logger),
	}
}

func (f fixture) register(t *testing.T, username, role string) models.User {
	t.Helper()
	u, err := f.auth.Register(context.Background(), username, username+"@example.com", "pass-"+username, role)
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }
