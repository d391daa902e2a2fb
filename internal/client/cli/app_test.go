package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/hongminglow/ondata-be/internal/client"
	"github.com/hongminglow/ondata-be/internal/client/session"
	"github.com/hongminglow/ondata-be/internal/config"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/server"
	"github.com/hongminglow/ondata-be/internal/storage/sqlite"
)

type harness struct {
	api      *client.Client
	sessions *session.Store
}

func newHarness(t *testing.T) harness {
	t.Helper()
	store, err := sqlite.NewStore(context.Background(), sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cfg := config.Config{
		JWTSecret:   "cli-secret",
		JWTIssuer:   "ondata-test",
		JWTTTL:      time.Hour,
		CORSOrigins: []string{"*"},
		BcryptCost:  bcrypt.MinCost,
	}
	ts := httptest.NewServer(server.NewHandler(cfg, store, zap.NewNop()))
	t.Cleanup(ts.Close)

	// stdin is never a terminal under go test; force the line-reading path.
	prev := isTerminal
	isTerminal = func(int) bool { return false }
	t.Cleanup(func() { isTerminal = prev })

	return harness{
		api:      client.New(ts.URL, ts.Client()),
		sessions: session.NewStore(filepath.Join(t.TempDir(), "session.json")),
	}
}

// run executes one command with stdin fed from input and returns stdout.
func (h harness) run(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(h.api, h.sessions, strings.NewReader(input), &out)
	err := app.Run(context.Background(), args)
	return out.String(), err
}

func (h harness) mustRun(t *testing.T, input string, args ...string) string {
	t.Helper()
	out, err := h.run(t, input, args...)
	require.NoError(t, err, out)
	return out
}

func TestCLI_RegisterLoginHome(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun(t, "ana\nana@example.com\nsecret\nsecret\n", "register")
	assert.Contains(t, out, "Account ana created")

	_, err := h.run(t, "bia\nbia@example.com\nsecret\nother\n", "register")
	assert.ErrorIs(t, err, ErrPasswordMismatch)

	_, err = h.run(t, "", "me")
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	h.mustRun(t, "secret\n", "login", "-username", "ana")
	st, err := h.sessions.Load()
	require.NoError(t, err)
	assert.Equal(t, "ana", st.Username)
	assert.NotEmpty(t, st.Token)

	out = h.mustRun(t, "", "me")
	assert.Contains(t, out, "ana@example.com")

	h.mustRun(t, "", "add", "-torre", "Torre A", "-kwh", "10")
	h.mustRun(t, "", "add", "-torre", "Torre B", "-kwh", "30")
	h.mustRun(t, "Torre A\n5\n", "add")

	_, err = h.run(t, "", "add", "-torre", "Torre A", "-kwh", "-5")
	assert.ErrorIs(t, err, client.ErrInvalidKWh)

	_, err = h.run(t, "", "add", "-user", "ghost", "-torre", "Torre A", "-kwh", "1")
	assert.Equal(t, 404, client.StatusOf(err))

	out = h.mustRun(t, "", "home")
	assert.Contains(t, out, "Hello, ana!")
	assert.Regexp(t, `Torre A\s+15\s+33\.3%`, out)
	assert.Regexp(t, `Torre B\s+30\s+66\.7%`, out)
	assert.Less(t, strings.Index(out, "Torre A"), strings.Index(out, "Torre B"))

	fromServer := h.mustRun(t, "", "home", "-server")
	assert.Equal(t, out, fromServer)

	st, err = h.sessions.Load()
	require.NoError(t, err)
	assert.Len(t, st.Measurements, 3)
}

func TestCLI_MeasurementCommands(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "carlos\ncarlos@example.com\npw\npw\n", "register")
	h.mustRun(t, "pw\n", "login", "-username", "carlos")
	h.mustRun(t, "", "add", "-torre", "Torre C", "-kwh", "7,5")

	out := h.mustRun(t, "", "list")
	assert.Contains(t, out, "Torre C")
	assert.Contains(t, out, "7.5")

	st, err := h.sessions.Load()
	require.NoError(t, err)
	require.Len(t, st.Measurements, 1)
	idArg := strconv.FormatInt(st.Measurements[0].ID, 10)

	h.mustRun(t, "", "add", "-torre", "Torre D", "-kwh", "1")
	out = h.mustRun(t, "", "list")
	assert.Less(t, strings.Index(out, "Torre D"), strings.Index(out, "Torre C"), "newest measurement listed first")

	out = h.mustRun(t, "", "edit", "-kwh", "8", idArg)
	assert.Contains(t, out, "kWh:     8")

	out = h.mustRun(t, "", "show", idArg)
	assert.Contains(t, out, "Torre C")

	_, err = h.run(t, "", "edit", idArg)
	assert.ErrorIs(t, err, ErrUsage)

	_, err = h.run(t, "", "show", "abc")
	assert.ErrorIs(t, err, ErrUsage)

	out = h.mustRun(t, "", "delete", idArg)
	assert.Contains(t, out, "deleted")

	_, err = h.run(t, "", "show", idArg)
	assert.Equal(t, 404, client.StatusOf(err))

	out = h.mustRun(t, "", "home")
	assert.Regexp(t, `Torre D\s+1\s+100\.0%`, out)
	assert.NotContains(t, out, "Torre C")
}

func TestCLI_ProfileAndPassword(t *testing.T) {
	h := newHarness(t)
	h.mustRun(t, "dora\ndora@example.com\nold\nold\n", "register")
	h.mustRun(t, "old\n", "login", "-username", "dora")

	_, err := h.run(t, "", "update")
	assert.ErrorIs(t, err, ErrUsage)

	h.mustRun(t, "", "update", "-username", "dora2")
	st, err := h.sessions.Load()
	require.NoError(t, err)
	assert.Equal(t, "dora2", st.Username)

	_, err = h.run(t, "old\nold\n", "reset-password", "-email", "dora@example.com")
	assert.Equal(t, 400, client.StatusOf(err))

	h.mustRun(t, "new\nnew\n", "reset-password", "-email", "dora@example.com")
	h.mustRun(t, "new\n", "login", "-username", "dora2")

	h.mustRun(t, "", "logout")
	_, err = h.sessions.Load()
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestCLI_ExpiredSessionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.sessions.Save(session.State{Token: "stale", Username: "eli"}))

	_, err := h.run(t, "", "list")
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, err = h.sessions.Load()
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestCLI_Usage(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "")
	assert.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, out, "reset-password")

	_, err = h.run(t, "", "bogus")
	assert.ErrorIs(t, err, ErrUsage)

	out = h.mustRun(t, "", "help")
	assert.Contains(t, out, "home")
}

func TestPromptPassword_TerminalReadsWithoutEcho(t *testing.T) {
	prevTerm, prevRead := isTerminal, readPassword
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("hidden"), nil }
	t.Cleanup(func() { isTerminal, readPassword = prevTerm, prevRead })

	var out bytes.Buffer
	app := NewApp(nil, nil, strings.NewReader("ignored\n"), &out)
	pw, err := app.promptPassword("Password")
	require.NoError(t, err)
	assert.Equal(t, "hidden", pw)
	assert.Equal(t, "Password: \n", out.String())
}

func TestNewestFirst(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	in := []models.Measurement{
		{ID: 1, CreatedAt: base.Add(time.Hour)},
		{ID: 2, CreatedAt: base},
		{ID: 3, CreatedAt: base},
	}
	got := newestFirst(in)

	ids := make([]int64, 0, len(got))
	for _, m := range got {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{1, 3, 2}, ids)
	assert.Equal(t, int64(1), in[0].ID)
	assert.Equal(t, int64(2), in[1].ID)
}
