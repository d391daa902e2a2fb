// Package cli implements the ondata command-line front end: one subcommand
// per screen of the mobile app.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hongminglow/ondata-be/internal/client"
	"github.com/hongminglow/ondata-be/internal/client/session"
)

// ErrUsage is returned for unknown commands or bad flags.
var ErrUsage = errors.New("usage error")

// ErrSessionExpired is returned after the API rejected the stored token.
var ErrSessionExpired = errors.New("session expired, run `ondata login` again")

// ErrNotLoggedIn is returned by commands that need a session when none exists.
var ErrNotLoggedIn = errors.New("not logged in, run `ondata login` first")

type command struct {
	summary string
	run     func(ctx context.Context, a *App, args []string) error
}

var commands = map[string]command{
	"register":       {"create an account", runRegister},
	"login":          {"log in and store the session", runLogin},
	"logout":         {"forget the stored session", runLogout},
	"me":             {"show the logged-in profile", runMe},
	"update":         {"change username and/or email", runUpdate},
	"reset-password": {"set a new password for an email", runResetPassword},
	"add":            {"record a measurement", runAdd},
	"list":           {"list every measurement", runList},
	"show":           {"show one measurement", runShow},
	"edit":           {"change tower and/or kwh of a measurement", runEdit},
	"delete":         {"delete a measurement", runDelete},
	"home":           {"per-tower consumption shares", runHome},
}

// App holds the dependencies shared by every command.
type App struct {
	api      *client.Client
	sessions *session.Store
	in       *bufio.Reader
	out      io.Writer
}

// NewApp builds an App.
func NewApp(api *client.Client, sessions *session.Store, in io.Reader, out io.Writer) *App {
	return &App{api: api, sessions: sessions, in: bufio.NewReader(in), out: out}
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		a.usage()
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		a.usage()
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}
	return cmd.run(ctx, a, args[1:])
}

func (a *App) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(a.out, "usage: ondata [-api URL] <command> [flags]")
	fmt.Fprintln(a.out)
	for _, name := range names {
		fmt.Fprintf(a.out, "  %-15s %s\n", name, commands[name].summary)
	}
}

func (a *App) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// requireSession loads the stored session.
func (a *App) requireSession() (session.State, client.Session, error) {
	st, err := a.sessions.Load()
	if errors.Is(err, session.ErrNoSession) {
		return session.State{}, client.Session{}, ErrNotLoggedIn
	}
	if err != nil {
		return session.State{}, client.Session{}, err
	}
	return st, client.Session{Token: st.Token, Username: st.Username}, nil
}

// checkAuth discards the stored session when the API answered 401.
func (a *App) checkAuth(err error) error {
	if err == nil || !client.IsUnauthorized(err) {
		return err
	}
	if clearErr := a.sessions.Clear(); clearErr != nil {
		return errors.Join(ErrSessionExpired, clearErr)
	}
	return ErrSessionExpired
}

func trimmed(s string) string { return strings.TrimSpace(s) }
