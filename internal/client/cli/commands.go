package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"text/tabwriter"

	"github.com/hongminglow/ondata-be/internal/client"
	"github.com/hongminglow/ondata-be/internal/client/session"
	"github.com/hongminglow/ondata-be/internal/models"
	"github.com/hongminglow/ondata-be/internal/models/dto"
	"github.com/hongminglow/ondata-be/internal/report"
)

// ErrPasswordMismatch is returned when the confirmation differs from the password.
var ErrPasswordMismatch = errors.New("passwords do not match")

var errRequiredFields = errors.New("all fields are required")

func runRegister(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("register")
	username := fs.String("username", "", "account username")
	email := fs.String("email", "", "account email")
	role := fs.String("role", "", "user or admin (default user)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var err error
	if *username, err = a.valueOrPrompt(*username, "Username"); err != nil {
		return err
	}
	if *email, err = a.valueOrPrompt(*email, "Email"); err != nil {
		return err
	}
	pw, err := a.confirmedPassword("Password")
	if err != nil {
		return err
	}
	if *username == "" || *email == "" {
		return errRequiredFields
	}

	req := dto.RegisterRequest{Username: *username, Email: *email, Password: pw, Role: *role}
	if err := a.api.Register(ctx, req); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Account %s created. Run `ondata login` to continue.\n", *username)
	return nil
}

func runLogin(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("login")
	username := fs.String("username", "", "account username")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var err error
	if *username, err = a.valueOrPrompt(*username, "Username"); err != nil {
		return err
	}
	pw, err := a.promptPassword("Password")
	if err != nil {
		return err
	}
	if *username == "" || pw == "" {
		return errRequiredFields
	}

	s, err := a.api.Login(ctx, *username, pw)
	if err != nil {
		return err
	}
	if err := a.sessions.Save(session.State{Token: s.Token, Username: s.Username}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s.\n", s.Username)
	return nil
}

func runLogout(_ context.Context, a *App, _ []string) error {
	if err := a.sessions.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

func runMe(ctx context.Context, a *App, _ []string) error {
	_, s, err := a.requireSession()
	if err != nil {
		return err
	}
	profile, err := a.api.Me(ctx, s)
	if err != nil {
		return a.checkAuth(err)
	}
	fmt.Fprintf(a.out, "Username: %s\nEmail:    %s\n", profile.Username, profile.Email)
	return nil
}

func runUpdate(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("update")
	username := fs.String("username", "", "new username")
	email := fs.String("email", "", "new email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	st, s, err := a.requireSession()
	if err != nil {
		return err
	}

	var req dto.UpdateProfileRequest
	if v := trimmed(*username); v != "" {
		req.Username = &v
	}
	if v := trimmed(*email); v != "" {
		req.Email = &v
	}
	if req.Username == nil && req.Email == nil {
		return fmt.Errorf("%w: pass -username and/or -email", ErrUsage)
	}
	if err := a.api.UpdateProfile(ctx, s, req); err != nil {
		return a.checkAuth(err)
	}
	if req.Username != nil {
		st.Username = *req.Username
		if err := a.sessions.Save(st); err != nil {
			return err
		}
	}
	fmt.Fprintln(a.out, "Profile updated.")
	return nil
}

func runResetPassword(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("reset-password")
	email := fs.String("email", "", "account email")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var err error
	if *email, err = a.valueOrPrompt(*email, "Email"); err != nil {
		return err
	}
	pw, err := a.confirmedPassword("New password")
	if err != nil {
		return err
	}
	if *email == "" {
		return errRequiredFields
	}
	if err := a.api.ResetPassword(ctx, *email, pw); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password reset.")
	return nil
}

func runAdd(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("add")
	username := fs.String("user", "", "owner username (default: logged-in user)")
	tower := fs.String("torre", "", "tower label, e.g. \"Torre A\"")
	kwhText := fs.String("kwh", "", "consumption in kWh")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	st, s, err := a.requireSession()
	if err != nil {
		return err
	}

	owner := trimmed(*username)
	if owner == "" {
		owner = st.Username
	}
	if *tower, err = a.valueOrPrompt(*tower, "Torre"); err != nil {
		return err
	}
	if *kwhText, err = a.valueOrPrompt(*kwhText, "kWh"); err != nil {
		return err
	}
	if owner == "" || *tower == "" || *kwhText == "" {
		return errRequiredFields
	}
	kwh, err := client.ParseKWh(*kwhText)
	if err != nil {
		return err
	}

	ownerID, err := a.api.VerifyUser(ctx, s, owner)
	if err != nil {
		return a.checkAuth(err)
	}
	m, err := a.api.CreateMeasurement(ctx, s, ownerID, *tower, kwh)
	if err != nil {
		return a.checkAuth(err)
	}
	fmt.Fprintf(a.out, "Measurement %d recorded: %s %s kWh for %s.\n", m.ID, m.Tower, formatKWh(m.KWh), owner)
	return nil
}

func runList(ctx context.Context, a *App, _ []string) error {
	st, err := a.refreshMeasurements(ctx)
	if err != nil {
		return err
	}
	all := newestFirst(st.Measurements)
	if len(all) == 0 {
		fmt.Fprintln(a.out, "No measurements recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSER\tTORRE\tKWH\tCREATED")
	for _, m := range all {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", m.ID, m.UserID, m.Tower, formatKWh(m.KWh), m.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runShow(ctx context.Context, a *App, args []string) error {
	id, err := measurementID(args)
	if err != nil {
		return err
	}
	_, s, err := a.requireSession()
	if err != nil {
		return err
	}
	m, err := a.api.GetMeasurement(ctx, s, id)
	if err != nil {
		return a.checkAuth(err)
	}
	printMeasurement(a, m)
	return nil
}

func runEdit(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("edit")
	tower := fs.String("torre", "", "new tower label")
	kwhText := fs.String("kwh", "", "new consumption in kWh")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	id, err := measurementID(fs.Args())
	if err != nil {
		return err
	}

	var update models.MeasurementUpdate
	if v := trimmed(*tower); v != "" {
		update.Tower = &v
	}
	if trimmed(*kwhText) != "" {
		kwh, err := client.ParseKWh(*kwhText)
		if err != nil {
			return err
		}
		update.KWh = &kwh
	}
	if update.Tower == nil && update.KWh == nil {
		return fmt.Errorf("%w: pass -torre and/or -kwh", ErrUsage)
	}

	_, s, err := a.requireSession()
	if err != nil {
		return err
	}
	m, err := a.api.UpdateMeasurement(ctx, s, id, update)
	if err != nil {
		return a.checkAuth(err)
	}
	printMeasurement(a, m)
	return nil
}

func runDelete(ctx context.Context, a *App, args []string) error {
	id, err := measurementID(args)
	if err != nil {
		return err
	}
	_, s, err := a.requireSession()
	if err != nil {
		return err
	}
	if err := a.api.DeleteMeasurement(ctx, s, id); err != nil {
		return a.checkAuth(err)
	}
	fmt.Fprintf(a.out, "Measurement %d deleted.\n", id)
	return nil
}

// runHome mirrors the home screen: fetch everything, aggregate locally.
// With -server the aggregation comes from /medicoes/summary instead.
func runHome(ctx context.Context, a *App, args []string) error {
	fs := a.flagSet("home")
	fromServer := fs.Bool("server", false, "use the server-side summary")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var (
		username string
		shares   []report.TowerShare
	)
	if *fromServer {
		st, s, err := a.requireSession()
		if err != nil {
			return err
		}
		summary, err := a.api.Summary(ctx, s)
		if err != nil {
			return a.checkAuth(err)
		}
		username = st.Username
		shares = make([]report.TowerShare, 0, len(summary))
		for _, ts := range summary {
			shares = append(shares, report.TowerShare{Tower: ts.Tower, TotalKWh: ts.KWh, Percentage: ts.Percentage})
		}
	} else {
		st, err := a.refreshMeasurements(ctx)
		if err != nil {
			return err
		}
		username = st.Username
		shares = report.Aggregate(st.Measurements)
	}
	fmt.Fprintf(a.out, "Hello, %s!\n", username)

	if len(shares) == 0 {
		fmt.Fprintln(a.out, "No consumption recorded yet.")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TORRE\tKWH\tSHARE")
	for _, s := range shares {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", s.Tower, formatKWh(s.TotalKWh), s.Percentage)
	}
	return tw.Flush()
}

// refreshMeasurements fetches the full list and caches it in the session file.
func (a *App) refreshMeasurements(ctx context.Context) (session.State, error) {
	st, s, err := a.requireSession()
	if err != nil {
		return session.State{}, err
	}
	all, err := a.api.ListMeasurements(ctx, s)
	if err != nil {
		return session.State{}, a.checkAuth(err)
	}
	st.Measurements = all
	if err := a.sessions.Save(st); err != nil {
		return session.State{}, err
	}
	return st, nil
}

func (a *App) confirmedPassword(label string) (string, error) {
	pw, err := a.promptPassword(label)
	if err != nil {
		return "", err
	}
	confirm, err := a.promptPassword("Confirm " + label)
	if err != nil {
		return "", err
	}
	if pw == "" {
		return "", errRequiredFields
	}
	if pw != confirm {
		return "", ErrPasswordMismatch
	}
	return pw, nil
}

// newestFirst returns a copy ordered by creation time, newest first.
func newestFirst(in []models.Measurement) []models.Measurement {
	out := slices.Clone(in)
	slices.SortFunc(out, func(x, y models.Measurement) int {
		if c := y.CreatedAt.Compare(x.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(y.ID, x.ID)
	})
	return out
}

func measurementID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%w: expected exactly one measurement id", ErrUsage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid measurement id %q", ErrUsage, args[0])
	}
	return id, nil
}

func printMeasurement(a *App, m models.Measurement) {
	fmt.Fprintf(a.out, "ID:      %d\nUser:    %d\nTorre:   %s\nkWh:     %s\nCreated: %s\n",
		m.ID, m.UserID, m.Tower, formatKWh(m.KWh), m.CreatedAt.Local().Format("2006-01-02 15:04"))
}

func formatKWh(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
