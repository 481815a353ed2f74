// Command portal is an interactive terminal client for the HealthApp
// backend. It drives the same session, availability, and booking components
// the gateway exposes over HTTP.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/osu-healthapp/portal-gateway/internal/admin"
	"github.com/osu-healthapp/portal-gateway/internal/appointments"
	"github.com/osu-healthapp/portal-gateway/internal/availability"
	"github.com/osu-healthapp/portal-gateway/internal/booking"
	appconfig "github.com/osu-healthapp/portal-gateway/internal/config"
	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/healthmetrics"
	"github.com/osu-healthapp/portal-gateway/internal/providers"
	"github.com/osu-healthapp/portal-gateway/internal/session"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewText(cfg.LogLevel)

	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid clinic timezone %q: %v\n", cfg.ClinicTimezone, err)
		os.Exit(1)
	}

	// The CLI keeps its session in a cookie jar, unlike the gateway.
	client, err := healthapi.New(healthapi.Config{
		BaseURL:      cfg.BackendBaseURL,
		Timeout:      cfg.BackendTimeout,
		UseCookieJar: true,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create backend client: %v\n", err)
		os.Exit(1)
	}

	app := newPortalApp(client, logger, cfg.AppointmentDuration, cfg.AvailabilityTimeout, loc)
	app.run(context.Background(), os.Stdin)
}

type portalApp struct {
	store    *session.Store
	loader   *providers.Loader
	resolver *availability.Resolver
	flow     *booking.Flow
	reader   *appointments.Reader
	accounts *admin.Manager
	recorder *healthmetrics.Recorder
}

func newPortalApp(client *healthapi.Client, logger *logging.Logger, duration, availabilityTimeout time.Duration, loc *time.Location) *portalApp {
	store := session.NewStore(client, logger)
	resolver := availability.NewResolver(client, logger,
		availability.WithTimeout(availabilityTimeout),
		availability.WithNotify(printAvailability),
	)
	submitter := booking.NewSubmitter(client, duration, loc, logger)
	reader := appointments.NewReader(client, logger,
		appointments.WithNotify(printAppointments),
	)

	app := &portalApp{
		store:    store,
		loader:   providers.NewLoader(client, logger),
		resolver: resolver,
		flow:     booking.NewFlow(resolver, submitter),
		reader:   reader,
		accounts: admin.NewManager(client, logger),
		recorder: healthmetrics.NewRecorder(client, logger),
	}

	// Keep the appointment view pinned to whoever is signed in.
	store.Subscribe(func(id healthapi.Identity, ok bool) {
		if !ok {
			reader.SetIdentity(0, appointments.KindPatient)
			return
		}
		kind := appointments.KindPatient
		if id.HasRole("doctor") {
			kind = appointments.KindDoctor
		}
		reader.SetIdentity(id.ID, kind)
	})

	return app
}

func (a *portalApp) run(ctx context.Context, in *os.File) {
	a.store.Refresh(ctx)

	fmt.Println("HealthApp portal. Type 'help' for commands.")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch cmd {
		case "help":
			printHelp()
		case "login":
			a.login(ctx, rest)
		case "logout":
			a.store.Logout(ctx)
			fmt.Println("signed out")
		case "whoami":
			a.whoami()
		case "wake":
			a.store.Wake(ctx)
		case "doctors":
			a.doctors(ctx)
		case "doctor":
			a.setDoctor(rest)
		case "date":
			a.flow.SetDate(rest)
		case "slots":
			printAvailability(a.resolver.Snapshot())
		case "slot":
			if err := a.flow.SelectSlot(rest); err != nil {
				fmt.Println("cannot select slot:", errText(err))
			}
		case "reason":
			a.flow.SetReason(rest)
		case "book":
			a.book(ctx)
		case "mine":
			if err := a.reader.Reload(); err != nil {
				fmt.Println("sign in first")
			}
		case "users":
			a.users(ctx)
		case "addrole":
			a.changeRole(ctx, rest, a.accounts.AddRole)
		case "removerole":
			a.changeRole(ctx, rest, a.accounts.RemoveRole)
		case "activate":
			a.accountAction(ctx, rest, a.accounts.Activate, "activate")
		case "deactivate":
			a.accountAction(ctx, rest, a.accounts.Deactivate, "deactivate")
		case "record":
			a.record(ctx, rest)
		case "metrics":
			a.metrics(ctx)
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command; type 'help'")
		}
	}
}

func (a *portalApp) login(ctx context.Context, rest string) {
	fields := strings.Fields(rest)
	if len(fields) != 3 {
		fmt.Println("usage: login <patient|staff> <email> <password>")
		return
	}
	role := fields[0]
	if err := a.store.Login(ctx, fields[1], fields[2], role); err != nil {
		fmt.Println("login failed:", errText(err))
		return
	}
	a.whoami()
}

func (a *portalApp) whoami() {
	id, ok := a.store.Identity()
	if !ok {
		fmt.Println("not signed in")
		return
	}
	fmt.Printf("%s <%s> roles=%s\n", id.Name, id.Email, strings.Join(id.Roles, ","))
}

func (a *portalApp) doctors(ctx context.Context) {
	list := a.loader.List(ctx)
	if len(list) == 0 {
		fmt.Println("no providers available right now")
		return
	}
	for _, p := range list {
		fmt.Printf("%4d  %s\n", p.ID, p.DisplayName())
	}
}

func (a *portalApp) setDoctor(rest string) {
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		fmt.Println("usage: doctor <id>")
		return
	}
	a.flow.SetProvider(id)
}

func (a *portalApp) book(ctx context.Context) {
	if !a.flow.CanSubmit() {
		fmt.Println("pick a doctor, date, slot, and reason first")
		return
	}
	appt, err := a.flow.Submit(ctx)
	if err != nil {
		fmt.Println("booking failed:", errText(err))
		return
	}
	fmt.Printf("booked appointment %d at %s\n", appt.ID, appt.Start.Format("2006-01-02 15:04"))
	_ = a.reader.Reload()
}

func (a *portalApp) users(ctx context.Context) {
	if err := a.accounts.Load(ctx); err != nil {
		fmt.Println("could not load accounts:", errText(err))
		return
	}
	for _, email := range a.accounts.Emails() {
		fmt.Printf("%-32s %s\n", email, strings.Join(a.accounts.Roles(email), ","))
	}
}

func (a *portalApp) changeRole(ctx context.Context, rest string, call func(context.Context, string, string) error) {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		fmt.Println("usage: addrole|removerole <email> <role>")
		return
	}
	if err := call(ctx, fields[0], fields[1]); err != nil {
		fmt.Println("role change failed:", errText(err))
		return
	}
	fmt.Printf("%s now has roles %s\n", fields[0], strings.Join(a.accounts.Roles(fields[0]), ","))
}

func (a *portalApp) accountAction(ctx context.Context, email string, call func(context.Context, string) error, verb string) {
	if email == "" {
		fmt.Println("usage: activate|deactivate <email>")
		return
	}
	if err := call(ctx, email); err != nil {
		fmt.Printf("could not %s account: %s\n", verb, errText(err))
		return
	}
	fmt.Printf("account %s %sd\n", email, verb)
}

func (a *portalApp) record(ctx context.Context, rest string) {
	id, ok := a.store.Identity()
	if !ok {
		fmt.Println("sign in first")
		return
	}
	weight, height, found := strings.Cut(rest, "/")
	if !found {
		fmt.Println("usage: record <weight>/<height>   e.g. record 150lbs/5'10\"")
		return
	}
	m, err := a.recorder.Record(ctx, id.ID, strings.TrimSpace(weight), strings.TrimSpace(height))
	if err != nil {
		fmt.Println("could not record metric:", errText(err))
		return
	}
	fmt.Printf("recorded %.1f lbs, %.2f m (BMI %.2f)\n", m.Weight, m.Height, m.BMI)
}

func (a *portalApp) metrics(ctx context.Context) {
	id, ok := a.store.Identity()
	if !ok {
		fmt.Println("sign in first")
		return
	}
	history, err := a.recorder.History(ctx, id.ID)
	if err != nil {
		fmt.Println("could not load metrics:", errText(err))
		return
	}
	if len(history) == 0 {
		fmt.Println("no metrics recorded")
		return
	}
	for _, m := range history {
		fmt.Printf("%s  %.1f lbs  %.2f m  BMI %.2f\n", m.RecordedAt.Format("2006-01-02"), m.Weight, m.Height, m.BMI)
	}
}

func printAvailability(snap availability.Snapshot) {
	switch snap.State {
	case availability.StateLoading:
		fmt.Println("loading slots...")
	case availability.StateFailed:
		fmt.Println("could not load slots:", snap.Err)
	case availability.StateLoaded:
		if len(snap.Slots) == 0 {
			fmt.Printf("no open slots for doctor %d on %s\n", snap.ProviderID, snap.Date)
			return
		}
		fmt.Printf("open slots for doctor %d on %s: %s\n", snap.ProviderID, snap.Date, strings.Join(snap.Slots, " "))
	}
}

func printAppointments(snap appointments.Snapshot) {
	switch snap.State {
	case appointments.StateFailed:
		fmt.Println("could not load appointments:", snap.Err)
	case appointments.StateLoaded:
		if len(snap.Appointments) == 0 {
			fmt.Println("no appointments")
			return
		}
		for _, appt := range snap.Appointments {
			fmt.Printf("%4d  %s  %s\n", appt.ID, appt.Start.Format("2006-01-02 15:04"), appt.Reason)
		}
	}
}

func errText(err error) string {
	if msg := healthapi.ServerMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}

func printHelp() {
	fmt.Print(`commands:
  login <patient|staff> <email> <password>
  logout | whoami | wake
  doctors            list bookable providers
  doctor <id>        choose a provider
  date <YYYY-MM-DD>  choose a date
  slots              show open slots for the chosen pair
  slot <HH:MM>       choose a slot
  reason <text>      set the visit reason
  book               submit the booking
  mine               list your appointments
  record <w>/<h>     record weight/height, e.g. record 150lbs/5'10"
  metrics            list your recorded metrics
  users              list accounts and roles (admin)
  addrole <email> <role>     grant a role (admin)
  removerole <email> <role>  revoke a role (admin)
  activate <email>           re-enable an account (admin)
  deactivate <email>         disable an account (admin)
  quit
`)
}
