package cli

import (
	"context"
	"errors"
	"os"
	"time"

	config "github.com/avvvet/csss-services/configs"
	"github.com/avvvet/csss-services/internal/client"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/session"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// App is the state shared by every csssctl command.
type App struct {
	APIURL      string
	SessionPath string
	Now         func() time.Time

	store *session.FileStore
}

func (a *App) init() error {
	if a.APIURL == "" {
		a.APIURL = os.Getenv("CSSS_API_URL")
	}
	if a.APIURL == "" {
		a.APIURL = client.DefaultBaseURL
	}
	if a.SessionPath == "" {
		path, err := session.DefaultPath()
		if err != nil {
			return err
		}
		a.SessionPath = path
	}
	if a.Now == nil {
		a.Now = time.Now
	}
	a.store = session.NewFileStore(a.SessionPath)
	return nil
}

// Client sends the stored token and drops the session on a 401.
func (a *App) Client() *client.Client {
	return client.New(a.APIURL, a.store, client.WithUnauthorized(func() {
		if err := a.store.Clear(); err != nil {
			log.Warnf("clear session: %s", err)
		}
	}))
}

var errOTPPending = errors.New("OTP verification required, run `csssctl otp send` and `csssctl otp verify`")

// guard returns a client only when the stored session belongs to role.
// A pending admin login is kept so that `otp verify` can finish it.
func (a *App) guard(role models.Role) (*client.Client, *session.Data, error) {
	d, c, err := session.Guard(a.store, role, a.Now())
	if err != nil {
		return nil, nil, err
	}
	if c.OTPRequired {
		return nil, nil, errOTPPending
	}
	return a.Client(), d, nil
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{})
}

func newRootCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csssctl",
		Short: "Clinical Scan Support System command line",
		Long: `csssctl drives the CSSS backend: upload and track scans as a patient,
review them as a doctor or pharmacist, approve reports as an admin,
and run operational tasks such as migrations, seeding and dataset export.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetLevel(log.ErrorLevel)
			config.LoadEnv("csssctl")
			return app.init()
		},
	}

	cmd.PersistentFlags().StringVar(&app.APIURL, "api", app.APIURL, "Backend base URL (default $CSSS_API_URL or "+client.DefaultBaseURL+")")
	cmd.PersistentFlags().StringVar(&app.SessionPath, "session", app.SessionPath, "Session file (default ~/.csss/session.json)")

	cmd.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newExportCmd(),
		newLoginCmd(app),
		newOTPCmd(app),
		newRegisterCmd(app),
		newLogoutCmd(app),
		newPatientCmd(app),
		newDoctorCmd(app),
		newPharmacistCmd(app),
		newAdminCmd(app),
		newReportCmd(app),
		newChatCmd(app),
	)

	return cmd
}

func ctx(cmd *cobra.Command) context.Context {
	if c := cmd.Context(); c != nil {
		return c
	}
	return context.Background()
}
