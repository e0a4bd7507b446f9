package cli

import (
	"fmt"
	"strings"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/service"
	"github.com/avvvet/csss-services/internal/session"
	"github.com/spf13/cobra"
)

func saveLogin(app *App, res *service.LoginResult, email string) error {
	u := session.User{ID: res.UserID, Name: res.Name, Email: email, Role: res.Role}
	// pre-auth responses carry neither role nor id, the token does
	if c, err := session.ParseClaims(res.AccessToken); err == nil {
		if u.Role == "" {
			u.Role = c.Role
		}
		if u.ID == 0 {
			u.ID = c.UserID
		}
	}
	return app.store.Save(&session.Data{Token: res.AccessToken, User: u})
}

func newLoginCmd(app *App) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session",
		Example: `  csssctl login --email patient@csss.com --password Patient123
  # admins continue with
  csssctl otp send && csssctl otp verify --code 123456`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := app.Client().Login(ctx(cmd), email, password)
			if err != nil {
				return err
			}
			if err := saveLogin(app, res, strings.ToLower(strings.TrimSpace(email))); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.OTPRequired {
				fmt.Fprintln(out, "OTP verification required. Run `csssctl otp send`, then `csssctl otp verify --code <otp>`.")
				return nil
			}
			fmt.Fprintf(out, "Logged in as %s (%s).\n", res.Name, res.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email (required)")
	cmd.Flags().StringVar(&password, "password", "", "Account password (required)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// otpEmail falls back to the email of the pending login.
func otpEmail(app *App, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	d, err := app.store.Load()
	if err != nil || d == nil || d.User.Email == "" {
		return "", fmt.Errorf("--email is required when no login is pending")
	}
	return d.User.Email, nil
}

func newOTPCmd(app *App) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "otp",
		Short: "Admin one-time password step",
	}
	cmd.PersistentFlags().StringVar(&email, "email", "", "Admin email (default: the pending login)")

	send := &cobra.Command{
		Use:   "send",
		Short: "Email a one-time password",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := otpEmail(app, email)
			if err != nil {
				return err
			}
			res, err := app.Client().SendOTP(ctx(cmd), addr)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s. It expires in %d minutes.\n", res.Message, res.ExpiresInMinutes)
			return nil
		},
	}

	var code string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Exchange the one-time password for a full session",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := otpEmail(app, email)
			if err != nil {
				return err
			}
			res, err := app.Client().VerifyOTP(ctx(cmd), addr, strings.TrimSpace(code))
			if err != nil {
				return err
			}
			if err := saveLogin(app, res, addr); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s).\n", res.Name, res.Role)
			return nil
		},
	}
	verify.Flags().StringVar(&code, "code", "", "The 6 digit code (required)")
	_ = verify.MarkFlagRequired("code")

	cmd.AddCommand(send, verify)
	return cmd
}

func newRegisterCmd(app *App) *cobra.Command {
	var in service.RegisterInput
	var role string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account. Patients may register themselves; creating an
admin requires being logged in as an admin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Role = models.Role(role)
			res, err := app.Client().Register(ctx(cmd), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered user %d as %s.\n", res.UserID, res.Role)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Name, "name", "", "Full name (required)")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email (required)")
	cmd.Flags().StringVar(&in.Password, "password", "", "Password, at least 6 characters (required)")
	cmd.Flags().StringVar(&role, "role", "patient", "patient, doctor, pharmacist or admin")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged out, removed %s.\n", app.store.Path())
			return nil
		},
	}
}
