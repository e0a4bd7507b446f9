package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/avvvet/csss-services/internal/export"
	"github.com/avvvet/csss-services/internal/scansvc/db"
	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/avvvet/csss-services/internal/scansvc/service"
	"github.com/avvvet/csss-services/internal/scansvc/store"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type SeedUser struct {
	Name     string
	Email    string
	Password string
	Role     models.Role
}

// DefaultSeedUsers is one account per role for local setups.
var DefaultSeedUsers = []SeedUser{
	{"System Admin", "admin@csss.com", "Admin123", models.RoleAdmin},
	{"Test Doctor", "doctor@csss.com", "Doctor123", models.RoleDoctor},
	{"Test Pharmacist", "pharma@csss.com", "Pharma123", models.RolePharmacist},
	{"Test Patient", "patient@csss.com", "Patient123", models.RolePatient},
}

// Seed creates the users that do not exist yet and returns the emails it created.
func Seed(ctx context.Context, users service.UserStore, seed []SeedUser) ([]string, error) {
	var created []string
	for _, u := range seed {
		email := strings.ToLower(u.Email)
		existing, err := users.GetByEmail(ctx, email)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
		if err != nil {
			return created, err
		}
		if _, err := users.CreateUser(ctx, models.User{
			Name:     u.Name,
			Email:    email,
			Password: string(hash),
			Role:     u.Role,
			IsActive: true,
		}); err != nil {
			return created, fmt.Errorf("seed %s: %w", email, err)
		}
		created = append(created, email)
	}
	return created, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.Connect()
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.ClosePool()

			if err := db.Migrate(ctx(cmd), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database is up to date.")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create one test account per role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.Connect()
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.ClosePool()

			if err := db.Migrate(ctx(cmd), pool); err != nil {
				return err
			}
			created, err := Seed(ctx(cmd), store.NewUserStore(pool), DefaultSeedUsers)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(created) == 0 {
				fmt.Fprintln(out, "Seed users already exist.")
				return nil
			}
			for _, email := range created {
				fmt.Fprintf(out, "Created %s\n", email)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var out string
	var verifiedOnly bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export scans to a Parquet dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := db.Connect()
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer db.ClosePool()

			scans, err := store.NewScanStore(pool).ListScans(ctx(cmd), store.ScanFilter{})
			if err != nil {
				return err
			}
			rows := export.Rows(scans, verifiedOnly)
			if err := export.WriteFile(out, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d rows to %s.\n", len(rows), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "scans.parquet", "Output file")
	cmd.Flags().BoolVar(&verifiedOnly, "verified", false, "Only doctor-verified scans")

	return cmd
}
