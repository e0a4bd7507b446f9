package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/avvvet/csss-services/internal/scansvc/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func scanID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid scan id %q", arg)
	}
	return id, nil
}

func newPatientCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patient",
		Short: "Upload scans and follow their progress",
	}

	upload := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a scan image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app.guard(models.RolePatient)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			res, err := c.Upload(ctx(cmd), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded scan %d (%s).\n", res.ScanID, res.Status)
			return nil
		},
	}

	scans := &cobra.Command{
		Use:   "scans",
		Short: "List my scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app.guard(models.RolePatient)
			if err != nil {
				return err
			}
			list, err := c.MyScans(ctx(cmd))
			if err != nil {
				return err
			}
			printScans(cmd.OutOrStdout(), list)
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the status of my scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, d, err := app.guard(models.RolePatient)
			if err != nil {
				return err
			}
			list, err := c.PatientStatus(ctx(cmd), d.User.ID)
			if err != nil {
				return err
			}
			printScans(cmd.OutOrStdout(), list)
			return nil
		},
	}

	cmd.AddCommand(upload, scans, status)
	return cmd
}

func newDoctorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run AI analysis and verify findings",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List scans for review",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app.guard(models.RoleDoctor)
			if err != nil {
				return err
			}
			list, err := c.DoctorPending(ctx(cmd))
			if err != nil {
				return err
			}
			printScans(cmd.OutOrStdout(), list)
			return nil
		},
	}

	analyze := &cobra.Command{
		Use:   "analyze ID",
		Short: "Run the classifier on a scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := scanID(args[0])
			if err != nil {
				return err
			}
			c, _, err := app.guard(models.RoleDoctor)
			if err != nil {
				return err
			}
			res, err := c.Analyze(ctx(cmd), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scan %d: %s (%.1f%%), threshold %.2f\n", id, res.Prediction, res.Confidence*100, res.ThresholdUsed)
			labels := make([]string, 0, len(res.AllPredictions))
			for l := range res.AllPredictions {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			for _, l := range labels {
				fmt.Fprintf(out, "  %s: %.1f%%\n", l, res.AllPredictions[l]*100)
			}
			return nil
		},
	}

	var notes string
	verify := &cobra.Command{
		Use:   "verify ID",
		Short: "Record the doctor's findings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := scanID(args[0])
			if err != nil {
				return err
			}
			c, _, err := app.guard(models.RoleDoctor)
			if err != nil {
				return err
			}
			res, err := c.Verify(ctx(cmd), id, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %d is now %s.\n", id, res.Status)
			return nil
		},
	}
	verify.Flags().StringVar(&notes, "notes", "", "Clinical notes (required)")
	_ = verify.MarkFlagRequired("notes")

	cmd.AddCommand(pending, analyze, verify)
	return cmd
}

func newPharmacistCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pharmacist",
		Short: "Add medication notes to verified scans",
	}

	queue := &cobra.Command{
		Use:   "queue",
		Short: "List doctor-verified scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app.guard(models.RolePharmacist)
			if err != nil {
				return err
			}
			list, err := c.PharmacistQueue(ctx(cmd))
			if err != nil {
				return err
			}
			printScans(cmd.OutOrStdout(), list)
			return nil
		},
	}

	var notes string
	complete := &cobra.Command{
		Use:   "complete ID",
		Short: "Record medication notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := scanID(args[0])
			if err != nil {
				return err
			}
			c, _, err := app.guard(models.RolePharmacist)
			if err != nil {
				return err
			}
			res, err := c.Complete(ctx(cmd), id, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %d is now %s.\n", id, res.Status)
			return nil
		},
	}
	complete.Flags().StringVar(&notes, "notes", "", "Medication notes (required)")
	_ = complete.MarkFlagRequired("notes")

	cmd.AddCommand(queue, complete)
	return cmd
}

func newAdminCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Approve or reject completed reports",
	}

	pending := &cobra.Command{
		Use:   "pending",
		Short: "List scans awaiting approval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app.guard(models.RoleAdmin)
			if err != nil {
				return err
			}
			list, err := c.AdminPending(ctx(cmd))
			if err != nil {
				return err
			}
			printScans(cmd.OutOrStdout(), list)
			return nil
		},
	}

	approve := &cobra.Command{
		Use:   "approve ID",
		Short: "Approve a scan and generate its PDF report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := scanID(args[0])
			if err != nil {
				return err
			}
			c, _, err := app.guard(models.RoleAdmin)
			if err != nil {
				return err
			}
			res, err := c.Approve(ctx(cmd), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s).\n", res.Message, res.Filename)
			return nil
		},
	}

	var reason string
	reject := &cobra.Command{
		Use:   "reject ID",
		Short: "Reject a completed scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := scanID(args[0])
			if err != nil {
				return err
			}
			c, _, err := app.guard(models.RoleAdmin)
			if err != nil {
				return err
			}
			s, err := c.Reject(ctx(cmd), id, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scan %d is now %s.\n", s.ID, s.Status)
			return nil
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "Reason sent to the patient")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show workflow counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := app.guard(models.RoleAdmin)
			if err != nil {
				return err
			}
			st, err := c.Stats(ctx(cmd))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total scans: %d\nAwaiting approval: %d\nBy status:\n", st.Total, st.AwaitingApproval)
			printCounts(out, st.ByStatus)
			if len(st.Recent) > 0 {
				fmt.Fprintln(out, "Recent:")
				printScans(out, st.Recent)
			}
			return nil
		},
	}

	cmd.AddCommand(pending, approve, reject, stats)
	return cmd
}

func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Diagnostic reports",
	}

	var out string
	download := &cobra.Command{
		Use:   "download ID",
		Short: "Download an approved report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := scanID(args[0])
			if err != nil {
				return err
			}
			c, _, err := app.guard("")
			if err != nil {
				return err
			}
			data, filename, err := c.DownloadReport(ctx(cmd), id)
			if err != nil {
				return err
			}

			path := out
			if path == "" {
				path = filepath.Base(filename)
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d bytes).\n", path, len(data))
			return nil
		},
	}
	download.Flags().StringVarP(&out, "out", "o", "", "Output file (default: the server's filename)")

	cmd.AddCommand(download)
	return cmd
}

func newChatCmd(app *App) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Ask the help assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := sessionID
			if id == "" {
				id = chatSessionID(app)
			}
			r, err := app.Client().Chat(ctx(cmd), strings.Join(args, " "), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.Response)
			if sessionID == "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", r.SessionID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session-id", "", "Continue a chat session (default: one per logged in user)")

	return cmd
}

// chatSessionID keeps logged in users out of the server's shared default
// session. Anonymous callers get a fresh id per invocation.
func chatSessionID(app *App) string {
	if d, err := app.store.Load(); err == nil && d != nil && d.User.ID > 0 {
		return fmt.Sprintf("user-%d", d.User.ID)
	}
	return "cli-" + uuid.NewString()
}
