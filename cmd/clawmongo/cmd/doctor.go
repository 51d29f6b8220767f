package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/romiluz13/clawmongo/internal/config"
	"github.com/romiluz13/clawmongo/internal/doctor"
	"github.com/romiluz13/clawmongo/internal/output"
	"github.com/romiluz13/clawmongo/internal/preflight"
)

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system requirements and diagnose the MongoDB backend",
		Long: `Run system diagnostics and a MongoDB backend health probe.

System checks:
  - Disk space (100MB minimum)
  - Memory availability (1GB minimum)
  - Write permissions
  - File descriptor limits (1024 minimum)

Backend checks (spec §4.12):
  - Connectivity and server selection
  - Deployment topology (standalone, replica set, fullstack)
  - Embedding coverage across stored chunks
  - Actionable remediations for any failure

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  clawmongo doctor

  # Verbose output with details
  clawmongo doctor --verbose

  # JSON output for scripting
  clawmongo doctor --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, offline)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().Bool("json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the MongoDB backend health probe")

	cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
		jsonOutput, _ = cmd.Flags().GetBool("json")
		return nil
	}

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput, offline bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	checker := preflight.New(
		preflight.WithOffline(offline),
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(ctx, root)

	var report *doctor.Report
	if !offline {
		cfg, cfgErr := config.Load(root)
		if cfgErr == nil && cfg.Mongo.Backend == "mongodb" && cfg.Mongo.URI != "" {
			report, _ = doctor.Run(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.CollectionPrefix, cfg.Embeddings.Mode)
		}
	}

	if jsonOutput {
		return outputJSON(cmd, checker, results, report)
	}

	checker.PrintResults(results)

	out := output.New(cmd.OutOrStdout())
	if report != nil {
		out.Newline()
		printDoctorReport(out, report)
	}

	dataDir := filepath.Join(root, ".clawmongo")
	if !preflight.NeedsCheck(dataDir) {
		age := preflight.MarkerAge(dataDir)
		if age > 0 {
			cmd.Printf("\nLast successful check: %s ago\n", formatDuration(age))
		}
	}

	if checker.HasCriticalFailures(results) {
		return &doctorError{message: "system check failed"}
	}
	if report != nil && !report.Connected {
		return &doctorError{message: "mongodb backend unreachable"}
	}

	return nil
}

func printDoctorReport(out *output.Writer, report *doctor.Report) {
	out.Statusf("🔌", "MongoDB: %s", report.URI)
	if !report.Connected {
		out.Statusf("✗", "Connection failed: %s", report.ConnectErr)
	} else {
		out.Status("✓", "Connected")
		if report.Topology != nil {
			out.Statusf("", "Topology: %s", report.Topology.Tier)
		}
		out.Statusf("", "Embedding coverage: %d/%d succeeded, %d failed, %d pending",
			report.Coverage.Success, report.Coverage.Total, report.Coverage.Failed, report.Coverage.Pending)
	}
	for _, r := range report.Remediations {
		out.Statusf("💡", "%s", r)
	}
}

// doctorError is a custom error for doctor command failures.
type doctorError struct {
	message string
}

func (e *doctorError) Error() string {
	return e.message
}

// JSONOutput is the structure for JSON output.
type JSONOutput struct {
	Status   string            `json:"status"`
	Checks   []JSONCheckResult `json:"checks"`
	Backend  *doctor.Report    `json:"backend,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
	Errors   []string          `json:"errors,omitempty"`
}

// JSONCheckResult is a single check result for JSON output.
type JSONCheckResult struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	Required bool   `json:"required"`
	Details  string `json:"details,omitempty"`
}

func outputJSON(cmd *cobra.Command, checker *preflight.Checker, results []preflight.CheckResult, report *doctor.Report) error {
	out := JSONOutput{
		Status:  checker.SummaryStatus(results),
		Checks:  make([]JSONCheckResult, len(results)),
		Backend: report,
	}

	for i, r := range results {
		out.Checks[i] = JSONCheckResult{
			Name:     r.Name,
			Status:   statusToString(r.Status),
			Message:  r.Message,
			Required: r.Required,
			Details:  r.Details,
		}

		if r.IsCritical() {
			out.Errors = append(out.Errors, r.Name+": "+r.Message)
		} else if r.Status == preflight.StatusWarn {
			out.Warnings = append(out.Warnings, r.Name+": "+r.Message)
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func statusToString(s preflight.CheckStatus) string {
	switch s {
	case preflight.StatusPass:
		return "pass"
	case preflight.StatusWarn:
		return "warn"
	case preflight.StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

func formatDuration(d interface{ Hours() float64 }) string {
	hours := d.Hours()
	if hours < 1 {
		return "less than 1 hour"
	}
	if hours < 24 {
		return formatHours(int(hours))
	}
	days := int(hours / 24)
	if days == 1 {
		return "1 day"
	}
	return formatDays(days)
}

func formatHours(h int) string {
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}

func formatDays(d int) string {
	return fmt.Sprintf("%d days", d)
}
