package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/mapset-verifier/server/pkg/beatmap"
	"github.com/mapset-verifier/server/pkg/checks"
	"github.com/mapset-verifier/server/pkg/config"
	"github.com/mapset-verifier/server/pkg/observability"
)

// ErrBlockingIssues is returned by check when issues that prevent ranking
// were found.
var ErrBlockingIssues = errors.New("beatmap set has blocking issues")

// ErrInvalidFormat is returned for an unknown --format value.
var ErrInvalidFormat = errors.New("invalid output format")

// Output formats of the check command.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// generalSection labels set-wide issues in the table.
const generalSection = "General"

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	var (
		configPath string
		format     string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "check <dir>",
		Short: "Run every check on a beatmap set directory",
		Long: `Load the beatmap set in <dir>, run all checks and print the issues.

Exits with a non-zero status when a Problem or Error level issue is found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, args []string) error {
			if format != FormatTable && format != FormatJSON {
				return fmt.Errorf("%w: %q (valid: %s, %s)", ErrInvalidFormat, format, FormatTable, FormatJSON)
			}

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			if noColor {
				color.NoColor = true //nolint:reassign // intentional override of library global
			}

			return runCheck(cobraCmd.Context(), cfg, args[0], format, cobraCmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to configuration file")
	cmd.Flags().StringVarP(&format, "format", "f", FormatTable, "output format: table or json")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")

	return cmd
}

func runCheck(ctx context.Context, cfg *config.Config, dir, format string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	providers, err := initObservability(cfg, observability.ModeCLI)
	if err != nil {
		return err
	}

	defer func() {
		shutdownErr := providers.Shutdown(context.Background())
		if shutdownErr != nil {
			providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
		}
	}()

	registry, err := checks.Default()
	if err != nil {
		return fmt.Errorf("load checks: %w", err)
	}

	set, err := beatmap.LoadSet(ctx, dir)
	if err != nil {
		return err
	}

	checker := checks.NewChecker(checks.CheckerDeps{
		Registry: registry,
		Logger:   providers.Logger,
		Tracer:   providers.Tracer,
	})

	issues, err := checker.Run(ctx, set, nil)
	if err != nil {
		return err
	}

	if format == FormatJSON {
		err = writeIssuesJSON(out, issues)
	} else {
		_, err = fmt.Fprintln(out, FormatIssues(set, issues))
	}

	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	for _, issue := range issues {
		if issue.Level.Blocking() {
			return ErrBlockingIssues
		}
	}

	return nil
}

// FormatIssues renders issues as a table, one row per issue, with the level
// colored by severity.
func FormatIssues(set *beatmap.Set, issues []checks.Issue) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Header = text.FormatDefault
	tbl.Style().Format.Footer = text.FormatDefault

	tbl.AppendHeader(table.Row{"Difficulty", "Level", "Check", "Message"})

	for _, issue := range issues {
		section := issue.Beatmap
		if section == "" {
			section = generalSection
		}

		tbl.AppendRow(table.Row{section, levelColor(issue.Level).Sprint(issue.Level.String()), issue.CheckID, issue.Message})
	}

	tbl.AppendFooter(table.Row{summary(set, issues)})

	return tbl.Render()
}

func summary(set *beatmap.Set, issues []checks.Issue) string {
	blocking := 0

	for _, issue := range issues {
		if issue.Level.Blocking() {
			blocking++
		}
	}

	return fmt.Sprintf("%d difficulties, %d issues, %d blocking", len(set.Beatmaps), len(issues), blocking)
}

func levelColor(level checks.Level) *color.Color {
	switch level {
	case checks.LevelError:
		return color.New(color.FgMagenta, color.Bold)
	case checks.LevelProblem:
		return color.New(color.FgRed, color.Bold)
	case checks.LevelWarning:
		return color.New(color.FgYellow)
	case checks.LevelMinor:
		return color.New(color.FgCyan)
	case checks.LevelCheck:
		return color.New(color.FgGreen)
	default:
		return color.New(color.Reset)
	}
}

func writeIssuesJSON(out io.Writer, issues []checks.Issue) error {
	if issues == nil {
		issues = []checks.Issue{}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(issues)
}
