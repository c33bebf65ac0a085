package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/metrics"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/output"
)

const dateLayout = "2006-01-02"

var hoursCmd = &cobra.Command{
	Use:   "hours",
	Short: "Show golden hour and blue hour times",
	Long: `Show today's golden hour and blue hour windows for a place.

The place is taken from --lat/--lon, from --location (a saved or built-in
location slug), or detected from your public IP address.`,
	Example: `  lumenhour hours --lat 48.8584 --lon 2.2945
  lumenhour hours --location eiffel-tower --date 2025-06-21
  lumenhour hours --tz America/Denver --output json`,
	Args: cobra.NoArgs,
	RunE: runHours,
}

func init() {
	rootCmd.AddCommand(hoursCmd)
	addReportFlags(hoursCmd)
	hoursCmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown")
	hoursCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	hoursCmd.Flags().Bool("stats", false, "Print optimizer stats to stderr afterwards")
}

// addReportFlags registers the flags read by reportRequestFromFlags.
func addReportFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Float64("lat", 0, "Latitude in decimal degrees")
	flags.Float64("lon", 0, "Longitude in decimal degrees")
	flags.String("location", "", "Saved or built-in location slug")
	flags.String("date", "", "Date as YYYY-MM-DD (default today)")
	flags.String("tz", "", "IANA timezone for the report (default: location's)")
	flags.Bool("no-weather", false, "Skip the weather lookup")
	flags.Bool("no-photos", false, "Skip inspiration photos")
}

func runHours(cmd *cobra.Command, _ []string) error {
	req, err := reportRequestFromFlags(cmd)
	if err != nil {
		return err
	}

	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := observability.CLILogger
	svc, err := openServices(ctx, logger)
	if err != nil {
		return err
	}
	defer svc.Close() // nolint:errcheck // best-effort cleanup

	start := time.Now()
	report, err := svc.orchestrator.Report(ctx, req)
	if err != nil {
		metrics.RecordReport("error", 0, time.Since(start))
		return err
	}
	metrics.RecordReport(string(report.Location.Source), len(report.Warnings), time.Since(start))

	if logger != nil {
		for _, warning := range report.Warnings {
			logger.Debug("Report degraded", zap.String("warning", warning))
		}
	}

	rendered, err := output.NewFormatter(format).FormatReport(report)
	if err != nil {
		return err
	}

	if err := writeOutput(outPath, cmd.OutOrStdout(), rendered); err != nil {
		return err
	}
	if showStats, _ := cmd.Flags().GetBool("stats"); showStats {
		return svc.writeStats(cmd.ErrOrStderr())
	}
	return nil
}

func reportRequestFromFlags(cmd *cobra.Command) (engine.ReportRequest, error) {
	flags := cmd.Flags()
	var req engine.ReportRequest

	latSet, lonSet := flags.Changed("lat"), flags.Changed("lon")
	location, err := flags.GetString("location")
	if err != nil {
		return req, err
	}
	location = strings.TrimSpace(location)

	switch {
	case latSet != lonSet:
		return req, errors.New("--lat and --lon must be given together")
	case latSet && location != "":
		return req, errors.New("--location cannot be combined with --lat/--lon")
	case latSet:
		lat, _ := flags.GetFloat64("lat")
		lon, _ := flags.GetFloat64("lon")
		coords := core.Coordinates{Latitude: lat, Longitude: lon}
		if err := core.ValidateCoordinates(coords); err != nil {
			return req, err
		}
		req.Coordinates = &coords
	default:
		req.Location = location
	}

	dateValue, err := flags.GetString("date")
	if err != nil {
		return req, err
	}
	if dateValue = strings.TrimSpace(dateValue); dateValue != "" {
		date, err := time.Parse(dateLayout, dateValue)
		if err != nil {
			return req, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		req.Date = date
	}

	if req.Timezone, err = flags.GetString("tz"); err != nil {
		return req, err
	}
	if req.SkipWeather, err = flags.GetBool("no-weather"); err != nil {
		return req, err
	}
	if req.SkipPhotos, err = flags.GetBool("no-photos"); err != nil {
		return req, err
	}
	return req, nil
}
