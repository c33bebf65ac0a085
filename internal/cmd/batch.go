package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/metrics"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/output"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Build reports for many places from a file",
	Long: `Read places from file (one per line) and build a report for each.

Each line is either "lat,lon" or a location slug. Blank lines and lines
starting with # are skipped. Results keep input order; a failing line is
reported without stopping the batch. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today)")
	batchCmd.Flags().Bool("no-weather", false, "Skip weather lookups")
	batchCmd.Flags().Bool("no-photos", false, "Skip inspiration photos")
	batchCmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown")
	batchCmd.Flags().String("out-dir", "", "Also write each report to its own file in this directory")
	batchCmd.Flags().Int("concurrency", 0, "Concurrent reports (default: workers from config)")
	batchCmd.Flags().Bool("stats", false, "Print optimizer stats to stderr afterwards")
}

// batchLine is one parsed input line.
type batchLine struct {
	line  int
	input string
	req   engine.ReportRequest
	err   error
}

func runBatch(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	formatValue, err := flags.GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	outDir, err := flags.GetString("out-dir")
	if err != nil {
		return err
	}
	if outDir, err = prepareOutDir(outDir); err != nil {
		return err
	}

	template, err := batchTemplate(cmd)
	if err != nil {
		return err
	}

	lines, err := readBatchFile(args[0], template)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return errors.New("no places found in batch file")
	}

	ctx := cmd.Context()
	logger := observability.CLILogger
	svc, err := openServices(ctx, logger)
	if err != nil {
		return err
	}
	defer svc.Close() // nolint:errcheck // best-effort cleanup

	concurrency, err := flags.GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = svc.cfg.Workers
	}

	startedAt := time.Now()
	results := runBatchReports(ctx, svc.orchestrator, lines, concurrency)

	if outDir != "" {
		formatter := output.NewFormatter(format)
		for _, result := range results {
			if !result.OK() {
				continue
			}
			text, err := formatter.FormatReport(result.Report)
			if err != nil {
				return err
			}
			if err := writeOutput(filepath.Join(outDir, reportFileName(result, format)), nil, text); err != nil {
				return err
			}
		}
	}

	rendered, err := output.NewFormatter(format).FormatBatch(results)
	if err != nil {
		return err
	}
	if strings.TrimSpace(rendered) != "" {
		if err := writeOutput("", cmd.OutOrStdout(), rendered); err != nil {
			return err
		}
	}

	logThroughput(logger, results, startedAt)
	if showStats, _ := flags.GetBool("stats"); showStats {
		return svc.writeStats(cmd.ErrOrStderr())
	}
	return nil
}

// batchTemplate holds the flags shared by every line.
func batchTemplate(cmd *cobra.Command) (engine.ReportRequest, error) {
	flags := cmd.Flags()
	var template engine.ReportRequest

	dateValue, err := flags.GetString("date")
	if err != nil {
		return template, err
	}
	if dateValue = strings.TrimSpace(dateValue); dateValue != "" {
		date, err := time.Parse(dateLayout, dateValue)
		if err != nil {
			return template, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		template.Date = date
	}
	if template.SkipWeather, err = flags.GetBool("no-weather"); err != nil {
		return template, err
	}
	if template.SkipPhotos, err = flags.GetBool("no-photos"); err != nil {
		return template, err
	}
	return template, nil
}

// runBatchReports builds one report per line with at most concurrency in
// flight. Results keep input order.
func runBatchReports(ctx context.Context, builder reportBuilder, lines []batchLine, concurrency int) []core.BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(lines) {
		concurrency = len(lines)
	}

	results := make([]core.BatchResult, len(lines))
	p := pool.New().WithMaxGoroutines(concurrency)
	for i := range lines {
		line := lines[i]
		p.Go(func() {
			result := core.BatchResult{Line: line.line, Input: line.input}
			switch {
			case line.err != nil:
				result.Error = line.err.Error()
			case ctx.Err() != nil:
				result.Error = ctx.Err().Error()
			default:
				start := time.Now()
				report, err := builder.Report(ctx, line.req)
				if err != nil {
					metrics.RecordReport("error", 0, time.Since(start))
					result.Error = err.Error()
				} else {
					metrics.RecordReport(string(report.Location.Source), len(report.Warnings), time.Since(start))
					result.Report = report
				}
			}
			result.CompletedAt = time.Now().UTC()
			results[i] = result
		})
	}
	p.Wait()

	return results
}

type reportBuilder interface {
	Report(ctx context.Context, req engine.ReportRequest) (*core.Report, error)
}

func readBatchFile(path string, template engine.ReportRequest) ([]batchLine, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close() // nolint:errcheck // best-effort cleanup on read-only file
		reader = file
	}
	return readBatchLines(reader, template)
}

func readBatchLines(reader io.Reader, template engine.ReportRequest) ([]batchLine, error) {
	var lines []batchLine
	scanner := bufio.NewScanner(reader)
	number := 0
	for scanner.Scan() {
		number++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		req, err := parseBatchLine(raw, template)
		lines = append(lines, batchLine{line: number, input: raw, req: req, err: err})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// parseBatchLine reads "lat,lon" or a location slug.
func parseBatchLine(raw string, template engine.ReportRequest) (engine.ReportRequest, error) {
	req := template
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		req.Location = raw
		return req, nil
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if latErr != nil || lonErr != nil {
		// Names such as "Oia, Santorini" are slugs, not coordinates.
		req.Location = raw
		return req, nil
	}

	coords := core.Coordinates{Latitude: lat, Longitude: lon}
	if err := core.ValidateCoordinates(coords); err != nil {
		return req, err
	}
	req.Coordinates = &coords
	return req, nil
}

func logThroughput(logger *logging.Logger, results []core.BatchResult, startedAt time.Time) {
	if logger == nil || len(results) == 0 {
		return
	}
	failed := 0
	for _, result := range results {
		if !result.OK() {
			failed++
		}
	}
	elapsed := time.Since(startedAt)
	logger.Info("Batch complete",
		zap.Int("reports", len(results)),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed),
		zap.Float64("reports_per_second", float64(len(results))/elapsed.Seconds()))
}
