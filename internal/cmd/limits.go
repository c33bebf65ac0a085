package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/lumenhour/lumenhour/internal/core/engine"
	"github.com/lumenhour/lumenhour/internal/output"
)

const formatBox = "box"

var (
	limitsListOutput string
	limitsListOut    string
	limitsListOutDir string
)

var limitsCmd = &cobra.Command{
	Use:     "limits",
	Aliases: []string{"rate-limit"},
	Short:   "Inspect per-domain rate limits and cache TTLs",
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective per-domain limits",
	Long: `List the request quota and response cache TTL for every upstream domain,
after rate_limits overrides and rate_limit_margin from config are applied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := currentConfig(cmd.Context())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		policies := engine.Policies(newRateLimiter(cfg), nil)

		outPath := strings.TrimSpace(limitsListOut)
		outDir := strings.TrimSpace(limitsListOutDir)
		if outPath != "" && outDir != "" {
			return fmt.Errorf("--out and --out-dir are mutually exclusive")
		}

		var (
			rendered string
			ext      = "txt"
		)
		if strings.EqualFold(strings.TrimSpace(limitsListOutput), formatBox) {
			rendered = ascii.DrawBox(policyLines(policies), 0)
		} else {
			format, err := output.ParseFormat(limitsListOutput)
			if err != nil {
				return err
			}
			if rendered, err = output.NewFormatter(format).FormatPolicies(policies); err != nil {
				return err
			}
			ext = format.Extension()
		}

		if outDir != "" {
			if outDir, err = prepareOutDir(outDir); err != nil {
				return err
			}
			outPath = filepath.Join(outDir, "limits.list."+ext)
		}
		return writeOutput(outPath, cmd.OutOrStdout(), rendered)
	},
}

func init() {
	limitsListCmd.Flags().StringVarP(&limitsListOutput, "output", "o", formatBox, "Output format: box|table|json|markdown")
	limitsListCmd.Flags().StringVar(&limitsListOut, "out", "", "Write output to a file (default stdout)")
	limitsListCmd.Flags().StringVar(&limitsListOutDir, "out-dir", "", "Write output to a directory")

	limitsCmd.AddCommand(limitsListCmd)
	rootCmd.AddCommand(limitsCmd)
}

func policyLines(policies []engine.DomainPolicy) string {
	lines := []string{"Domain Limits", ""}
	if len(policies) == 0 {
		lines = append(lines, "(no configured domains)")
		return strings.Join(lines, "\n")
	}
	for _, policy := range policies {
		quota := "unlimited"
		if !policy.Limit.Unlimited() {
			quota = fmt.Sprintf("%d per %s", policy.Limit.RequestsPerWindow, policy.Limit.WindowDuration)
		}
		lines = append(lines, fmt.Sprintf("%s: %s, cache %s", policy.Domain, quota, policy.CacheTTL))
	}
	return strings.Join(lines, "\n")
}
