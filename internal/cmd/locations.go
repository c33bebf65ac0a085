package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/core/store"
	"github.com/lumenhour/lumenhour/internal/observability"
	"github.com/lumenhour/lumenhour/internal/output"
)

var locationsCmd = &cobra.Command{
	Use:     "locations",
	Aliases: []string{"location", "loc"},
	Short:   "Manage saved locations",
}

var locationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and saved locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatValue, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		format, err := output.ParseFormat(formatValue)
		if err != nil {
			return err
		}
		savedOnly, err := cmd.Flags().GetBool("saved")
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(db *store.Store) error {
			records, err := db.ListLocations(cmd.Context())
			if err != nil {
				return err
			}
			if savedOnly {
				records = filterSaved(records)
			}

			rendered, err := output.NewFormatter(format).FormatLocations(records)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(rendered, "\n"))
			return nil
		})
	},
}

var locationsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Save a location",
	Example: `  lumenhour locations add "Back Garden" --lat 51.5 --lon -0.12 --tz Europe/London
  lumenhour locations add "Oia Castle" --lat 36.4613 --lon 25.3753 --country Greece`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, err := locationFromFlags(cmd, args[0])
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(db *store.Store) error {
			if err := db.UpsertLocation(cmd.Context(), location, false, time.Now().UTC()); err != nil {
				return err
			}
			slug := location.Slug
			if slug == "" {
				slug = core.Slugify(location.Name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", location.Name, slug)
			return nil
		})
	},
}

var locationsRemoveCmd = &cobra.Command{
	Use:     "remove <slug>",
	Aliases: []string{"rm", "delete"},
	Short:   "Remove a saved location",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := core.Slugify(args[0])
		return withStore(cmd.Context(), func(db *store.Store) error {
			removed, err := db.DeleteLocation(cmd.Context(), slug)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("location %q not found", slug)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", slug)
			return nil
		})
	},
}

var locationsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import saved locations from YAML",
	Long: `Import saved locations from a YAML file, either a top-level list or a
"locations:" key. Every entry is validated before anything is written.
Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(args[0])
		if err != nil {
			return err
		}

		return withStore(cmd.Context(), func(db *store.Store) error {
			count, err := db.ImportLocations(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d location(s)\n", count)
			return nil
		})
	},
}

func init() {
	locationsListCmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown")
	locationsListCmd.Flags().Bool("saved", false, "Only show saved (non built-in) locations")

	locationsAddCmd.Flags().Float64("lat", 0, "Latitude in decimal degrees")
	locationsAddCmd.Flags().Float64("lon", 0, "Longitude in decimal degrees")
	locationsAddCmd.Flags().String("slug", "", "Slug (default derived from name)")
	locationsAddCmd.Flags().String("tz", "", "IANA timezone")
	locationsAddCmd.Flags().String("city", "", "City")
	locationsAddCmd.Flags().String("region", "", "Region or state")
	locationsAddCmd.Flags().String("country", "", "Country")
	locationsAddCmd.Flags().String("description", "", "Short description")
	_ = locationsAddCmd.MarkFlagRequired("lat")
	_ = locationsAddCmd.MarkFlagRequired("lon")

	locationsCmd.AddCommand(locationsListCmd, locationsAddCmd, locationsRemoveCmd, locationsImportCmd)
	rootCmd.AddCommand(locationsCmd)
}

func withStore(ctx context.Context, fn func(*store.Store) error) error {
	cfg, err := currentConfig(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil && observability.CLILogger != nil {
			observability.CLILogger.Debug("Store close failed", zap.Error(err))
		}
	}()
	return fn(db)
}

func locationFromFlags(cmd *cobra.Command, name string) (core.Location, error) {
	flags := cmd.Flags()
	location := core.Location{Name: strings.TrimSpace(name)}
	if location.Name == "" {
		return location, errors.New("location name is required")
	}

	lat, err := flags.GetFloat64("lat")
	if err != nil {
		return location, err
	}
	lon, err := flags.GetFloat64("lon")
	if err != nil {
		return location, err
	}
	location.Coordinates = core.Coordinates{Latitude: lat, Longitude: lon}

	for flag, target := range map[string]*string{
		"slug":        &location.Slug,
		"tz":          &location.Timezone,
		"city":        &location.City,
		"region":      &location.Region,
		"country":     &location.Country,
		"description": &location.Description,
	} {
		value, err := flags.GetString(flag)
		if err != nil {
			return location, err
		}
		*target = strings.TrimSpace(value)
	}
	if location.Slug != "" {
		location.Slug = core.Slugify(location.Slug)
	}
	return location, core.ValidateLocation(location)
}

func filterSaved(records []core.LocationRecord) []core.LocationRecord {
	saved := make([]core.LocationRecord, 0, len(records))
	for _, record := range records {
		if !record.IsBuiltin {
			saved = append(saved, record)
		}
	}
	return saved
}

func readInput(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
