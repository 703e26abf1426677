package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/location"
	"github.com/MeKo-Tech/proximity/internal/search"
	"github.com/MeKo-Tech/proximity/internal/types"
)

var searchCmd = &cobra.Command{
	Use:   "search [location]",
	Short: "Run a proximity search around one location",
	Long: `Search resolves the location (a "lat, lon" pair or a ///word.word.word code),
fetches nearby features and prints the classified result as JSON.

With --polygon the distances are measured to the polygon boundary instead of
the location point; the location may then be omitted.`,
	Example: `  proximity search "54.5973, -5.9301" --radius 500
  proximity search ///filled.count.soap --categories petrol_stations,landfill
  proximity search --polygon "54.5970,-5.9305;54.5970,-5.9295;54.5976,-5.9295;54.5976,-5.9305"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringP("location", "l", "", "Location: \"lat, lon\" or ///word.word.word (alternative to the argument)")
	searchCmd.Flags().IntP("radius", "r", search.DefaultRadiusM, "Search radius in meters (clamped to 10-3000)")
	searchCmd.Flags().StringSliceP("categories", "c", nil, "Categories to search (default: all; see 'proximity categories')")
	searchCmd.Flags().String("polygon", "", "Site polygon as \"lat,lon;lat,lon;...\" (enables polygon mode)")
	searchCmd.Flags().String("permit", "", "Permit or reference label carried into the report")
	searchCmd.Flags().Int("max-rows", 500, "Maximum detail rows in the report")
	searchCmd.Flags().String("format", "json", "Output format: json or table")
	searchCmd.Flags().String("geojson-dir", "", "Write a GeoJSON map of the result into this directory")
	searchCmd.Flags().String("map-dir", "", "Write a PNG overview of the result into this directory")
	searchCmd.Flags().String("archive", "", "Store the result in this SQLite archive")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"search.radius", "radius"},
		{"search.max_rows", "max-rows"},
		{"output.geojson_dir", "geojson-dir"},
		{"output.map_dir", "map-dir"},
		{"archive.path", "archive"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, searchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	loc, _ := cmd.Flags().GetString("location")
	if len(args) == 1 {
		loc = args[0]
	}
	categories, _ := cmd.Flags().GetStringSlice("categories")
	polygonText, _ := cmd.Flags().GetString("polygon")
	permit, _ := cmd.Flags().GetString("permit")
	format, _ := cmd.Flags().GetString("format")

	if format != "json" && format != "table" {
		return fmt.Errorf("invalid format %q: must be 'json' or 'table'", format)
	}

	req := search.Request{
		Location:   loc,
		RadiusM:    cfg.Search.Radius,
		Categories: categories,
		Mode:       types.ModePoint,
		Permit:     permit,
		MaxRows:    cfg.Search.MaxRows,
	}
	if polygonText != "" {
		poly, err := parsePolygon(polygonText)
		if err != nil {
			return err
		}
		req.Mode = types.ModePolygon
		req.Polygon = poly
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting search",
		"location", req.Location,
		"radius", req.RadiusM,
		"mode", req.Mode,
		"categories", req.Categories,
	)

	result, err := a.coordinator.Search(ctx, req)
	closeErr := a.Close(cfg)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if closeErr != nil {
		logger.Warn("Failed to release resources", "error", closeErr)
	}

	for _, w := range result.Warnings {
		logger.Warn("Artifact warning", "warning", w)
	}
	logger.Info("Search complete",
		"outcome", result.Summary.Outcome,
		"details", len(result.Details),
		"artifacts", len(result.Artifacts),
	)

	if format == "table" {
		return writeTable(cmd.OutOrStdout(), result)
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// parsePolygon reads "lat,lon;lat,lon;..." into vertices. Ring validity is
// left to the polygon repair.
func parsePolygon(text string) ([]geo.Point, error) {
	var vertices []geo.Point
	for i, part := range strings.Split(text, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		p, ok := location.ParseCoordinates(part)
		if !ok || !p.Valid() {
			return nil, fmt.Errorf("invalid polygon vertex %d: %q", i+1, part)
		}
		vertices = append(vertices, p)
	}
	if len(vertices) < 3 {
		return nil, fmt.Errorf("polygon needs at least 3 vertices, got %d", len(vertices))
	}
	return vertices, nil
}

func writeJSON(w io.Writer, result *types.SearchResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func writeTable(w io.Writer, result *types.SearchResult) error {
	s := result.Summary
	fmt.Fprintf(w, "Outcome:  %s\n", s.Outcome)
	fmt.Fprintf(w, "Center:   %s (%s)\n", s.Center, s.CenterCoords)
	fmt.Fprintf(w, "Radius:   %d m (%s)\n", s.Radius, result.Selection.Mode)
	if s.Permit != "" {
		fmt.Fprintf(w, "Permit:   %s\n", s.Permit)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CATEGORY\t%s\t%s\t%s\t%s\n", types.TierNear, types.TierMid, types.TierFar, types.TierNotFound)
	for _, c := range s.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", c.Label, c.Lt10, c.R10to25, c.R25to100, c.NotFound)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.Details) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DISTANCE\tCATEGORY\tNAME\tADDRESS")
	for _, d := range result.Details {
		fmt.Fprintf(tw, "%d m\t%s\t%s\t%s\n", d.DistanceM, d.Category, d.Name, d.Address)
	}
	return tw.Flush()
}
