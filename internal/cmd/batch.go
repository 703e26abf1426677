package cmd

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/proximity/internal/location"
	"github.com/MeKo-Tech/proximity/internal/search"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/MeKo-Tech/proximity/internal/worker"
)

var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Run many searches from a CSV file",
	Long: `Batch runs one search per row of a CSV file in parallel and writes one JSON
line per row, in input order.

The file needs a header row. Recognised columns (only location or polygon is
required):

  id          row identifier (default: row number)
  location    "lat, lon" or ///word.word.word
  radius      radius in meters
  categories  category names separated by ';'
  permit      permit label
  polygon     site polygon as "lat,lon;lat,lon;..."`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("out", "o", "", "Write JSON lines to this file (default: stdout)")
	batchCmd.Flags().IntP("workers", "w", 0, "Number of parallel searches (default: search.workers)")
	batchCmd.Flags().IntP("radius", "r", 0, "Radius for rows without one (default: search.radius)")
	batchCmd.Flags().Bool("progress", true, "Show progress bar")
	batchCmd.Flags().Bool("allow-failures", false, "Exit successfully even if some searches fail")
	batchCmd.Flags().String("geojson-dir", "", "Write a GeoJSON map per result into this directory")
	batchCmd.Flags().String("map-dir", "", "Write a PNG overview per result into this directory")
	batchCmd.Flags().String("archive", "", "Store the results in this SQLite archive")
}

// batchLine is one line of the batch output.
type batchLine struct {
	ID     string              `json:"id"`
	Error  string              `json:"error,omitempty"`
	Result *types.SearchResult `json:"result,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Search.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("radius") {
		cfg.Search.Radius, _ = flags.GetInt("radius")
	}
	if flags.Changed("geojson-dir") {
		cfg.Output.GeoJSONDir, _ = flags.GetString("geojson-dir")
	}
	if flags.Changed("map-dir") {
		cfg.Output.MapDir, _ = flags.GetString("map-dir")
	}
	if flags.Changed("archive") {
		cfg.Archive.Path, _ = flags.GetString("archive")
	}
	showProgress, _ := flags.GetBool("progress")
	allowFailures, _ := flags.GetBool("allow-failures")
	outPath, _ := flags.GetString("out")

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open batch file: %w", err)
	}
	tasks, err := readBatch(f, cfg.Search.Radius, cfg.Search.MaxRows)
	f.Close()
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		logger.Info("Batch file has no rows", "file", args[0])
		return nil
	}

	var out io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		of, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer of.Close()
		out = of
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting batch search",
		"file", args[0],
		"searches", len(tasks),
		"workers", cfg.Search.Workers,
	)

	progress := worker.NewProgress(len(tasks), showProgress)
	pool := worker.New(worker.Config{
		Workers:    cfg.Search.Workers,
		Searcher:   a.coordinator,
		OnProgress: progress.Callback(),
	})

	results := pool.Run(ctx, tasks)
	progress.Done()
	progress.Tally(results)

	if err := a.Close(cfg); err != nil {
		logger.Warn("Failed to release resources", "error", err)
	}

	failed, err := writeBatch(out, results)
	if err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	for _, r := range results {
		if r.Err != nil {
			logger.Error("Search failed", "id", r.Task.ID, "error", r.Err)
		}
	}
	logger.Info(progress.Summary())

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		if allowFailures {
			logger.Warn("Some searches failed, but continuing due to --allow-failures flag", "failed_count", failed)
			return nil
		}
		return fmt.Errorf("%d of %d searches failed", failed, len(results))
	}
	return nil
}

// readBatch parses the CSV batch file into tasks.
func readBatch(r io.Reader, defaultRadius, maxRows int) ([]worker.Task, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read batch header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	_, hasLocation := cols["location"]
	_, hasPolygon := cols["polygon"]
	if !hasLocation && !hasPolygon {
		return nil, errors.New("batch header needs a 'location' or 'polygon' column")
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var tasks []worker.Task
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("batch row %d: %w", row, err)
		}

		req := search.Request{
			Location: field(rec, "location"),
			RadiusM:  defaultRadius,
			Mode:     types.ModePoint,
			Permit:   field(rec, "permit"),
			MaxRows:  maxRows,
		}
		if v := field(rec, "radius"); v != "" {
			radius, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("batch row %d: invalid radius %q", row, v)
			}
			req.RadiusM = radius
		}
		if v := field(rec, "categories"); v != "" {
			for _, c := range strings.Split(v, ";") {
				if c = strings.TrimSpace(c); c != "" {
					req.Categories = append(req.Categories, c)
				}
			}
		}
		if v := field(rec, "polygon"); v != "" {
			poly, err := parsePolygon(v)
			if err != nil {
				return nil, fmt.Errorf("batch row %d: %w", row, err)
			}
			req.Mode = types.ModePolygon
			req.Polygon = poly
		}
		if req.Location == "" && req.Mode != types.ModePolygon {
			return nil, fmt.Errorf("batch row %d: location or polygon is required", row)
		}
		if req.Location != "" && !isLocation(req.Location) {
			return nil, fmt.Errorf("batch row %d: location %q is neither coordinates nor a word code", row, req.Location)
		}

		id := field(rec, "id")
		if id == "" {
			id = strconv.Itoa(row)
		}
		tasks = append(tasks, worker.Task{ID: id, Request: req})
	}
	return tasks, nil
}

// isLocation reports whether text has a form the resolver accepts. Range
// and word lookup errors are left to the search itself.
func isLocation(text string) bool {
	if _, ok := location.ParseCoordinates(text); ok {
		return true
	}
	return location.IsWordCode(text)
}

// writeBatch writes one JSON line per result and returns the failure count.
func writeBatch(w io.Writer, results []worker.Result) (int, error) {
	enc := json.NewEncoder(w)
	failed := 0
	for _, r := range results {
		line := batchLine{ID: r.Task.ID, Result: r.Result}
		if r.Err != nil {
			failed++
			line.Error = r.Err.Error()
			line.Result = nil
		}
		if err := enc.Encode(line); err != nil {
			return failed, err
		}
	}
	return failed, nil
}
