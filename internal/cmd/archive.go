package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/proximity/internal/archive"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect a search archive",
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived searches, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		r, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		entries, err := r.List(limit)
		if err != nil {
			return err
		}
		return writeEntries(cmd.OutOrStdout(), entries)
	},
}

var archiveShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print an archived search result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		r, err := openArchive(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		result, err := r.Get(args[0])
		if err != nil {
			return err
		}
		if format == "table" {
			return writeTable(cmd.OutOrStdout(), result)
		}
		return writeJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveShowCmd)

	archiveCmd.PersistentFlags().String("file", "", "Archive database (default: archive.path)")
	archiveListCmd.Flags().Int("limit", 20, "Maximum number of searches to list (0 for all)")
	archiveShowCmd.Flags().String("format", "json", "Output format: json or table")
}

func openArchive(cmd *cobra.Command) (*archive.Reader, error) {
	initLogging()

	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = viper.GetString("archive.path")
	}
	if path == "" {
		return nil, fmt.Errorf("no archive given: use --file or set archive.path")
	}
	logger.Debug("Opening archive", "path", path)
	return archive.OpenReader(path)
}

func writeEntries(w io.Writer, entries []archive.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tOUTCOME\tMODE\tRADIUS\tROWS\tPERMIT\tCENTER")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d m\t%d\t%s\t%s\n",
			e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.Outcome, e.Mode,
			e.RadiusM, e.Details, e.Permit, e.Display)
	}
	return tw.Flush()
}
