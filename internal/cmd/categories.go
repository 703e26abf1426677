package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/proximity/internal/types"
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List the search categories with their tag filters and distance tiers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeCategories(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(categoriesCmd)
}

func writeCategories(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLABEL\tTIERS (m)\tTAGS")
	for _, spec := range types.Categories() {
		t := spec.Thresholds
		fmt.Fprintf(tw, "%s\t%s\t<%g / <%g / <=%g\t%s\n",
			spec.Category, spec.Label, t.Near, t.Mid, t.Far, formatFilters(spec.Filters))
	}
	return tw.Flush()
}

func formatFilters(filters []types.TagFilter) string {
	parts := make([]string, len(filters))
	for i, f := range filters {
		if f.Wildcard || f.Value == "" {
			parts[i] = f.Key + "=*"
		} else {
			parts[i] = f.Key + "=" + f.Value
		}
	}
	return strings.Join(parts, ", ")
}
