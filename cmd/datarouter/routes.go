package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func routesCmd(flags *projectFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List the ranked route branches",
		Long: `List every matchable branch of the route tree, highest rank first.

URLs are matched against branches in this order: the first branch that
matches wins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadProject(cmd.Context(), flags)
			if err != nil {
				return err
			}
			branches := p.manifest.Branches()
			w := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(branches)
			}

			info(w, "%s (%d routes, %d branches)", p.location, p.manifest.Len(), len(branches))
			if p.basename != "" {
				info(w, "basename %s", p.basename)
			}
			fmt.Fprintln(w)

			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "  SCORE\tPATH\tROUTES")
			for _, b := range branches {
				fmt.Fprintf(tw, "  %d\t%s\t%s\n", b.Score, b.Path, strings.Join(b.RouteIDs, " > "))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print branches as JSON")

	return cmd
}
