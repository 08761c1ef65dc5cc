package main

import (
	"encoding/json"
	"fmt"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// buildInfo is the JSON form of the version command.
type buildInfo struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Date     string `json:"date"`
	Go       string `json:"go"`
	Platform string `json:"platform"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:  version,
		Commit:   commit,
		Date:     date,
		Go:       runtime.Version(),
		Platform: runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func versionCmd() *cobra.Command {
	var (
		short  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show which datarouter build is running",
		Long: `Show the release of this datarouter binary and the toolchain and
platform it was built for. Attach the output to bug reports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			b := currentBuild()
			switch {
			case short:
				_, err := fmt.Fprintln(w, b.Version)
				return err
			case asJSON:
				return json.NewEncoder(w).Encode(b)
			}

			info(w, "datarouter %s", b.Version)
			tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "  commit\t%s\n", b.Commit)
			fmt.Fprintf(tw, "  built\t%s\n", b.Date)
			fmt.Fprintf(tw, "  toolchain\t%s\n", b.Go)
			fmt.Fprintf(tw, "  platform\t%s\n", b.Platform)
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print the release number alone")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build details as JSON")

	return cmd
}
