package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/datarouter/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┌─┐┌┬┐┌─┐┬─┐┌─┐┬ ┬┌┬┐┌─┐┬─┐
   ║║├─┤ │ ├─┤├┬┘│ ││ │ │ ├┤ ├┬┘
  ═╩╝┴ ┴ ┴ ┴ ┴┴└─└─┘└─┘ ┴ └─┘┴└─
`

// projectFlags are the persistent flags shared by every command that
// reads a project.
type projectFlags struct {
	config   string
	routes   string
	basename string
}

func newRootCmd() *cobra.Command {
	var flags projectFlags

	rootCmd := &cobra.Command{
		Use:   "datarouter",
		Short: "Inspect and serve data router route trees",
		Long: `Datarouter matches URLs against nested route trees and runs their
loaders and actions.

Route trees are declared in YAML or JSON route files, on disk or in S3.
The CLI can:

  • List the ranked route branches of a tree
  • Match a URL and run its fixture loaders
  • Serve the tree as a data server with live navigation sessions`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Config file or project directory (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().StringVarP(&flags.routes, "routes", "r", "", "Route file path or s3://bucket/key location")
	rootCmd.PersistentFlags().StringVar(&flags.basename, "basename", "", "URL prefix the routes are served below")

	rootCmd.AddCommand(
		routesCmd(&flags),
		matchCmd(&flags),
		serveCmd(&flags),
		versionCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(1)
	}
}

// printBanner prints the ASCII art banner.
func printBanner(w io.Writer) {
	fmt.Fprint(w, banner)
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "  %s\n", fmt.Sprintf(format, args...))
}
