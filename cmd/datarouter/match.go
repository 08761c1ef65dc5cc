package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vango-dev/datarouter/internal/errors"
	"github.com/vango-dev/datarouter/pkg/hydration"
	"github.com/vango-dev/datarouter/pkg/query"
	"github.com/vango-dev/datarouter/pkg/router"
)

// matchInfo is the JSON form of a match.
type matchInfo struct {
	RouteID      string            `json:"routeId"`
	Pathname     string            `json:"pathname"`
	PathnameBase string            `json:"pathnameBase"`
	Params       map[string]string `json:"params"`
}

func matchCmd(flags *projectFlags) *cobra.Command {
	var (
		asJSON bool
		load   bool
		method string
		form   []string
	)

	cmd := &cobra.Command{
		Use:   "match <url>",
		Short: "Match a URL against the route tree",
		Long: `Match a URL against the route tree and print the matched routes,
root first.

With --load the fixture loaders of the matched routes run, and the
resulting status and hydration state are printed. --form submits
key=value pairs to the deepest route's action first.`,
		Example: `  datarouter match /posts/7
  datarouter match /posts/7 --load
  datarouter match /login --load --form user=ann`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(args[0])
			if err != nil {
				return errors.New("E202").Wrap(err)
			}
			if !strings.HasPrefix(u.Path, "/") {
				return errors.New("E202").WithDetail("URLs must be absolute paths, got " + args[0])
			}

			p, err := loadProject(cmd.Context(), flags)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()

			if load || len(form) > 0 {
				return runQuery(cmd, p, u, method, form)
			}

			matches := p.manifest.MatchRoutes(u.Path, p.basename)
			if matches == nil {
				return errors.New("E201").
					WithDetail("No route matches " + u.Path).
					WithSuggestion("Run datarouter routes to list the ranked branches")
			}
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(matchInfos(matches))
			}
			printMatches(w, matches)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")
	cmd.Flags().BoolVar(&load, "load", false, "Run the matched loaders and print the hydration state")
	cmd.Flags().StringVarP(&method, "method", "X", "", "Request method used with --load (default GET, or POST with --form)")
	cmd.Flags().StringArrayVarP(&form, "form", "F", nil, "Form field key=value submitted to the route action")

	return cmd
}

func matchInfos(matches []router.Match) []matchInfo {
	out := make([]matchInfo, len(matches))
	for i, m := range matches {
		params := map[string]string{}
		for k, v := range m.Params {
			params[k] = v
		}
		out[i] = matchInfo{
			RouteID:      m.RouteID,
			Pathname:     m.Pathname,
			PathnameBase: m.PathnameBase,
			Params:       params,
		}
	}
	return out
}

func printMatches(w io.Writer, matches []router.Match) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  ROUTE\tPATHNAME\tPARAMS")
	for _, m := range matches {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", m.RouteID, m.Pathname, formatParams(m.Params))
	}
	tw.Flush()
}

func formatParams(params router.Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + params[k]
	}
	return strings.Join(pairs, " ")
}

// runQuery answers u the way the data server would and prints the
// outcome.
func runQuery(cmd *cobra.Command, p *project, u *url.URL, method string, form []string) error {
	values := url.Values{}
	for _, kv := range form {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return errors.Newf(errors.CategoryCLI, "invalid --form value %q, want key=value", kv)
		}
		values.Add(k, v)
	}
	if method == "" {
		method = http.MethodGet
		if len(form) > 0 {
			method = http.MethodPost
		}
	}
	method = strings.ToUpper(method)

	var body io.Reader
	if method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(values.Encode())
	}
	req, err := http.NewRequestWithContext(cmd.Context(), method, u.RequestURI(), body)
	if err != nil {
		return errors.New("E202").Wrap(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", router.EncTypeForm)
	}

	h := query.NewFromManifest(p.manifest, query.WithBasename(p.basename))
	c, err := h.Query(cmd.Context(), req)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if c.Redirect != nil {
		info(w, "%d redirect to %s", c.Redirect.Status, c.Redirect.Location())
		return nil
	}

	info(w, "%d %s", c.StatusCode, http.StatusText(c.StatusCode))
	if c.Boundary != nil {
		info(w, "error boundary: %s", c.Boundary.RouteID)
	}
	printMatches(w, c.RenderMatches())
	fmt.Fprintln(w)
	return hydration.JSON.Encode(w, c.Hydration())
}
