package errors

// Template is a registered error.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

var registry = map[string]Template{
	// Route files (E100-E119)
	"E101": {
		Category: CategoryRoutes,
		Message:  "Route file not found",
		Detail:   "The route file does not exist or cannot be read.",
	},
	"E102": {
		Category: CategoryRoutes,
		Message:  "Route file could not be parsed",
		Detail:   "Route files are YAML or JSON documents with a top-level routes list.",
	},
	"E103": {
		Category: CategoryRoutes,
		Message:  "Invalid route tree",
		Detail:   "The routes parsed but do not form a valid tree: there must be exactly one root, route IDs must be unique, and index routes cannot have children.",
	},
	"E104": {
		Category: CategoryRoutes,
		Message:  "Unsupported route file format",
		Detail:   "Route files must end in .yaml, .yml or .json.",
	},
	"E105": {
		Category: CategoryRoutes,
		Message:  "Route file could not be fetched",
		Detail:   "Reading the route file from object storage failed.",
	},

	// Project config (E120-E149)
	"E120": {
		Category: CategoryConfig,
		Message:  "Config file could not be read",
		Detail:   "The project config file exists but could not be read or parsed.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid port",
		Detail:   "Port must be between 0 and 65535.",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No datarouter.yaml, datarouter.yml or datarouter.json was found.",
	},

	// Matching (E200-E219)
	"E201": {
		Category: CategoryMatch,
		Message:  "No route matches URL",
		Detail:   "None of the routes match the URL. A client router would render the root error boundary with a 404.",
	},
	"E202": {
		Category: CategoryMatch,
		Message:  "Invalid URL",
	},

	// Data server (E300-E319)
	"E301": {
		Category: CategoryServe,
		Message:  "Server failed",
		Detail:   "The data server stopped with an error.",
	},
	"E302": {
		Category: CategoryServe,
		Message:  "Server did not shut down cleanly",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
