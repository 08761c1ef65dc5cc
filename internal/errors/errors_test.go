package errors

import (
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantMsg string
		wantCat Category
	}{
		{name: "route file", code: "E101", wantMsg: "Route file not found", wantCat: CategoryRoutes},
		{name: "config", code: "E141", wantMsg: "Config file not found", wantCat: CategoryConfig},
		{name: "match", code: "E201", wantMsg: "No route matches URL", wantCat: CategoryMatch},
		{name: "unknown", code: "E999", wantMsg: "Unknown error", wantCat: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code)
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
			if err.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", err.Category, tt.wantCat)
			}
			if err.Code != tt.code {
				t.Errorf("Code = %q, want %q", err.Code, tt.code)
			}
		})
	}
}

func TestError_Error(t *testing.T) {
	if got, want := New("E101").Error(), "E101: Route file not found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := stderrors.New("permission denied")
	if got, want := New("E101").Wrap(cause).Error(), "E101: Route file not found: permission denied"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	if got := Newf(CategoryCLI, "bad flag %q", "x").Error(); got != `bad flag "x"` {
		t.Errorf("Error() = %q", got)
	}
}

func TestFromError(t *testing.T) {
	if FromError(nil, "E101") != nil {
		t.Error("FromError(nil, ...) should return nil")
	}

	e := New("E102")
	if FromError(e, "E101") != e {
		t.Error("FromError should return *Error as-is")
	}

	cause := os.ErrNotExist
	got := FromError(cause, "E101")
	if !stderrors.Is(got, os.ErrNotExist) {
		t.Error("wrapped error should be reachable with errors.Is")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWithLocationFromYAMLError(t *testing.T) {
	content := "basename: /app\nport: 80\nworkers: many\n"
	path := writeFile(t, "datarouter.yaml", content)

	var v struct {
		Workers int `yaml:"workers"`
	}
	parseErr := yaml.Unmarshal([]byte(content), &v)
	if parseErr == nil {
		t.Fatal("expected a parse error")
	}

	err := New("E120").WithLocationFromError(path, []byte(content), parseErr)
	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.Line != 3 {
		t.Errorf("Line = %d, want 3", err.Location.Line)
	}
	if len(err.Context) == 0 {
		t.Error("Context should not be empty")
	}
}

func TestWithLocationFromJSONError(t *testing.T) {
	content := "{\n  \"routes\": [\n    {\"id\": \"root\",}\n  ]\n}\n"
	path := writeFile(t, "routes.json", content)

	var v any
	parseErr := json.Unmarshal([]byte(content), &v)
	err := New("E102").WithLocationFromError(path, []byte(content), parseErr)
	if err.Location == nil {
		t.Fatal("Location is nil")
	}
	if err.Location.Line != 3 {
		t.Errorf("Line = %d, want 3", err.Location.Line)
	}
}

func TestLocation_String(t *testing.T) {
	tests := []struct {
		name string
		loc  *Location
		want string
	}{
		{name: "nil location", loc: nil, want: ""},
		{name: "with column", loc: &Location{File: "routes.yaml", Line: 10, Column: 5}, want: "routes.yaml:10:5"},
		{name: "without column", loc: &Location{File: "routes.yaml", Line: 10}, want: "routes.yaml:10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.loc.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	DisableColors()
	defer EnableColors()

	path := writeFile(t, "routes.yaml", "routes:\n  - id: root\n    path: /\n    children:\n      - id: 1\n")
	err := New("E103").
		WithLocation(path, 3, 0).
		WithSuggestion("Give every route a unique id").
		Wrap(stderrors.New("duplicate route id"))

	out := err.Format()
	for _, want := range []string{
		"ERROR E103: Invalid route tree",
		path + ":3",
		"→    3 │     path: /",
		"Cause: duplicate route id",
		"Hint: Give every route a unique id",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Format() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatCompact(t *testing.T) {
	err := New("E201")
	err.Location = &Location{File: "routes.yaml", Line: 2}
	if got, want := err.FormatCompact(), "routes.yaml:2: E201: No route matches URL"; got != want {
		t.Errorf("FormatCompact() = %q, want %q", got, want)
	}
}

func TestFormatJSON(t *testing.T) {
	err := New("E122").WithSuggestion("use 8080")

	var got map[string]any
	if jerr := json.Unmarshal([]byte(err.FormatJSON()), &got); jerr != nil {
		t.Fatalf("FormatJSON() is not valid JSON: %v", jerr)
	}
	if got["code"] != "E122" || got["category"] != "config" || got["suggestion"] != "use 8080" {
		t.Errorf("FormatJSON() = %v", got)
	}
}

func TestPrint(t *testing.T) {
	DisableColors()
	defer EnableColors()

	var b strings.Builder
	Print(&b, stderrors.New("plain"))
	if !strings.Contains(b.String(), "ERROR: plain") {
		t.Errorf("Print() = %q", b.String())
	}

	b.Reset()
	Print(&b, New("E301"))
	if !strings.Contains(b.String(), "ERROR E301: Server failed") {
		t.Errorf("Print() = %q", b.String())
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText(strings.Repeat("word ", 30), 20)
	for _, l := range lines {
		if len(l) > 20 {
			t.Errorf("line %q longer than 20", l)
		}
	}
	if wrapText("", 10) != nil {
		t.Error("empty text should wrap to nil")
	}
}
