package routepath

import (
	"errors"
	"testing"
)

func TestCanonicalizePath(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantPath     string
		wantQuery    string
		wantFragment string
		wantChanged  bool
	}{
		{name: "root", input: "/", wantPath: "/"},
		{name: "empty string", input: "", wantPath: "/", wantChanged: true},
		{name: "no leading slash", input: "about", wantPath: "/about", wantChanged: true},
		{name: "collapse slashes", input: "/blog//post", wantPath: "/blog/post", wantChanged: true},
		{name: "single dot", input: "/blog/./post", wantPath: "/blog/post", wantChanged: true},
		{name: "double dot", input: "/blog/posts/../other", wantPath: "/blog/other", wantChanged: true},
		{name: "double dot to root", input: "/blog/../", wantPath: "/", wantChanged: true},
		{name: "trailing slash", input: "/users/", wantPath: "/users", wantChanged: true},
		{name: "query preserved", input: "/projects/123?tab=details", wantPath: "/projects/123", wantQuery: "tab=details"},
		{name: "fragment preserved", input: "/docs?v=2#intro", wantPath: "/docs", wantQuery: "v=2", wantFragment: "intro"},
		{name: "query escapes not validated", input: "/projects?bad=%GG", wantPath: "/projects", wantQuery: "bad=%GG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalizePath(tt.input)
			if err != nil {
				t.Fatalf("CanonicalizePath(%q) error = %v", tt.input, err)
			}
			if got.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", got.Path, tt.wantPath)
			}
			if got.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", got.Query, tt.wantQuery)
			}
			if got.Fragment != tt.wantFragment {
				t.Errorf("Fragment = %q, want %q", got.Fragment, tt.wantFragment)
			}
			if got.Changed != tt.wantChanged {
				t.Errorf("Changed = %v, want %v", got.Changed, tt.wantChanged)
			}
		})
	}
}

func TestCanonicalizePathErrors(t *testing.T) {
	tests := []struct {
		input string
		want  error
	}{
		{`/a\b`, ErrBackslashInPath},
		{"/a\x00b", ErrNullByteInPath},
		{"/a%00b", ErrNullByteInPath},
		{"/a%GG", ErrInvalidPercentEscape},
		{"/a%2", ErrInvalidPercentEscape},
		{"/../secret", ErrPathEscapesRoot},
	}

	for _, tt := range tests {
		_, err := CanonicalizePath(tt.input)
		if !errors.Is(err, tt.want) {
			t.Errorf("CanonicalizePath(%q) error = %v, want %v", tt.input, err, tt.want)
		}
	}
}

func TestValidateNavigationPath(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "/users//7/?tab=a#b", want: "/users/7?tab=a#b"},
		{input: "/", want: "/"},
		{input: "https://evil.example", wantErr: true},
		{input: "//evil.example", wantErr: true},
		{input: "relative", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ValidateNavigationPath(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateNavigationPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateNavigationPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDecodeSegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain", "plain"},
		{"hello%20world", "hello world"},
		{"a%2Fb", "a/b"},
		{"bad%G1", "bad%G1"},
	}
	for _, tt := range tests {
		if got := DecodeSegment(tt.in); got != tt.want {
			t.Errorf("DecodeSegment(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
