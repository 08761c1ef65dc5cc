package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vango-dev/datarouter/pkg/routepath"
)

// PathMatch is the result of matching one pattern against a pathname.
type PathMatch struct {
	Params       Params
	Pathname     string
	PathnameBase string
	Pattern      string
}

type segmentKind uint8

const (
	segmentStatic segmentKind = iota
	segmentParam
)

type patternSegment struct {
	kind  segmentKind
	value string // literal text or param name
}

// pattern is a compiled route path: a list of segments plus an optional
// trailing splat.
type pattern struct {
	source        string
	segments      []patternSegment
	splat         bool
	bareSplat     bool // "*" or "/*": the splat owns the whole path
	caseSensitive bool
}

var trailingSplat = regexp.MustCompile(`/*\*?$`)

func compilePattern(path string, caseSensitive bool) *pattern {
	p := &pattern{
		source:        path,
		caseSensitive: caseSensitive,
		splat:         strings.HasSuffix(path, "*"),
		bareSplat:     path == "*" || path == "/*",
	}

	base := trailingSplat.ReplaceAllString(path, "")
	base = strings.TrimLeft(base, "/")
	if base == "" {
		return p
	}
	for _, seg := range strings.Split(base, "/") {
		if paramSegment.MatchString(seg) {
			p.segments = append(p.segments, patternSegment{kind: segmentParam, value: seg[1:]})
			continue
		}
		p.segments = append(p.segments, patternSegment{kind: segmentStatic, value: seg})
	}
	return p
}

// match tests pathname against the pattern. With end set the pattern must
// consume the whole pathname (trailing slashes allowed); otherwise it must
// end on a segment boundary.
func (p *pattern) match(pathname string, end bool) (*PathMatch, bool) {
	if !strings.HasPrefix(pathname, "/") {
		pathname = "/" + pathname
	}
	raw := strings.Split(pathname[1:], "/")
	params := Params{}

	for i, seg := range p.segments {
		if i >= len(raw) || raw[i] == "" {
			return nil, false
		}
		decoded := routepath.DecodeSegment(raw[i])
		switch seg.kind {
		case segmentParam:
			params[seg.value] = decoded
		default:
			if !p.equal(seg.value, decoded) {
				return nil, false
			}
		}
	}

	consumed := len(p.segments)
	rest := raw[consumed:]
	consumedPath := "/" + strings.Join(raw[:consumed], "/")

	switch {
	case p.splat:
		splatRaw := strings.Join(rest, "/")
		if p.bareSplat && consumed == 0 {
			splatRaw = pathname[1:]
		}
		params["*"] = decodeSplat(splatRaw)

		base := strings.TrimSuffix(pathname, splatRaw)
		return &PathMatch{
			Params:       params,
			Pathname:     pathname,
			PathnameBase: trimTrailingSlashes(base),
			Pattern:      p.source,
		}, true

	case end:
		for _, seg := range rest {
			if seg != "" {
				return nil, false
			}
		}
		return &PathMatch{
			Params:       params,
			Pathname:     pathname,
			PathnameBase: trimTrailingSlashes(pathname),
			Pattern:      p.source,
		}, true

	default:
		return &PathMatch{
			Params:       params,
			Pathname:     consumedPath,
			PathnameBase: trimTrailingSlashes(consumedPath),
			Pattern:      p.source,
		}, true
	}
}

func (p *pattern) equal(literal, segment string) bool {
	if p.caseSensitive {
		return literal == segment
	}
	return strings.EqualFold(literal, segment)
}

// trimTrailingSlashes drops trailing slashes but never empties "/".
func trimTrailingSlashes(s string) string {
	trimmed := strings.TrimRight(s, "/")
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func decodeSplat(raw string) string {
	if !strings.Contains(raw, "%") {
		return raw
	}
	parts := strings.Split(raw, "/")
	for i, part := range parts {
		parts[i] = routepath.DecodeSegment(part)
	}
	return strings.Join(parts, "/")
}

// MatchPath matches a single pattern against a pathname. The pattern must
// match the whole pathname. Optional segments are tried most specific
// first.
func MatchPath(patternPath, pathname string, caseSensitive bool) (*PathMatch, bool) {
	candidates := []string{patternPath}
	if strings.Contains(patternPath, "?") {
		candidates = explodeOptionalSegments(patternPath)
	}
	for _, candidate := range candidates {
		if pm, ok := compilePattern(candidate, caseSensitive).match(pathname, true); ok {
			pm.Pattern = patternPath
			return pm, true
		}
	}
	return nil, false
}

var optionalParam = regexp.MustCompile(`^:([\w-]+)(\??)$`)

// GeneratePath interpolates params into a pattern. Missing required
// params are an error; missing optional params drop their segment.
func GeneratePath(patternPath string, params Params) (string, error) {
	path := patternPath
	if strings.HasSuffix(path, "*") && path != "*" && !strings.HasSuffix(path, "/*") {
		path = strings.TrimSuffix(path, "*") + "/*"
	}

	prefix := ""
	if strings.HasPrefix(path, "/") {
		prefix = "/"
	}

	raw := regexp.MustCompile(`/+`).Split(path, -1)
	out := make([]string, 0, len(raw))
	for i, seg := range raw {
		if i == len(raw)-1 && seg == "*" {
			if v := params["*"]; v != "" {
				out = append(out, v)
			}
			continue
		}
		if m := optionalParam.FindStringSubmatch(seg); m != nil {
			v, ok := params[m[1]]
			if !ok && m[2] != "?" {
				return "", fmt.Errorf("missing %q param for %q", ":"+m[1], patternPath)
			}
			if v != "" {
				out = append(out, v)
			}
			continue
		}
		if seg = strings.TrimSuffix(seg, "?"); seg != "" {
			out = append(out, seg)
		}
	}
	return prefix + strings.Join(out, "/"), nil
}
