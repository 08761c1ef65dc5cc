package routepath

import (
	"regexp"
	"strings"
)

var (
	multiSlash    = regexp.MustCompile(`/{2,}`)
	trailingSlash = regexp.MustCompile(`/+$`)
	leadingSlash  = regexp.MustCompile(`^/*`)
)

// JoinPaths joins path pieces with single slashes.
func JoinPaths(paths ...string) string {
	return multiSlash.ReplaceAllString(strings.Join(paths, "/"), "/")
}

// NormalizePathname strips trailing slashes and makes the pathname absolute.
func NormalizePathname(pathname string) string {
	return leadingSlash.ReplaceAllString(trailingSlash.ReplaceAllString(pathname, ""), "/")
}

// ResolvePath resolves to against fromPathname. Absolute pathnames are
// returned as-is, relative ones are resolved segment by segment, and an
// empty pathname resolves to fromPathname.
func ResolvePath(to Path, fromPathname string) Path {
	if fromPathname == "" {
		fromPathname = "/"
	}

	pathname := fromPathname
	switch {
	case to.Pathname == "":
	case strings.HasPrefix(to.Pathname, "/"):
		pathname = to.Pathname
	default:
		pathname = resolvePathname(to.Pathname, fromPathname)
	}

	return Path{
		Pathname: pathname,
		Search:   NormalizeSearch(to.Search),
		Hash:     NormalizeHash(to.Hash),
	}
}

func resolvePathname(relative, fromPathname string) string {
	segments := strings.Split(trailingSlash.ReplaceAllString(fromPathname, ""), "/")
	for _, seg := range strings.Split(relative, "/") {
		switch seg {
		case "..":
			if len(segments) > 1 {
				segments = segments[:len(segments)-1]
			}
		case ".":
		default:
			segments = append(segments, seg)
		}
	}
	if len(segments) > 1 {
		return strings.Join(segments, "/")
	}
	return "/"
}

// ResolveTo resolves a navigation target.
//
// routePathnames are the pathname bases of the matches leading to the route
// the navigation originates from. In route-relative mode (pathRelative
// false) each leading ".." pops one route instead of one URL segment. In
// path-relative mode ".." always removes a URL segment. A target without a
// pathname ("?q=1", "#top") resolves against locationPathname.
func ResolveTo(to string, routePathnames []string, locationPathname string, pathRelative bool) Path {
	target := ParsePath(to)
	isEmptyPath := to == "" || (target.Pathname == "" && target.Search == "" && target.Hash == "")
	hasPathname := target.Pathname != "" || isEmptyPath

	toPathname := target.Pathname
	if isEmptyPath {
		toPathname = "/"
	}

	var from string
	if !hasPathname {
		from = locationPathname
	} else {
		idx := len(routePathnames) - 1
		if !pathRelative && strings.HasPrefix(toPathname, "..") {
			segments := strings.Split(toPathname, "/")
			for len(segments) > 0 && segments[0] == ".." {
				segments = segments[1:]
				idx--
			}
			target.Pathname = strings.Join(segments, "/")
		}
		if idx >= 0 {
			from = routePathnames[idx]
		} else {
			from = "/"
		}
	}

	resolved := ResolvePath(target, from)

	explicitTrailing := hasPathname && toPathname != "/" && strings.HasSuffix(toPathname, "/")
	currentTrailing := (isEmptyPath || toPathname == ".") && strings.HasSuffix(locationPathname, "/")
	if !strings.HasSuffix(resolved.Pathname, "/") && (explicitTrailing || currentTrailing) {
		resolved.Pathname += "/"
	}
	return resolved
}

// StripBasename removes basename from pathname. ok is false when pathname
// is outside the basename. The comparison is case-insensitive and must end
// on a segment boundary.
func StripBasename(pathname, basename string) (string, bool) {
	if basename == "" || basename == "/" {
		return pathname, true
	}
	if !strings.HasPrefix(strings.ToLower(pathname), strings.ToLower(basename)) {
		return "", false
	}

	start := len(basename)
	if strings.HasSuffix(basename, "/") {
		start--
	}
	if start < len(pathname) && pathname[start] != '/' {
		return "", false
	}

	rest := pathname[start:]
	if rest == "" {
		return "/", true
	}
	return rest, true
}

// PrependBasename is the inverse of StripBasename for pathnames produced by
// the router.
func PrependBasename(pathname, basename string) string {
	if basename == "" || basename == "/" {
		return pathname
	}
	if pathname == "/" {
		return basename
	}
	return JoinPaths(basename, pathname)
}
