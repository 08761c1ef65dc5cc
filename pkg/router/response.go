package router

import (
	"errors"
	"fmt"
	"net/http"
)

// Headers understood on redirect responses.
const (
	HeaderLocation       = "Location"
	HeaderReplace        = "X-Datarouter-Replace"
	HeaderReloadDocument = "X-Datarouter-Reload-Document"
)

// Response is a handler result that carries a status and headers. A
// *Response with a 3xx status and a Location header is a redirect.
// Returning one as an error is the same as returning it as data.
type Response struct {
	Status int
	Header http.Header
	Body   any
}

func (r *Response) Error() string {
	if r.IsRedirect() {
		return fmt.Sprintf("redirect %d to %s", r.Status, r.Header.Get(HeaderLocation))
	}
	return fmt.Sprintf("response %d", r.Status)
}

// IsRedirect reports whether r redirects.
func (r *Response) IsRedirect() bool {
	if r == nil || r.Header.Get(HeaderLocation) == "" {
		return false
	}
	switch r.Status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// Location returns the redirect target.
func (r *Response) Location() string { return r.Header.Get(HeaderLocation) }

// Replace reports whether the redirect replaces the current history entry.
func (r *Response) Replace() bool { return r.Header.Get(HeaderReplace) != "" }

// ReloadDocument reports whether the redirect must leave the router.
func (r *Response) ReloadDocument() bool { return r.Header.Get(HeaderReloadDocument) != "" }

// Redirect returns a redirect response. The status defaults to 302.
func Redirect(url string, status ...int) *Response {
	code := http.StatusFound
	if len(status) > 0 {
		code = status[0]
	}
	h := http.Header{}
	h.Set(HeaderLocation, url)
	return &Response{Status: code, Header: h}
}

// ReplaceRedirect redirects and replaces the current history entry.
func ReplaceRedirect(url string, status ...int) *Response {
	r := Redirect(url, status...)
	r.Header.Set(HeaderReplace, "true")
	return r
}

// RedirectDocument redirects with a full document load.
func RedirectDocument(url string, status ...int) *Response {
	r := Redirect(url, status...)
	r.Header.Set(HeaderReloadDocument, "true")
	return r
}

// Data wraps a value with a status and optional headers.
func Data(body any, status int, header ...http.Header) *Response {
	h := http.Header{}
	for _, extra := range header {
		for k, vs := range extra {
			for _, v := range vs {
				h.Add(k, v)
			}
		}
	}
	return &Response{Status: status, Header: h, Body: body}
}

// JSON is Data with a JSON content type.
func JSON(body any, status ...int) *Response {
	code := http.StatusOK
	if len(status) > 0 {
		code = status[0]
	}
	r := Data(body, code)
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	return r
}

// AsRedirect extracts a redirect from a handler's value or error.
func AsRedirect(value any, err error) (*Response, bool) {
	if resp, ok := value.(*Response); ok && resp.IsRedirect() {
		return resp, true
	}
	var resp *Response
	if errors.As(err, &resp) && resp.IsRedirect() {
		return resp, true
	}
	return nil, false
}

// ErrorResponse is an HTTP-shaped error: a non-redirect *Response thrown
// by a handler, or a routing failure.
type ErrorResponse struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Data       any    `json:"data,omitempty"`
	Internal   bool   `json:"internal"`
	Err        error  `json:"-"`
}

func (e *ErrorResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.StatusText, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.StatusText)
}

func (e *ErrorResponse) Unwrap() error { return e.Err }

// NewErrorResponse builds an ErrorResponse from a status.
func NewErrorResponse(status int, data any) *ErrorResponse {
	return &ErrorResponse{Status: status, StatusText: http.StatusText(status), Data: data}
}

// IsErrorResponse reports whether err carries an HTTP status.
func IsErrorResponse(err error) (*ErrorResponse, bool) {
	var er *ErrorResponse
	if errors.As(err, &er) {
		return er, true
	}
	var rme *RouteMatchError
	if errors.As(err, &rme) {
		return rme.ErrorResponse(), true
	}
	return nil, false
}

// RouteMatchError is a routing failure: no route matched (404) or a
// submission reached a route without an action (405).
type RouteMatchError struct {
	Status   int
	Pathname string
	Method   string
	RouteID  string
}

func (e *RouteMatchError) Error() string {
	switch e.Status {
	case http.StatusMethodNotAllowed:
		return fmt.Sprintf("you made a %s request to %q but did not provide an action for route %q", e.Method, e.Pathname, e.RouteID)
	default:
		return fmt.Sprintf("no route matches URL %q", e.Pathname)
	}
}

// ErrorResponse converts e to its HTTP form.
func (e *RouteMatchError) ErrorResponse() *ErrorResponse {
	return &ErrorResponse{
		Status:     e.Status,
		StatusText: http.StatusText(e.Status),
		Internal:   true,
		Err:        e,
	}
}

// NotFound returns the 404 error for pathname.
func NotFound(pathname string) *RouteMatchError {
	return &RouteMatchError{Status: http.StatusNotFound, Pathname: pathname}
}

// MethodNotAllowed returns the 405 error for a submission to routeID.
func MethodNotAllowed(method, pathname, routeID string) *RouteMatchError {
	return &RouteMatchError{Status: http.StatusMethodNotAllowed, Method: method, Pathname: pathname, RouteID: routeID}
}
