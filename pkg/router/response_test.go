package router

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedirectHelpers(t *testing.T) {
	r := Redirect("/login")
	assert.Equal(t, http.StatusFound, r.Status)
	assert.Equal(t, "/login", r.Location())
	assert.True(t, r.IsRedirect())
	assert.False(t, r.Replace())
	assert.False(t, r.ReloadDocument())

	r = ReplaceRedirect("/a", http.StatusSeeOther)
	assert.Equal(t, http.StatusSeeOther, r.Status)
	assert.True(t, r.Replace())

	r = RedirectDocument("https://example.com/")
	assert.True(t, r.ReloadDocument())
}

func TestResponseIsRedirect(t *testing.T) {
	assert.False(t, JSON(map[string]int{"a": 1}).IsRedirect())
	assert.False(t, (&Response{Status: http.StatusFound, Header: http.Header{}}).IsRedirect())
	assert.False(t, Redirect("/x", http.StatusOK).IsRedirect())

	var nilResp *Response
	assert.False(t, nilResp.IsRedirect())
}

func TestAsRedirect(t *testing.T) {
	redirect := Redirect("/next")

	got, ok := AsRedirect(redirect, nil)
	require.True(t, ok)
	assert.Same(t, redirect, got)

	got, ok = AsRedirect(nil, fmt.Errorf("wrapped: %w", redirect))
	require.True(t, ok)
	assert.Same(t, redirect, got)

	_, ok = AsRedirect("data", errors.New("boom"))
	assert.False(t, ok)
}

func TestDataAndJSON(t *testing.T) {
	h := http.Header{}
	h.Set("Cache-Control", "no-store")

	r := Data("body", http.StatusCreated, h)
	assert.Equal(t, http.StatusCreated, r.Status)
	assert.Equal(t, "no-store", r.Header.Get("Cache-Control"))
	assert.Equal(t, "body", r.Body)

	j := JSON([]int{1})
	assert.Equal(t, http.StatusOK, j.Status)
	assert.Contains(t, j.Header.Get("Content-Type"), "application/json")
}

func TestRouteMatchErrors(t *testing.T) {
	nf := NotFound("/missing")
	assert.Equal(t, http.StatusNotFound, nf.Status)
	assert.Contains(t, nf.Error(), "/missing")

	er, ok := IsErrorResponse(nf)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, er.Status)
	assert.Equal(t, "Not Found", er.StatusText)
	assert.True(t, er.Internal)

	mna := MethodNotAllowed(http.MethodPost, "/users", "users")
	assert.Contains(t, mna.Error(), "did not provide an action")
	er, ok = IsErrorResponse(mna)
	require.True(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, er.Status)

	var target *RouteMatchError
	assert.True(t, errors.As(er, &target))

	_, ok = IsErrorResponse(errors.New("plain"))
	assert.False(t, ok)
}

func TestNewErrorResponse(t *testing.T) {
	er := NewErrorResponse(http.StatusTeapot, map[string]string{"why": "tea"})
	assert.Equal(t, "418 I'm a teapot", er.Error())
	assert.False(t, er.Internal)
}
