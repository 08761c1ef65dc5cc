// Package hydration moves HydrationState from a server render to a
// client router.
//
// Errors are not serializable as-is. They travel as tagged records and
// come back as *router.ErrorResponse for HTTP-shaped errors and as plain
// errors carrying the message otherwise. Deferred loader data is sent
// with its settled keys only; pending and rejected keys are dropped so
// the client router loads them itself.
package hydration

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/vango-dev/datarouter"
	"github.com/vango-dev/datarouter/pkg/deferred"
	"github.com/vango-dev/datarouter/pkg/router"
)

// Codec encodes hydration state for one wire format.
type Codec interface {
	// ContentType is the media type of encoded payloads.
	ContentType() string

	Encode(w io.Writer, s *datarouter.HydrationState) error
	Decode(r io.Reader) (*datarouter.HydrationState, error)
}

// Error record types.
const (
	TypeErrorResponse = "RouteErrorResponse"
	TypeError         = "Error"
)

// ErrorRecord is the wire form of a route error.
type ErrorRecord struct {
	Type       string `json:"__type" msgpack:"__type"`
	Status     int    `json:"status,omitempty" msgpack:"status,omitempty"`
	StatusText string `json:"statusText,omitempty" msgpack:"statusText,omitempty"`
	Data       any    `json:"data,omitempty" msgpack:"data,omitempty"`
	Internal   bool   `json:"internal,omitempty" msgpack:"internal,omitempty"`
	Message    string `json:"message,omitempty" msgpack:"message,omitempty"`
}

// wireState is what codecs actually marshal.
type wireState struct {
	LoaderData map[string]any         `json:"loaderData,omitempty" msgpack:"loaderData,omitempty"`
	ActionData map[string]any         `json:"actionData,omitempty" msgpack:"actionData,omitempty"`
	Errors     map[string]ErrorRecord `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

// EncodeErrors converts route errors to their wire form.
func EncodeErrors(errs map[string]error) map[string]ErrorRecord {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]ErrorRecord, len(errs))
	for id, err := range errs {
		out[id] = encodeError(err)
	}
	return out
}

func encodeError(err error) ErrorRecord {
	if er, ok := router.IsErrorResponse(err); ok {
		return ErrorRecord{
			Type:       TypeErrorResponse,
			Status:     er.Status,
			StatusText: er.StatusText,
			Data:       er.Data,
			Internal:   er.Internal,
			Message:    err.Error(),
		}
	}
	return ErrorRecord{Type: TypeError, Message: err.Error()}
}

// DecodeErrors restores route errors from their wire form.
func DecodeErrors(records map[string]ErrorRecord) map[string]error {
	if len(records) == 0 {
		return nil
	}
	out := make(map[string]error, len(records))
	for id, rec := range records {
		if rec.Type == TypeErrorResponse {
			out[id] = &router.ErrorResponse{
				Status:     rec.Status,
				StatusText: rec.StatusText,
				Data:       rec.Data,
				Internal:   rec.Internal,
			}
			continue
		}
		out[id] = errors.New(rec.Message)
	}
	return out
}

func toWire(s *datarouter.HydrationState) wireState {
	return wireState{
		LoaderData: settledData(s.LoaderData),
		ActionData: s.ActionData,
		Errors:     EncodeErrors(s.Errors),
	}
}

func fromWire(w wireState) *datarouter.HydrationState {
	return &datarouter.HydrationState{
		LoaderData: w.LoaderData,
		ActionData: w.ActionData,
		Errors:     DecodeErrors(w.Errors),
	}
}

// settledData replaces deferred loader data by its resolved keys.
func settledData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for id, v := range data {
		d, ok := v.(*deferred.Data)
		if !ok {
			out[id] = v
			continue
		}
		fields := d.Unwrap()
		for k, fv := range fields {
			switch fv.(type) {
			case *deferred.Value, error:
				delete(fields, k)
			}
		}
		out[id] = fields
	}
	return out
}

// ForContentType returns the codec for a Content-Type header value.
func ForContentType(contentType string) (Codec, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("hydration: parse content type: %w", err)
	}
	for _, c := range []Codec{JSON, Msgpack} {
		if c.ContentType() == mediaType {
			return c, nil
		}
	}
	return nil, fmt.Errorf("hydration: unsupported content type %q", mediaType)
}

// Negotiate picks a codec from an Accept header. JSON is the default.
func Negotiate(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		switch mediaType {
		case Msgpack.ContentType():
			return Msgpack
		case JSON.ContentType():
			return JSON
		}
	}
	return JSON
}
