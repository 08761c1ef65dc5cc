package hydration

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/vango-dev/datarouter"
)

var (
	// JSON encodes hydration state as JSON.
	JSON Codec = jsonCodec{}

	// Msgpack encodes hydration state as MessagePack.
	Msgpack Codec = msgpackCodec{}
)

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Encode(w io.Writer, s *datarouter.HydrationState) error {
	if err := json.NewEncoder(w).Encode(toWire(s)); err != nil {
		return fmt.Errorf("hydration: encode json: %w", err)
	}
	return nil
}

func (jsonCodec) Decode(r io.Reader) (*datarouter.HydrationState, error) {
	var w wireState
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("hydration: decode json: %w", err)
	}
	return fromWire(w), nil
}

type msgpackCodec struct{}

func (msgpackCodec) ContentType() string { return "application/msgpack" }

func (msgpackCodec) Encode(w io.Writer, s *datarouter.HydrationState) error {
	if err := msgpack.NewEncoder(w).Encode(toWire(s)); err != nil {
		return fmt.Errorf("hydration: encode msgpack: %w", err)
	}
	return nil
}

func (msgpackCodec) Decode(r io.Reader) (*datarouter.HydrationState, error) {
	var w wireState
	if err := msgpack.NewDecoder(r).Decode(&w); err != nil {
		return nil, fmt.Errorf("hydration: decode msgpack: %w", err)
	}
	return fromWire(w), nil
}
