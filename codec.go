package sessionstore

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Codec converts session state to and from the opaque stored payload.
type Codec interface {
	Encode(State) ([]byte, error)
	Decode([]byte) (State, error)
}

// JSONCodec stores state as a JSON object. It is the default codec.
type JSONCodec struct{}

func (JSONCodec) Encode(state State) ([]byte, error) {
	if state == nil {
		state = State{}
	}
	buf := getBuffer()
	defer PutBuffer(buf)

	if err := json.NewEncoder(buf).Encode(state); err != nil {
		return nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	// Encoder terminates every value with a newline.
	return bytes.Clone(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}

func (JSONCodec) Decode(data []byte) (State, error) {
	state := State{}
	if len(data) == 0 {
		return state, nil
	}
	reader := getReader(data)
	defer putReader(reader)

	if err := json.NewDecoder(reader).Decode(&state); err != nil {
		return nil, fmt.Errorf("failed to decode session data: %w", err)
	}
	if state == nil {
		state = State{}
	}
	return state, nil
}

// GobCodec stores state in encoding/gob format.
type GobCodec struct{}

func (GobCodec) Encode(state State) ([]byte, error) {
	if state == nil {
		state = State{}
	}
	buf := getBuffer()
	defer PutBuffer(buf)

	if err := gob.NewEncoder(buf).Encode(map[string]string(state)); err != nil {
		return nil, fmt.Errorf("failed to encode session data: %w", err)
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (GobCodec) Decode(data []byte) (State, error) {
	var values map[string]string

	// Empty payloads decode to an empty state without touching gob.
	if len(data) > 0 {
		reader := getReader(data)
		defer putReader(reader)

		if err := gob.NewDecoder(reader).Decode(&values); err != nil {
			return nil, fmt.Errorf("failed to decode session data: %w", err)
		}
	}
	if values == nil {
		values = make(map[string]string)
	}
	return State(values), nil
}
