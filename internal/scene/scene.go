// Package scene defines the opaque document payload synchronized between
// client and server. The sync engine never interprets elements, appState or
// files; it only validates their JSON shape and moves them around.
package scene

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/scenekeeper/internal/common"
)

// Payload is the scene content of a file: an ordered list of drawable
// elements, a map of rendering/view options, and a map of referenced
// binary-asset ids to metadata. All three are carried as raw JSON.
type Payload struct {
	Elements json.RawMessage `json:"elements"`
	AppState json.RawMessage `json:"appState"`
	Files    json.RawMessage `json:"files"`
}

// Empty returns a payload with no elements and empty option/asset maps.
func Empty() Payload {
	return Payload{
		Elements: json.RawMessage(`[]`),
		AppState: json.RawMessage(`{}`),
		Files:    json.RawMessage(`{}`),
	}
}

// Normalize fills absent sections with their empty form so a payload is
// always safe to persist and render.
func (p Payload) Normalize() Payload {
	out := p
	if len(out.Elements) == 0 || bytes.Equal(out.Elements, []byte("null")) {
		out.Elements = json.RawMessage(`[]`)
	}
	if len(out.AppState) == 0 || bytes.Equal(out.AppState, []byte("null")) {
		out.AppState = json.RawMessage(`{}`)
	}
	if len(out.Files) == 0 || bytes.Equal(out.Files, []byte("null")) {
		out.Files = json.RawMessage(`{}`)
	}
	return out
}

// Validate checks the JSON shape: elements must be an array, appState and
// files must be objects. Absent sections are allowed (Normalize fills them).
func (p Payload) Validate() error {
	if err := expectShape(p.Elements, '[', "elements", "array"); err != nil {
		return err
	}
	if err := expectShape(p.AppState, '{', "appState", "object"); err != nil {
		return err
	}
	if err := expectShape(p.Files, '{', "files", "object"); err != nil {
		return err
	}
	return nil
}

func expectShape(raw json.RawMessage, open byte, field, kind string) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != open {
		return fmt.Errorf("%w: scene.%s must be a JSON %s", common.ErrInvalidInput, field, kind)
	}
	if !json.Valid(trimmed) {
		return fmt.Errorf("%w: scene.%s is not valid JSON", common.ErrInvalidInput, field)
	}
	return nil
}

// Encode serializes the normalized payload for storage.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p.Normalize())
}

// Decode parses a stored scene blob back into a payload.
func Decode(b []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode scene: %w", err)
	}
	return p.Normalize(), nil
}
