package codec

import (
	"encoding/json"

	gojson "github.com/goccy/go-json"
)

// GoJSON encodes documents with github.com/goccy/go-json.
type GoJSON struct{}

func (GoJSON) Name() string { return "go-json" }

func (GoJSON) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// JSON encodes documents with encoding/json. Its output is byte-compatible
// with GoJSON, so either can read documents the other wrote.
type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
