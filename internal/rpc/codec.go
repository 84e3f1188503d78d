package rpc

import "encoding/json"

// Codec carries plain Go structs as JSON. It replaces connect's default
// "json" codec, which only accepts protobuf messages.
type Codec struct{}

func (Codec) Name() string {
	return "json"
}

func (Codec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
