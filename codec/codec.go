// Package codec centralizes snapshot payload encoding.
//
// Codec selection is a compatibility boundary: snapshot files record the
// codec name in their header and are decoded with the codec they were
// written with, never with whatever Default happens to be at read time.
package codec

// Codec encodes/decodes values. Implementations must be safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec newly written snapshots use. Existing files are
// self-describing and ignore this.
var Default Codec = GoJSON{}
