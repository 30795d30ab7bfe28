package serialize

import (
	"encoding/json"
	"io"
)

// WriteJSON writes v to w as indented JSON followed by a newline. The CLI
// uses it for machine-readable inspect and options output.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
