package main

import (
	"encoding/json"
	"io"
)

// emitJSON writes v as indented JSON. Free-text fields such as transcripts
// keep their angle brackets and ampersands unescaped.
func emitJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
