package schemafile

import (
	"bytes"
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// ParseYAML decodes a YAML schema. Unknown fields are rejected. A missing
// version defaults to 1.
func ParseYAML(data []byte) (*Schema, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	s := &Schema{Version: 1}
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Code: CodeLoadFailed, Message: "empty schema file"}
		}
		return nil, &Error{Code: CodeLoadFailed, Message: err.Error()}
	}
	return s, nil
}
