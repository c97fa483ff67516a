// Package jsoncodec is the JSON codec shared by the stats API and the io
// transport capture files.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// NewEncoder returns a streaming encoder writing one JSON value per line.
func NewEncoder(w io.Writer) sonic.Encoder {
	return defaultConfig.NewEncoder(w)
}

// NewDecoder returns a streaming decoder reading consecutive JSON values.
func NewDecoder(r io.Reader) sonic.Decoder {
	return defaultConfig.NewDecoder(r)
}
