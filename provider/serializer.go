package provider

import (
	"encoding/json"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

// JSON serializes payloads as JSON text.
type JSON struct{}

// Marshal implements Serializer.
func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "json marshal")
	}
	return data, nil
}

// Unmarshal implements Serializer.
func (JSON) Unmarshal(data []byte, v any) error {
	return errors.Wrap(json.Unmarshal(data, v), "json unmarshal")
}

// cborEnc uses core deterministic encoding so equal payloads produce equal bytes.
var cborEnc, _ = cbor.CoreDetEncOptions().EncMode()

// CBOR serializes payloads as compact binary CBOR.
type CBOR struct{}

// Marshal implements Serializer.
func (CBOR) Marshal(v any) ([]byte, error) {
	data, err := cborEnc.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "cbor marshal")
	}
	return data, nil
}

// Unmarshal implements Serializer.
func (CBOR) Unmarshal(data []byte, v any) error {
	return errors.Wrap(cbor.Unmarshal(data, v), "cbor unmarshal")
}
