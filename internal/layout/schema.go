package layout

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/autobrr/mrimgx-restore/internal/restoreerr"
)

// embeddedSchema is a minimal structural schema for the container's
// $JSON   payload, covering the fields restoration actually depends on. The
// container's own full schema lives out-of-tree; this is deliberately
// narrower, validating only the fields restoration cannot proceed without,
// so a malformed or truncated JSON block fails fast with a clear message
// instead of propagating zero-valued fields deep into the restore engine.
const embeddedSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["_header", "_encryption", "_compression", "disks"],
	"properties": {
		"_header": {
			"type": "object",
			"required": ["imageid", "file_number", "index_file_position", "delta_index", "split_file"]
		},
		"_encryption": {
			"type": "object",
			"required": ["enable", "key_iterations", "hmac"]
		},
		"_compression": {
			"type": "object",
			"required": ["compression_level"]
		},
		"disks": {
			"type": "array"
		}
	}
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("mrimgx-layout.json", bytes.NewReader([]byte(embeddedSchema))); err != nil {
		panic(fmt.Sprintf("layout: invalid embedded schema: %v", err))
	}
	schema, err := compiler.Compile("mrimgx-layout.json")
	if err != nil {
		panic(fmt.Sprintf("layout: schema compile failed: %v", err))
	}
	return schema
}

// Validate checks raw JSON bytes against the embedded structural schema
// before they are unmarshalled into a File. This is the boundary the -j
// dump feature exercises to reject obviously malformed payloads with a
// precise path instead of a generic unmarshal error.
func Validate(raw []byte) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return restoreerr.Wrap(restoreerr.JsonParse, "unmarshal for schema validation", err)
	}
	if err := compiledSchema.Validate(v); err != nil {
		return restoreerr.Wrap(restoreerr.JsonParse, "layout schema validation", err)
	}
	return nil
}

// Parse validates then unmarshals raw JSON bytes into a File, leaving
// Header.ImageIDBinary and Encryption.HMACBinary/DerivedKey unset — callers
// populate those via SetImageIDBinary/ConvertHMACToBinary once a password
// check (if any) is imminent.
func Parse(raw []byte) (*File, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, restoreerr.Wrap(restoreerr.JsonParse, "unmarshal layout", err)
	}
	f.RawJSON = string(raw)
	return &f, nil
}
