package export

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rapidassist/docpipe/internal/common"
)

// ValidateAgainstSchema checks that value conforms to the given JSON
// schema. The value is round-tripped through JSON first so structured
// Go values and decoded documents validate identically. A mismatch is a
// validation failure; a broken schema is reported as such.
func ValidateAgainstSchema(schemaDoc map[string]any, value any) error {
	schema, err := compileSchema(schemaDoc)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return common.NewAppError("FORMAT_ERROR", "encode value for schema validation", err)
	}
	var normalized any
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return common.NewAppError("FORMAT_ERROR", "normalize value for schema validation", err)
	}

	if err := schema.Validate(normalized); err != nil {
		return common.NewAppError("SCHEMA_MISMATCH", "output does not match schema",
			fmt.Errorf("%w: %w", common.ErrValidation, err))
	}
	return nil
}

func compileSchema(schemaDoc map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "encode schema", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("output.schema.json", bytes.NewReader(raw)); err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "register schema", err)
	}
	schema, err := compiler.Compile("output.schema.json")
	if err != nil {
		return nil, common.NewAppError("SCHEMA_ERROR", "compile schema", err)
	}
	return schema, nil
}
