package adapter

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/jherleth/salvo-ai/model"
)

// ValidateToolSchema defensively compiles a tool's InputSchema as a JSON
// Schema document before it is handed to a provider adapter. Scenario
// loading is an external concern (§6) and may not catch a malformed schema,
// so adapters call this for every tool on every SendTurn; a
// compile failure is a non-retryable AdapterUnavailable-class error rather
// than a confusing provider-side 400.
func ValidateToolSchema(def model.ToolDefinition) error {
	if len(def.InputSchema) == 0 {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def.InputSchema))
	if err != nil {
		return fmt.Errorf("tool %q: input_schema is not valid JSON: %w", def.Name, err)
	}
	resource := "tool://" + def.Name + "/input_schema.json"
	if err := compiler.AddResource(resource, doc); err != nil {
		return fmt.Errorf("tool %q: input_schema is not a valid JSON Schema document: %w", def.Name, err)
	}
	if _, err := compiler.Compile(resource); err != nil {
		return fmt.Errorf("tool %q: input_schema failed to compile: %w", def.Name, err)
	}
	return nil
}
