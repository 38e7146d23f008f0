package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ContextSchemaURL identifies the embedded context schema.
const ContextSchemaURL = "https://chewbridge.local/schema/context-v1.schema.json"

//go:embed schema/context-v1.schema.json
var contextSchemaJSON []byte

var (
	contextSchema     *jsonschema.Schema
	contextSchemaErr  error
	contextSchemaOnce sync.Once
)

// ContextSchema returns the raw JSON schema of the context payload.
func ContextSchema() []byte {
	out := make([]byte, len(contextSchemaJSON))
	copy(out, contextSchemaJSON)
	return out
}

func compiledContextSchema() (*jsonschema.Schema, error) {
	contextSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(ContextSchemaURL, bytes.NewReader(contextSchemaJSON)); err != nil {
			contextSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		contextSchema, contextSchemaErr = compiler.Compile(ContextSchemaURL)
	})
	return contextSchema, contextSchemaErr
}

// ValidateContext checks a context payload against the context schema.
func ValidateContext(payload []byte) error {
	schema, err := compiledContextSchema()
	if err != nil {
		return fmt.Errorf("compile context schema: %w", err)
	}

	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return fmt.Errorf("unmarshal context: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("context does not match schema: %w", err)
	}
	return nil
}

// ValidateMessage validates the payload of an outbound context: message.
// Other message kinds are accepted as-is.
func ValidateMessage(msg string) error {
	kind, payload := ParseOutbound(msg)
	if kind != KindContext {
		return nil
	}
	return ValidateContext([]byte(payload))
}
