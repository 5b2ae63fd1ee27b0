package reagent

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// responseValidator checks the final assistant message against the
// configured response schema before the loop reports Done.
type responseValidator struct {
	param  *Parameter
	schema *jsonschema.Schema
}

func newResponseValidator(param *Parameter) (*responseValidator, error) {
	if err := param.Validate(); err != nil {
		return nil, err
	}

	schema, err := compileSchema(param.JSONSchema())
	if err != nil {
		return nil, err
	}

	return &responseValidator{param: param, schema: schema}, nil
}

// validate parses the final answer as JSON and validates it. The typed
// result is returned so callers of Run can decode it without re-parsing.
func (x *responseValidator) validate(text string) (any, error) {
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, goerr.Wrap(ErrStructuredOutput, "final answer is not valid JSON",
			goerr.V("text", text))
	}

	if err := x.schema.Validate(decoded); err != nil {
		return nil, goerr.Wrap(ErrStructuredOutput, "final answer does not match response schema",
			goerr.V("cause", err.Error()))
	}

	return decoded, nil
}
