package reagent

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestResponseValidator(t *testing.T) {
	schema := &Parameter{
		Type: TypeObject,
		Properties: map[string]*Parameter{
			"conditions": {Type: TypeString},
		},
		Required: []string{"conditions"},
	}

	validator, err := newResponseValidator(schema)
	gt.NoError(t, err)

	t.Run("matching answer decodes", func(t *testing.T) {
		decoded, err := validator.validate(`{"conditions": "sunny"}`)
		gt.NoError(t, err)

		obj := decoded.(map[string]any)
		gt.Equal(t, obj["conditions"], "sunny")
	})

	t.Run("non-JSON answer fails", func(t *testing.T) {
		_, err := validator.validate("It's always sunny in sf!")
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrStructuredOutput))
	})

	t.Run("schema mismatch fails", func(t *testing.T) {
		_, err := validator.validate(`{"conditions": 25}`)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrStructuredOutput))

		_, err = validator.validate(`{"weather": "sunny"}`)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrStructuredOutput))
	})

	t.Run("invalid schema is rejected at construction", func(t *testing.T) {
		_, err := newResponseValidator(&Parameter{Type: TypeObject})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, ErrInvalidParameter))
	})
}
