package reagent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reagent"
)

func TestParameterValidate(t *testing.T) {
	t.Run("valid string parameter", func(t *testing.T) {
		p := &reagent.Parameter{
			Type:        reagent.TypeString,
			Description: "test parameter",
		}
		gt.NoError(t, p.Validate())
	})

	t.Run("missing type", func(t *testing.T) {
		p := &reagent.Parameter{
			Description: "no type",
		}
		err := p.Validate()
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrInvalidParameter))
	})

	t.Run("object requires properties", func(t *testing.T) {
		p := &reagent.Parameter{Type: reagent.TypeObject}
		gt.Error(t, p.Validate())
	})

	t.Run("valid object parameter", func(t *testing.T) {
		p := &reagent.Parameter{
			Type: reagent.TypeObject,
			Properties: map[string]*reagent.Parameter{
				"name": {Type: reagent.TypeString},
			},
			Required: []string{"name"},
		}
		gt.NoError(t, p.Validate())
	})

	t.Run("object required must name a property", func(t *testing.T) {
		p := &reagent.Parameter{
			Type: reagent.TypeObject,
			Properties: map[string]*reagent.Parameter{
				"name": {Type: reagent.TypeString},
			},
			Required: []string{"missing"},
		}
		gt.Error(t, p.Validate())
	})

	t.Run("array requires items", func(t *testing.T) {
		p := &reagent.Parameter{Type: reagent.TypeArray}
		gt.Error(t, p.Validate())
	})

	t.Run("valid array parameter", func(t *testing.T) {
		p := &reagent.Parameter{
			Type:  reagent.TypeArray,
			Items: &reagent.Parameter{Type: reagent.TypeNumber},
		}
		gt.NoError(t, p.Validate())
	})

	t.Run("enum only on string type", func(t *testing.T) {
		p := &reagent.Parameter{
			Type: reagent.TypeNumber,
			Enum: []string{"a", "b"},
		}
		gt.Error(t, p.Validate())
	})

	t.Run("number constraints", func(t *testing.T) {
		minimum := 10.0
		maximum := 1.0
		p := &reagent.Parameter{
			Type:    reagent.TypeNumber,
			Minimum: &minimum,
			Maximum: &maximum,
		}
		gt.Error(t, p.Validate())
	})

	t.Run("string length constraints", func(t *testing.T) {
		minLen := 5
		maxLen := 2
		p := &reagent.Parameter{
			Type:      reagent.TypeString,
			MinLength: &minLen,
			MaxLength: &maxLen,
		}
		gt.Error(t, p.Validate())
	})
}

func TestToolSpecValidate(t *testing.T) {
	t.Run("valid spec", func(t *testing.T) {
		spec := &reagent.ToolSpec{
			Name:        "get_weather",
			Description: "Get weather for a given city.",
			Parameters: map[string]*reagent.Parameter{
				"city": {Type: reagent.TypeString},
			},
			Required: []string{"city"},
		}
		gt.NoError(t, spec.Validate())
	})

	t.Run("name is required", func(t *testing.T) {
		spec := &reagent.ToolSpec{Description: "no name"}
		err := spec.Validate()
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrInvalidTool))
	})

	t.Run("required must name a parameter", func(t *testing.T) {
		spec := &reagent.ToolSpec{
			Name: "broken",
			Parameters: map[string]*reagent.Parameter{
				"city": {Type: reagent.TypeString},
			},
			Required: []string{"country"},
		}
		gt.Error(t, spec.Validate())
	})

	t.Run("invalid parameter propagates", func(t *testing.T) {
		spec := &reagent.ToolSpec{
			Name: "broken",
			Parameters: map[string]*reagent.Parameter{
				"city": {},
			},
		}
		err := spec.Validate()
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrInvalidParameter))
	})
}

func TestFuncTool(t *testing.T) {
	spec := &reagent.ToolSpec{
		Name:        "echo",
		Description: "Echo the input back.",
		Parameters: map[string]*reagent.Parameter{
			"text": {Type: reagent.TypeString},
		},
	}

	tool := reagent.NewTool(spec, func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
		return map[string]any{"echo": args["text"]}, nil
	})

	gt.Equal(t, tool.Spec().Name, "echo")

	out, err := tool.Run(context.Background(), reagent.DiscardWriter, map[string]any{"text": "hi"})
	gt.NoError(t, err)
	gt.Equal(t, out["echo"], "hi")
}
