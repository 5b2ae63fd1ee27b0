package reagent_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/reagent"
)

func echoSpec(name string) *reagent.ToolSpec {
	return &reagent.ToolSpec{
		Name:        name,
		Description: "echo tool",
		Parameters: map[string]*reagent.Parameter{
			"text": {Type: reagent.TypeString},
		},
		Required: []string{"text"},
	}
}

func echoTool(name string) reagent.Tool {
	return reagent.NewTool(echoSpec(name), func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
		return map[string]any{"echo": args["text"]}, nil
	})
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate tool name", func(t *testing.T) {
		_, err := reagent.NewRegistry(ctx, []reagent.Tool{echoTool("echo"), echoTool("echo")}, nil)
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrDuplicateTool))
	})

	t.Run("specs are sorted by name", func(t *testing.T) {
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{echoTool("zulu"), echoTool("alpha")}, nil)
		gt.NoError(t, err)

		specs := registry.Specs()
		gt.Equal(t, len(specs), 2)
		gt.Equal(t, specs[0].Name, "alpha")
		gt.Equal(t, specs[1].Name, "zulu")
	})

	t.Run("unknown tool", func(t *testing.T) {
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{echoTool("echo")}, nil)
		gt.NoError(t, err)

		_, err = registry.Invoke(ctx, reagent.DiscardWriter, "missing", map[string]any{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrToolNotFound))
	})

	t.Run("invoke validates arguments", func(t *testing.T) {
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{echoTool("echo")}, nil)
		gt.NoError(t, err)

		t.Run("missing required argument", func(t *testing.T) {
			_, err := registry.Invoke(ctx, reagent.DiscardWriter, "echo", map[string]any{})
			gt.Error(t, err)
			gt.True(t, errors.Is(err, reagent.ErrToolArgument))
		})

		t.Run("wrong argument type", func(t *testing.T) {
			_, err := registry.Invoke(ctx, reagent.DiscardWriter, "echo", map[string]any{"text": 42})
			gt.Error(t, err)
			gt.True(t, errors.Is(err, reagent.ErrToolArgument))
		})

		t.Run("valid arguments pass through", func(t *testing.T) {
			out, err := registry.Invoke(ctx, reagent.DiscardWriter, "echo", map[string]any{"text": "hi"})
			gt.NoError(t, err)
			gt.Equal(t, out["echo"], "hi")
		})
	})

	t.Run("default fills omitted argument", func(t *testing.T) {
		spec := &reagent.ToolSpec{
			Name: "greet",
			Parameters: map[string]*reagent.Parameter{
				"name": {Type: reagent.TypeString, Default: "world"},
			},
		}
		tool := reagent.NewTool(spec, func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
			return map[string]any{"name": args["name"]}, nil
		})
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{tool}, nil)
		gt.NoError(t, err)

		out, err := registry.Invoke(ctx, reagent.DiscardWriter, "greet", map[string]any{})
		gt.NoError(t, err)
		gt.Equal(t, out["name"], "world")
	})

	t.Run("enum constraint", func(t *testing.T) {
		spec := &reagent.ToolSpec{
			Name: "pick",
			Parameters: map[string]*reagent.Parameter{
				"color": {Type: reagent.TypeString, Enum: []string{"red", "blue"}},
			},
			Required: []string{"color"},
		}
		tool := reagent.NewTool(spec, func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
			return map[string]any{"color": args["color"]}, nil
		})
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{tool}, nil)
		gt.NoError(t, err)

		_, err = registry.Invoke(ctx, reagent.DiscardWriter, "pick", map[string]any{"color": "green"})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrToolArgument))

		out, err := registry.Invoke(ctx, reagent.DiscardWriter, "pick", map[string]any{"color": "red"})
		gt.NoError(t, err)
		gt.Equal(t, out["color"], "red")
	})

	t.Run("panic is captured as tool execution error", func(t *testing.T) {
		spec := &reagent.ToolSpec{Name: "boom"}
		tool := reagent.NewTool(spec, func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
			panic("kaboom")
		})
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{tool}, nil)
		gt.NoError(t, err)

		_, err = registry.Invoke(ctx, reagent.DiscardWriter, "boom", map[string]any{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrToolExecution))
	})

	t.Run("fatal error passes through unwrapped", func(t *testing.T) {
		spec := &reagent.ToolSpec{Name: "fatal"}
		tool := reagent.NewTool(spec, func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
			return nil, goerr.Wrap(reagent.ErrToolFatal, "unrecoverable")
		})
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{tool}, nil)
		gt.NoError(t, err)

		_, err = registry.Invoke(ctx, reagent.DiscardWriter, "fatal", map[string]any{})
		gt.Error(t, err)
		gt.True(t, errors.Is(err, reagent.ErrToolFatal))
	})

	t.Run("result is sanitized to JSON-compatible values", func(t *testing.T) {
		spec := &reagent.ToolSpec{Name: "typed"}
		tool := reagent.NewTool(spec, func(ctx context.Context, w reagent.EventWriter, args map[string]any) (map[string]any, error) {
			return map[string]any{
				"count": 3,
				"at":    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
			}, nil
		})
		registry, err := reagent.NewRegistry(ctx, []reagent.Tool{tool}, nil)
		gt.NoError(t, err)

		out, err := registry.Invoke(ctx, reagent.DiscardWriter, "typed", map[string]any{})
		gt.NoError(t, err)
		count := gt.Cast[float64](t, out["count"])
		gt.Equal(t, count, 3.0)
		gt.Equal(t, out["at"], "2025-01-02T03:04:05Z")
	})

	t.Run("tool set members register individually", func(t *testing.T) {
		set := &staticToolSet{
			specs: []*reagent.ToolSpec{echoSpec("remote_a"), echoSpec("remote_b")},
			run: func(name string, args map[string]any) (map[string]any, error) {
				return map[string]any{"from": name}, nil
			},
		}
		registry, err := reagent.NewRegistry(ctx, nil, []reagent.ToolSet{set})
		gt.NoError(t, err)

		gt.Equal(t, len(registry.Specs()), 2)

		out, err := registry.Invoke(ctx, reagent.DiscardWriter, "remote_b", map[string]any{"text": "x"})
		gt.NoError(t, err)
		gt.Equal(t, out["from"], "remote_b")
	})
}

// staticToolSet is a ToolSet test double with canned specs.
type staticToolSet struct {
	specs []*reagent.ToolSpec
	run   func(name string, args map[string]any) (map[string]any, error)
}

func (x *staticToolSet) Specs(ctx context.Context) ([]*reagent.ToolSpec, error) {
	return x.specs, nil
}

func (x *staticToolSet) Run(ctx context.Context, w reagent.EventWriter, name string, args map[string]any) (map[string]any, error) {
	return x.run(name, args)
}
