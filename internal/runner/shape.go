package runner

import (
	"strings"

	"github.com/mickamy/cardest/internal/errs"
)

// Shape is a join-tree shape understood by pg_hint_plan.
type Shape string

const (
	ShapeDefault Shape = "default"
	ShapeLeft    Shape = "left"
	ShapeRight   Shape = "right"
	ShapeZigZag  Shape = "zig-zag"
)

// Shapes lists every accepted shape, default first.
var Shapes = []Shape{ShapeDefault, ShapeLeft, ShapeRight, ShapeZigZag}

// ParseShape validates a shape name.
func ParseShape(s string) (Shape, error) {
	candidate := Shape(strings.ToLower(strings.TrimSpace(s)))
	for _, shape := range Shapes {
		if candidate == shape {
			return shape, nil
		}
	}
	accepted := make([]string, len(Shapes))
	for i, shape := range Shapes {
		accepted[i] = string(shape)
	}
	return "", &errs.InvalidConfigurationError{Value: s, Accepted: accepted}
}
