package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
)

// ParseJSON reads a PostgreSQL EXPLAIN (ANALYZE, FORMAT JSON) document and produces an Explain structure.
// Nodes missing their type or row counts are rejected with an errs.MalformedPlanError.
func ParseJSON(r io.Reader) (*model.Explain, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, errs.Malformed("", "decode explain json: %v", err)
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, err
	}

	planMapVal, ok := entry["Plan"]
	if !ok {
		return nil, errs.Malformed("", "missing Plan root")
	}

	planMap, err := asObject(planMapVal)
	if err != nil {
		return nil, errs.Malformed("0", "invalid Plan node: %v", err)
	}

	root, err := parsePlanNode(planMap, "0")
	if err != nil {
		return nil, err
	}

	explain := &model.Explain{
		Plan:          root,
		PlanningTime:  asFloat(entry["Planning Time"]),
		ExecutionTime: asFloat(entry["Execution Time"]),
		TotalCost:     root.TotalCost,
	}
	return explain, nil
}

// ParseBytes is a convenience wrapper around ParseJSON.
func ParseBytes(data []byte) (*model.Explain, error) {
	return ParseJSON(bytes.NewReader(data))
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errs.Malformed("", "empty payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, errs.Malformed("", "invalid entry: %v", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, errs.Malformed("", "unexpected top-level type %T", payload)
	}
}

func parsePlanNode(data map[string]any, path string) (*model.PlanNode, error) {
	nodeType, ok := data["Node Type"].(string)
	if !ok || nodeType == "" {
		return nil, errs.Malformed(path, "missing Node Type")
	}
	planRows, err := requireRows(data, "Plan Rows")
	if err != nil {
		return nil, errs.Malformed(path, "%s: %v", nodeType, err)
	}
	actualRows, err := requireRows(data, "Actual Rows")
	if err != nil {
		return nil, errs.Malformed(path, "%s: %v", nodeType, err)
	}

	node := &model.PlanNode{
		ID:              path,
		NodeType:        nodeType,
		RelationName:    asString(data["Relation Name"]),
		Alias:           asString(data["Alias"]),
		JoinType:        asString(data["Join Type"]),
		StartupCost:     asFloat(data["Startup Cost"]),
		TotalCost:       asFloat(data["Total Cost"]),
		PlanRows:        planRows,
		ActualRows:      actualRows,
		ActualLoops:     asFloat(data["Actual Loops"]),
		ActualTotalTime: asFloat(data["Actual Total Time"]),
	}

	if childrenVal, present := data["Plans"]; present {
		childrenSlice, ok := childrenVal.([]any)
		if !ok {
			return nil, errs.Malformed(path, "Plans must be an array, got %T", childrenVal)
		}
		for i, childVal := range childrenSlice {
			childPath := fmt.Sprintf("%s.%d", path, i)
			childMap, err := asObject(childVal)
			if err != nil {
				return nil, errs.Malformed(childPath, "%v", err)
			}

			child, err := parsePlanNode(childMap, childPath)
			if err != nil {
				return nil, err
			}
			node.Children = append(node.Children, child)
		}
	}

	return node, nil
}

func requireRows(data map[string]any, key string) (float64, error) {
	val, ok := data[key]
	if !ok || val == nil {
		return 0, errors.Newf("missing %s", key)
	}
	f, ok := toFloat(val)
	if !ok {
		return 0, errors.Newf("%s is not a number (%v)", key, val)
	}
	if f < 0 {
		return 0, errors.Newf("%s is negative (%v)", key, f)
	}
	return f, nil
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, errors.Newf("expected object, got %T", val)
	}
	return obj, nil
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asFloat(val any) float64 {
	f, _ := toFloat(val)
	return f
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		if v == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
