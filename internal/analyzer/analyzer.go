package analyzer

import (
	"slices"

	"github.com/mickamy/cardest/internal/config"
	"github.com/mickamy/cardest/internal/errs"
	"github.com/mickamy/cardest/internal/model"
	"github.com/mickamy/cardest/internal/qerror"
)

// Options classifies plan node types for join-level extraction.
type Options struct {
	// JoinNodeTypes increment the join level of the records above them.
	JoinNodeTypes []string
	// SkipNodeTypes emit no record; their selectivity carries no signal.
	SkipNodeTypes []string
}

// DefaultOptions returns the PostgreSQL join family and the aggregate family.
func DefaultOptions() Options {
	return Options{
		JoinNodeTypes: []string{"Hash Join", "Nested Loop", "Merge Join"},
		SkipNodeTypes: []string{"Aggregate"},
	}
}

// OptionsFromConfig extends the defaults with the node types listed in cfg.
func OptionsFromConfig(cfg config.PlanConfig) Options {
	opts := DefaultOptions()
	opts.JoinNodeTypes = append(opts.JoinNodeTypes, cfg.ExtraJoinNodeTypes...)
	opts.SkipNodeTypes = append(opts.SkipNodeTypes, cfg.ExtraSkipNodeTypes...)
	return opts
}

// IsJoin reports whether nodeType is one of the configured join node types.
func (o Options) IsJoin(nodeType string) bool {
	return slices.Contains(o.JoinNodeTypes, nodeType)
}

type classifier struct {
	join map[string]struct{}
	skip map[string]struct{}
}

func (o Options) classifier() classifier {
	c := classifier{join: map[string]struct{}{}, skip: map[string]struct{}{}}
	for _, t := range o.JoinNodeTypes {
		c.join[t] = struct{}{}
	}
	for _, t := range o.SkipNodeTypes {
		c.skip[t] = struct{}{}
	}
	return c
}

func (c classifier) isJoin(nodeType string) bool {
	_, ok := c.join[nodeType]
	return ok
}

func (c classifier) isSkipped(nodeType string) bool {
	_, ok := c.skip[nodeType]
	return ok
}

// Extract flattens a plan tree into records in post-order and returns the
// join level computed for the root node.
//
// Leaves sit at level 0. An internal node takes the highest level among the
// records of its descendants (0 when none were emitted) and adds one when it is
// a join. Skipped node types contribute no record of their own, but their
// descendants' records are kept.
func Extract(node *model.PlanNode, opts Options) ([]model.Record, int, error) {
	if node == nil {
		return nil, 0, errs.Malformed("", "nil plan node")
	}
	var out []model.Record
	level, err := extract(node, opts.classifier(), &out)
	if err != nil {
		return nil, 0, err
	}
	return out, level, nil
}

func extract(node *model.PlanNode, c classifier, out *[]model.Record) (int, error) {
	if node == nil {
		return 0, errs.Malformed("", "nil child plan")
	}

	level := 0
	if !node.IsLeaf() {
		start := len(*out)
		for _, child := range node.Children {
			if child == nil {
				return 0, errs.Malformed(node.ID, "nil child plan")
			}
			if _, err := extract(child, c, out); err != nil {
				return 0, err
			}
		}
		level = maxJoinLevel((*out)[start:])
		if c.isJoin(node.NodeType) {
			level++
		}
	}

	if !c.isSkipped(node.NodeType) {
		*out = append(*out, model.Record{
			NodeID:    node.ID,
			NodeType:  node.NodeType,
			JoinLevel: level,
			Estimated: node.PlanRows,
			Actual:    node.ActualRows,
		})
	}
	return level, nil
}

// maxJoinLevel is 0 for an empty slice: an aggregate over a single scan has no join at all.
func maxJoinLevel(records []model.Record) int {
	level := 0
	for _, rec := range records {
		if rec.JoinLevel > level {
			level = rec.JoinLevel
		}
	}
	return level
}

// Analyze derives the cardinality table for an executed query.
func Analyze(queryID string, explain *model.Explain, opts Options) (*model.QueryExecution, error) {
	if explain == nil || explain.Plan == nil {
		return nil, errs.Malformed("", "missing plan for query %s", queryID)
	}

	records, level, err := Extract(explain.Plan, opts)
	if err != nil {
		return nil, err
	}

	return &model.QueryExecution{
		QueryID:      queryID,
		Plan:         explain,
		Records:      records,
		MaxJoinLevel: level,
	}, nil
}

// NodeStats mirrors a plan node with its join level and q-error.
type NodeStats struct {
	Node      *model.PlanNode
	Depth     int
	JoinLevel int
	QError    float64
	// Skipped is set for node types that emit no record.
	Skipped  bool
	Children []*NodeStats
}

// Annotate builds a NodeStats tree for rendering. Join levels match Extract.
func Annotate(explain *model.Explain, opts Options) (*NodeStats, error) {
	if explain == nil || explain.Plan == nil {
		return nil, errs.Malformed("", "missing plan")
	}
	return buildStats(explain.Plan, 0, opts.classifier()), nil
}

func buildStats(node *model.PlanNode, depth int, c classifier) *NodeStats {
	stats := &NodeStats{
		Node:    node,
		Depth:   depth,
		QError:  qerror.Of(node.PlanRows, node.ActualRows),
		Skipped: c.isSkipped(node.NodeType),
	}

	if node.IsLeaf() {
		return stats
	}

	for _, childNode := range node.Children {
		child := buildStats(childNode, depth+1, c)
		stats.Children = append(stats.Children, child)
		if lvl := child.subtreeLevel(); lvl > stats.JoinLevel {
			stats.JoinLevel = lvl
		}
	}
	if c.isJoin(node.NodeType) {
		stats.JoinLevel++
	}
	return stats
}

// subtreeLevel is the highest level among emitted records in the subtree.
func (n *NodeStats) subtreeLevel() int {
	if !n.Skipped {
		return n.JoinLevel
	}
	level := 0
	for _, child := range n.Children {
		if l := child.subtreeLevel(); l > level {
			level = l
		}
	}
	return level
}

// Walk visits the annotated tree in pre-order.
func Walk(root *NodeStats, fn func(*NodeStats)) {
	if root == nil {
		return
	}
	fn(root)
	for _, child := range root.Children {
		Walk(child, fn)
	}
}
