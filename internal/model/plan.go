package model

// Explain represents the root of a PostgreSQL execution plan.
type Explain struct {
	Plan          *PlanNode
	PlanningTime  float64
	ExecutionTime float64
	// TotalCost is the optimizer's cost for the root node.
	TotalCost float64
}

// PlanNode captures one node in the execution plan tree.
type PlanNode struct {
	ID              string
	NodeType        string
	RelationName    string
	Alias           string
	JoinType        string
	StartupCost     float64
	TotalCost       float64
	PlanRows        float64
	ActualRows      float64
	ActualLoops     float64
	ActualTotalTime float64
	Children        []*PlanNode
}

// IsLeaf reports whether the node has no child plans.
func (n *PlanNode) IsLeaf() bool {
	return len(n.Children) == 0
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *PlanNode) Count() int {
	if n == nil {
		return 0
	}
	total := 1
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}
