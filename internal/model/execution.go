package model

// Record is one flattened plan node: its kind, join level and row counts.
type Record struct {
	NodeID    string
	NodeType  string
	JoinLevel int
	Estimated float64
	Actual    float64
}

// Query is a named SQL statement loaded from disk.
type Query struct {
	ID   string
	Path string
	SQL  string
}

// QueryExecution is one executed query together with its plan and derived cardinalities.
type QueryExecution struct {
	QueryID string
	SQL     string
	Plan    *Explain
	// Raw is the EXPLAIN document as returned by the server.
	Raw []byte
	// Records is derived from Plan once and must be treated as read-only.
	Records []Record
	// MaxJoinLevel is the join level computed for the root node.
	MaxJoinLevel int
}

// TotalCost returns the optimizer's estimated cost of the root node.
func (q *QueryExecution) TotalCost() float64 {
	if q == nil || q.Plan == nil {
		return 0
	}
	return q.Plan.TotalCost
}

// ExecutionTime returns the reported execution time in milliseconds.
func (q *QueryExecution) ExecutionTime() float64 {
	if q == nil || q.Plan == nil {
		return 0
	}
	return q.Plan.ExecutionTime
}

// PlanningTime returns the reported planning time in milliseconds.
func (q *QueryExecution) PlanningTime() float64 {
	if q == nil || q.Plan == nil {
		return 0
	}
	return q.Plan.PlanningTime
}

// TopRecord returns the first record, in extraction order, that sits at the
// deepest join level. For a plan with joins this is the top-most join node.
func (q *QueryExecution) TopRecord() (Record, bool) {
	if q == nil || len(q.Records) == 0 {
		return Record{}, false
	}
	best := 0
	for i, rec := range q.Records {
		if rec.JoinLevel > q.Records[best].JoinLevel {
			best = i
		}
	}
	return q.Records[best], true
}
