package model

// ConfigurationRun maps query identifiers to elapsed seconds for one full
// execution of a query set under a single optimizer configuration.
// Iteration follows insertion order.
type ConfigurationRun struct {
	Config  string
	ids     []string
	elapsed map[string]float64
}

// NewConfigurationRun creates an empty run for the named configuration.
func NewConfigurationRun(config string) *ConfigurationRun {
	return &ConfigurationRun{Config: config, elapsed: map[string]float64{}}
}

// Set records the elapsed time for a query. Setting an existing id keeps its position.
func (r *ConfigurationRun) Set(id string, seconds float64) {
	if r.elapsed == nil {
		r.elapsed = map[string]float64{}
	}
	if _, ok := r.elapsed[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.elapsed[id] = seconds
}

// Get returns the elapsed time for a query, if the query ran successfully.
func (r *ConfigurationRun) Get(id string) (float64, bool) {
	if r == nil {
		return 0, false
	}
	v, ok := r.elapsed[id]
	return v, ok
}

// IDs returns the query identifiers in insertion order.
func (r *ConfigurationRun) IDs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.ids...)
}

// Len returns the number of recorded queries.
func (r *ConfigurationRun) Len() int {
	if r == nil {
		return 0
	}
	return len(r.ids)
}
