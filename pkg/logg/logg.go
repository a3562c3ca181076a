package logg

// Structured log field keys shared by every layer.
const (
	Layer     = "layer"
	Operation = "operation"
	RunID     = "run_id"
	Dashboard = "dashboard"
	Step      = "step"
	Selector  = "selector"
	Locator   = "locator"
	URL       = "url"
	Attempt   = "attempt"
	Pass      = "pass"
	Status    = "status"
	Policy    = "policy"
)
