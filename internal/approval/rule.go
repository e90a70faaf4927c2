package approval

// Rule is one entry of a worker's tool-rule table. Read-only at runtime.
type Rule struct {
	Allowed          bool   `yaml:"allowed"`
	ApprovalRequired bool   `yaml:"approval_required"`
	Description      string `yaml:"description,omitempty"`
}

// Decision is the outcome of one approval request.
type Decision struct {
	Approved          bool
	ApproveForSession bool
	Note              string
}
