package tenant

// Tenant is the descriptor the backend returns once onboarding has resolved
// a customer organization. The gateway never provisions tenants itself; it
// only carries the descriptor through the session hand-off.
type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Status string `json:"status,omitempty"`
}

// Status constants
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusInactive = "inactive"
)

// Resolved reports whether the descriptor identifies a provisioned tenant.
func (t *Tenant) Resolved() bool {
	return t != nil && t.ID != ""
}
