package gate

import "sync"

// OperationRequirement declares what a tenant's plan must provide before the
// operation is allowed. The zero value places no entitlement demand at all.
type OperationRequirement struct {
	OperationKey   string
	RequireLicense bool
	MinCameras     int
	MinSites       int
}

// Zero reports whether the requirement demands nothing from the plan.
func (r OperationRequirement) Zero() bool {
	return !r.RequireLicense && r.MinCameras == 0 && r.MinSites == 0
}

// Registry maps operation keys to requirements. Operations register at
// startup; an unregistered key resolves to the zero requirement.
type Registry struct {
	mu   sync.RWMutex
	byOp map[string]OperationRequirement
}

// NewRegistry returns an empty requirement registry.
func NewRegistry() *Registry {
	return &Registry{byOp: make(map[string]OperationRequirement)}
}

// Register records the requirement for its operation key, replacing any prior one.
func (r *Registry) Register(req OperationRequirement) {
	r.mu.Lock()
	r.byOp[req.OperationKey] = req
	r.mu.Unlock()
}

// Lookup returns the requirement for the operation key. Unknown keys get the
// zero requirement, so unregistered operations are never entitlement-blocked.
func (r *Registry) Lookup(operationKey string) OperationRequirement {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.byOp[operationKey]
	if !ok {
		return OperationRequirement{OperationKey: operationKey}
	}
	return req
}
