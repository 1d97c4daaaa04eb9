package server

import "caresight/backend/internal/gate"

// Operation keys for the gated API routes.
const (
	OpCamerasList     = "cameras.list"
	OpCamerasLiveView = "cameras.live_view"
	OpSitesList       = "sites.list"
)

// RegisterRequirements declares what each operation demands from the tenant's
// plan. Listing needs a live license; live view additionally needs camera
// capacity on the plan.
func RegisterRequirements(reg *gate.Registry) {
	reg.Register(gate.OperationRequirement{
		OperationKey:   OpCamerasList,
		RequireLicense: true,
	})
	reg.Register(gate.OperationRequirement{
		OperationKey:   OpCamerasLiveView,
		RequireLicense: true,
		MinCameras:     1,
	})
	reg.Register(gate.OperationRequirement{
		OperationKey:   OpSitesList,
		RequireLicense: true,
		MinSites:       1,
	})
}
