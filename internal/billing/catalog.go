package billing

// Catalog is the product catalog: plan codes and the capacity each plan buys.
// A zero cap means the plan does not include that dimension at all.
var Catalog = map[string]PlanSpec{
	"basic":      {PlanCode: "basic", MaxCameras: 4, MaxSites: 1},
	"pro":        {PlanCode: "pro", MaxCameras: 16, MaxSites: 4},
	"enterprise": {PlanCode: "enterprise", MaxCameras: 128, MaxSites: 32},
}

// PriceMap resolves a price ID to plan code mapping against the catalog,
// returning the price ID to PlanSpec map the webhook service consumes.
// Price IDs mapped to unknown plan codes are dropped.
func PriceMap(priceToCode map[string]string) map[string]PlanSpec {
	out := make(map[string]PlanSpec, len(priceToCode))
	for priceID, code := range priceToCode {
		spec, ok := Catalog[code]
		if !ok {
			continue
		}
		out[priceID] = spec
	}
	return out
}
