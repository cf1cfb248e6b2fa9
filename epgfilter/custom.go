package epgfilter

import (
	"github.com/Knetic/govaluate"

	"github.com/nxtvepg/epgrecv/nextview/block"
)

// CompileCustomExpression turns a boolean expression over PI fields
// (e.g. `parental_rating == 0 && editorial_rating >= 5`) into a
// predicate usable with Filter.SetCustom, implementing the Custom
// axis's "function pointer + opaque data" as a compiled expression
// rather than a literal C callback (spec.md §4.9).
func CompileCustomExpression(expr string) (func(*block.PI) bool, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, err
	}
	return func(pi *block.PI) bool {
		params := map[string]interface{}{
			"netwop_no":        float64(pi.NetwopIndex),
			"block_no":         float64(pi.BlockNo),
			"start_time":       float64(pi.StartTime),
			"stop_time":        float64(pi.StopTime),
			"parental_rating":  float64(pi.ParentalRating),
			"editorial_rating": float64(pi.EditorialRating),
			"feature_flags":    float64(pi.FeatureFlags),
			"title":            pi.Title,
		}
		result, err := compiled.Evaluate(params)
		if err != nil {
			return false
		}
		ok, _ := result.(bool)
		return ok
	}, nil
}
