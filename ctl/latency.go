package ctl

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/eclesh/welford"
)

// CycleStats tracks the running mean/variance of the acquisition
// cycle's quality signals (the Go analogue of fbclock/daemon's Math
// helpers, applied here to reception quality instead of clock offset):
// how long each capture frame takes to process and how many packets
// each frame contributes to the ring buffer.
type CycleStats struct {
	frameLatency *welford.Stats
	acceptRate   *welford.Stats
}

// NewCycleStats returns a zeroed set of rolling statistics.
func NewCycleStats() *CycleStats {
	return &CycleStats{frameLatency: welford.New(), acceptRate: welford.New()}
}

// Observe folds one frame's measurements into the running statistics.
func (c *CycleStats) Observe(latencySeconds float64, acceptedPackets float64) {
	c.frameLatency.Add(latencySeconds)
	c.acceptRate.Add(acceptedPackets)
}

// QualityExpr compiles a govaluate expression over CycleStats'
// summary variables (frame_latency_mean, frame_latency_stddev,
// accept_rate_mean, accept_rate_stddev, overflow_rate), returning a
// predicate that reports whether acquisition quality is currently
// considered degraded. Mirrors fbclock/daemon's Math.prepareExpression
// validation: unknown variables are rejected up front rather than
// failing silently at evaluation time.
type QualityExpr struct {
	expr *govaluate.EvaluableExpression
}

var qualityVariables = map[string]bool{
	"frame_latency_mean":   true,
	"frame_latency_stddev": true,
	"accept_rate_mean":     true,
	"accept_rate_stddev":   true,
	"overflow_rate":        true,
}

// CompileQualityExpr parses expr and validates it only references
// qualityVariables.
func CompileQualityExpr(expr string) (*QualityExpr, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("ctl: quality expression: %w", err)
	}
	for _, v := range compiled.Vars() {
		if !qualityVariables[v] {
			return nil, fmt.Errorf("ctl: quality expression references unsupported variable %q", v)
		}
	}
	return &QualityExpr{expr: compiled}, nil
}

// Eval reports whether the expression judges the given statistics
// degraded (a non-zero/true result).
func (q *QualityExpr) Eval(c *CycleStats, overflowRate float64) (bool, error) {
	params := map[string]interface{}{
		"frame_latency_mean":   c.frameLatency.Mean(),
		"frame_latency_stddev": c.frameLatency.Stddev(),
		"accept_rate_mean":     c.acceptRate.Mean(),
		"accept_rate_stddev":   c.acceptRate.Stddev(),
		"overflow_rate":        overflowRate,
	}
	result, err := q.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("ctl: evaluating quality expression: %w", err)
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("ctl: quality expression returned non-boolean %T", result)
	}
}

// DefaultQualityExpr flags acquisition as degraded once the mean frame
// processing latency exceeds 0.5 seconds, or overflow_rate exceeds
// 0.01.
const DefaultQualityExpr = "frame_latency_mean > 0.5 || overflow_rate > 0.01"
