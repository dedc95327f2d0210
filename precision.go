// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package afhe

import (
	"math"

	"github.com/montanaflynn/stats"
)

// PrecisionStats summarizes the absolute error of decoded ckks values.
type PrecisionStats struct {
	Mean   float64
	Median float64
	Max    float64
	StdDev float64
	// Bits is -log2 of the largest error, capped at 64 for exact results.
	Bits float64
}

// MeasurePrecision compares decoded values against the expected ones. Only the
// first len(want) slots of got are considered.
func MeasurePrecision(want, got []float64) (PrecisionStats, error) {
	if len(want) == 0 || len(got) < len(want) {
		return PrecisionStats{}, newError(KindInvalidArgument, "need %d decoded values, have %d", len(want), len(got))
	}
	errs := make(stats.Float64Data, len(want))
	for i := range want {
		errs[i] = math.Abs(want[i] - got[i])
	}

	var ps PrecisionStats
	var err error
	if ps.Mean, err = errs.Mean(); err != nil {
		return PrecisionStats{}, wrapError(KindInvalidArgument, err, "mean")
	}
	if ps.Median, err = errs.Median(); err != nil {
		return PrecisionStats{}, wrapError(KindInvalidArgument, err, "median")
	}
	if ps.Max, err = errs.Max(); err != nil {
		return PrecisionStats{}, wrapError(KindInvalidArgument, err, "max")
	}
	if ps.StdDev, err = errs.StandardDeviation(); err != nil {
		return PrecisionStats{}, wrapError(KindInvalidArgument, err, "standard deviation")
	}
	ps.Bits = 64
	if ps.Max > 0 {
		ps.Bits = math.Min(64, -math.Log2(ps.Max))
	}
	return ps, nil
}
