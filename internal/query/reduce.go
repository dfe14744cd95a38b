package query

import (
	"fmt"
	"strings"

	"github.com/rzpsarthak13/unistore/internal/core"
)

// Accumulator folds a stream of row values into one result per the lowered
// reduce op. Initial values: 0 for count and sum; undefined for min, max and
// avg, where the first element initializes the fold.
type Accumulator struct {
	op    ReduceOp
	n     int
	sum   float64
	mean  float64
	cur   float64
	has   bool
	parts []string
}

// NewAccumulator builds an accumulator for the given op.
func NewAccumulator(op ReduceOp) *Accumulator {
	return &Accumulator{op: op}
}

// Add folds one row value into the accumulator. Non-numeric values feed
// count and concat; the numeric ops ignore values they cannot coerce.
func (a *Accumulator) Add(v interface{}) {
	switch a.op {
	case ReduceCount:
		a.n++
	case ReduceSum:
		if f, ok := toFloat(v); ok {
			a.sum += f
		}
	case ReduceAvg:
		f, ok := toFloat(v)
		if !ok {
			return
		}
		// Incremental mean, so a long stream cannot overflow a summed
		// accumulator: mean' = (mean*i + x) / (i+1).
		a.mean = (a.mean*float64(a.n) + f) / float64(a.n+1)
		a.n++
		a.has = true
	case ReduceMin:
		if f, ok := toFloat(v); ok {
			if !a.has || f < a.cur {
				a.cur = f
				a.has = true
			}
		}
	case ReduceMax:
		if f, ok := toFloat(v); ok {
			if !a.has || f > a.cur {
				a.cur = f
				a.has = true
			}
		}
	case ReduceConcat:
		a.parts = append(a.parts, fmt.Sprintf("%v", v))
	}
}

// Result returns the folded value. Min, max and avg over an empty stream
// yield nil.
func (a *Accumulator) Result() interface{} {
	switch a.op {
	case ReduceCount:
		return a.n
	case ReduceSum:
		return a.sum
	case ReduceAvg:
		if !a.has {
			return nil
		}
		return a.mean
	case ReduceMin, ReduceMax:
		if !a.has {
			return nil
		}
		return a.cur
	case ReduceConcat:
		return strings.Join(a.parts, ",")
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	case int:
		return float64(f), true
	case int32:
		return float64(f), true
	case int64:
		return float64(f), true
	case uint64:
		return float64(f), true
	}
	return 0, false
}

// ValidReduceOp reports whether op is one of the lowered accumulations.
func ValidReduceOp(op ReduceOp) bool {
	switch op {
	case ReduceCount, ReduceSum, ReduceAvg, ReduceMin, ReduceMax, ReduceConcat:
		return true
	}
	return false
}

// reduceFieldValue extracts the value a reduce op folds from a record.
func reduceFieldValue(rec core.Record, field string) interface{} {
	if field == "" {
		return nil
	}
	return rec[field]
}
