// README: Cost distribution; exact allocation of a fare across legs/tasks.
package pricing

import (
	"fmt"
	"math"

	"glide/internal/types"
)

// Distribute splits total across n legs. Each share is the rounded per-leg
// amount; the rounding remainder is absorbed by the last element so the
// shares always sum to total exactly.
func Distribute(total types.Money, n int) ([]types.Money, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: need at least one leg", ErrBadRequest)
	}
	if total.Amount < 0 {
		return nil, fmt.Errorf("%w: total must be non-negative", ErrBadRequest)
	}
	per := int64(math.Round(float64(total.Amount) / float64(n)))
	// never let rounding push the last share negative
	if per*int64(n-1) > total.Amount {
		per = total.Amount / int64(n)
	}
	out := make([]types.Money, n)
	for i := 0; i < n-1; i++ {
		out[i] = types.Cents(per, total.Currency)
	}
	out[n-1] = types.Cents(total.Amount-per*int64(n-1), total.Currency)
	return out, nil
}

// Aggregate is the audit-direction inverse of Distribute.
func Aggregate(costs []types.Money) types.Money {
	var total types.Money
	for _, c := range costs {
		total = total.Add(c)
	}
	return total
}

// Validate reports reconciliation defects between per-task costs and the
// expected total. toleranceCents <= 0 means the default one-cent tolerance.
func Validate(tasks []TaskCost, expected types.Money, toleranceCents int64) []Defect {
	if toleranceCents <= 0 {
		toleranceCents = 1
	}
	var defects []Defect
	var sum int64
	for _, t := range tasks {
		if t.Cost == nil {
			defects = append(defects, Defect{TaskID: t.TaskID, Kind: DefectMissingCost, Detail: "task has no cost allocation"})
			continue
		}
		if t.Cost.Amount < 0 {
			defects = append(defects, Defect{TaskID: t.TaskID, Kind: DefectNegativeCost, Detail: fmt.Sprintf("cost %s is negative", t.Cost)})
			continue
		}
		sum += t.Cost.Amount
	}
	if diff := sum - expected.Amount; diff > toleranceCents || diff < -toleranceCents {
		defects = append(defects, Defect{
			Kind:   DefectTotalMismatch,
			Detail: fmt.Sprintf("allocated %d cents, expected %d (tolerance %d)", sum, expected.Amount, toleranceCents),
		})
	}
	return defects
}
