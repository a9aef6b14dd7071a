package schedule

import (
	"errors"
	"fmt"
)

// ErrInvalidSteps is returned when fewer than one sampling step is requested.
var ErrInvalidSteps = errors.New("invalid step count")

// Timesteps returns the ascending discrete timestep sequence for a sampling run.
//
// With discardPenultimate the schedule is built for steps+1 entries, which
// shifts every stride so the next-to-last noise level is dropped. Values are
// i*stride + 1 for i in [0, n), clipped into [0, NumTrainTimesteps-1]. When n
// reaches NumTrainTimesteps the stride degenerates to 0 and every entry
// collapses to 1; that is accepted rather than guarded.
func Timesteps(steps int, discardPenultimate bool) ([]int, error) {
	if steps < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSteps, steps)
	}
	n := steps
	if discardPenultimate {
		n++
	}
	stride := NumTrainTimesteps / n
	timesteps := make([]int, n)
	for i := range timesteps {
		timesteps[i] = clip(i*stride+1, 0, NumTrainTimesteps-1)
	}
	return timesteps, nil
}

func clip(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
