package speedwire

import (
	"fmt"
	"math"
)

// phaseAdjustment is the outcome of the signed-current derivation for
// one phase: either the adjusted value was stored, or the phase was
// skipped with a reason.
type phaseAdjustment struct {
	Phase   int
	Applied bool
	Reason  string
}

// deriveSignedCurrents gives the per-phase current magnitudes their
// conventional sign: negative when the phase is feeding into the grid,
// positive when drawing from it. The sign is inferred from net real
// power (consume - supply) on the same phase. Each phase is evaluated
// independently; a failure on one never affects the others.
func deriveSignedCurrents(rec Record) []phaseAdjustment {
	results := make([]phaseAdjustment, 0, 3)

	for phase := 1; phase <= 3; phase++ {
		results = append(results, adjustPhase(rec, phase))
	}
	return results
}

func adjustPhase(rec Record, phase int) phaseAdjustment {
	currentKey := fmt.Sprintf("i%d", phase)
	raw, ok := rec[currentKey]
	if !ok {
		return phaseAdjustment{Phase: phase, Reason: "no current reading in datagram"}
	}
	current, ok := raw.(float64)
	if !ok {
		return phaseAdjustment{Phase: phase, Reason: fmt.Sprintf("current has unexpected type %T", raw)}
	}

	consume, err := floatOrZero(rec, fmt.Sprintf("p%dconsume", phase))
	if err != nil {
		return phaseAdjustment{Phase: phase, Reason: err.Error()}
	}
	supply, err := floatOrZero(rec, fmt.Sprintf("p%dsupply", phase))
	if err != nil {
		return phaseAdjustment{Phase: phase, Reason: err.Error()}
	}

	adjusted := math.Abs(current)
	if consume-supply < 0 {
		adjusted = -adjusted
	}
	rec[currentKey] = adjusted
	return phaseAdjustment{Phase: phase, Applied: true}
}

// floatOrZero reads a power value from the record, treating an absent
// channel as zero.
func floatOrZero(rec Record, key string) (float64, error) {
	raw, ok := rec[key]
	if !ok {
		return 0, nil
	}
	v, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("%s has unexpected type %T", key, raw)
	}
	return v, nil
}
