package fl

import (
	"fmt"
	"math/bits"
	"sort"
)

// Aggregated is the outcome of one round of FedAvg aggregation.
type Aggregated struct {
	Params          Parameters
	NumParticipants int
	NumSamples      uint64
	Metrics         Metrics
	Participants    []ParticipantMetrics
}

// Exclusion records a contribution that was left out of aggregation.
type Exclusion struct {
	ParticipantID string
	Err           error
}

func (e Exclusion) Error() string {
	return fmt.Sprintf("participant %s excluded: %s", e.ParticipantID, e.Err)
}

func (e Exclusion) Unwrap() error {
	return e.Err
}

// Aggregate computes the sample-weighted mean of every tensor position and of
// the reported metrics. Contributions whose tensor shapes differ from reference
// are excluded; with an empty reference the earliest received contribution
// defines the shape. The aggregate fails with ErrQuorumNotMet when fewer than
// quorum contributions survive exclusion or when no samples remain.
func Aggregate(contribs []Contribution, reference Parameters, quorum int) (Aggregated, []Exclusion, error) {
	if len(contribs) == 0 {
		return Aggregated{}, nil, fmt.Errorf("%w: %w", ErrQuorumNotMet, ErrNoUpdates)
	}

	ordered := make([]Contribution, len(contribs))
	copy(ordered, contribs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
	})

	var (
		accepted []Contribution
		excluded []Exclusion
		total    uint64
	)
	for _, c := range ordered {
		switch {
		case c.NumSamples == 0:
			excluded = append(excluded, Exclusion{ParticipantID: c.ParticipantID, Err: ErrInvalidSampleCount})

			continue
		case !c.Params.Valid():
			excluded = append(excluded, Exclusion{ParticipantID: c.ParticipantID, Err: ErrIncompatibleParameters})

			continue
		case len(reference) == 0 && len(accepted) == 0:
			reference = c.Params
		case !c.Params.Compatible(reference):
			excluded = append(excluded, Exclusion{ParticipantID: c.ParticipantID, Err: ErrIncompatibleParameters})

			continue
		}

		sum, carry := bits.Add64(total, c.NumSamples, 0)
		if carry != 0 {
			return Aggregated{}, excluded, ErrOverflow
		}
		total = sum
		accepted = append(accepted, c)
	}

	if len(accepted) < quorum || total == 0 {
		return Aggregated{}, excluded, fmt.Errorf("%w: %d of %d contributions usable", ErrQuorumNotMet, len(accepted), quorum)
	}

	weightNorm := float64(total)
	out := ZeroParameters(reference.Shapes())
	agg := Aggregated{
		NumParticipants: len(accepted),
		NumSamples:      total,
		Participants:    make([]ParticipantMetrics, 0, len(accepted)),
	}

	for _, c := range accepted {
		weight := float64(c.NumSamples) / weightNorm
		for k, t := range c.Params {
			dst := out[k].Values
			for i, v := range t.Values {
				dst[i] += weight * v
			}
		}
		agg.Metrics.Accuracy += weight * c.Metrics.Accuracy
		agg.Metrics.Loss += weight * c.Metrics.Loss
		agg.Participants = append(agg.Participants, ParticipantMetrics{
			ParticipantID: c.ParticipantID,
			NumSamples:    c.NumSamples,
			Accuracy:      c.Metrics.Accuracy,
			Loss:          c.Metrics.Loss,
		})
	}

	agg.Params = out

	return agg, excluded, nil
}
