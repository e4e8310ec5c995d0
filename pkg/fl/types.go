package fl

import (
	"math/bits"
	"slices"
	"time"
)

const (
	// MaxTensorElements bounds a single tensor.
	MaxTensorElements = 1 << 25
	// MaxModelElements bounds the sum of all tensors in a model.
	MaxModelElements = 1 << 26
)

type Strategy string

const (
	// FedAvg is plain sample-weighted averaging.
	FedAvg Strategy = "fedavg"
	// FedProx aggregates like FedAvg but advertises a proximal term to participants.
	FedProx Strategy = "fedprox"

	DefaultStrategy = FedAvg
)

func Strategies() []Strategy {
	return []Strategy{FedAvg, FedProx}
}

func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(s)
	if err := st.Validate(); err != nil {
		return "", err
	}

	return st, nil
}

func (s Strategy) Validate() error {
	if !slices.Contains(Strategies(), s) {
		return ErrInvalidStrategy
	}

	return nil
}

type Tensor struct {
	Shape  []int     `json:"shape"  cbor:"1,keyasint"`
	Values []float64 `json:"values" cbor:"2,keyasint"`
}

// ShapeSize returns the number of elements a shape describes. It fails on
// negative dimensions and on products above MaxTensorElements.
func ShapeSize(shape []int) (int, error) {
	n := uint64(1)
	for _, d := range shape {
		if d < 0 {
			return 0, ErrInvalidShape
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > MaxTensorElements {
			return 0, ErrShapeTooLarge
		}
		n = lo
	}

	return int(n), nil
}

// ModelSize sums ShapeSize over every shape, bounded by MaxModelElements.
func ModelSize(shapes [][]int) (int, error) {
	total := 0
	for _, s := range shapes {
		n, err := ShapeSize(s)
		if err != nil {
			return 0, err
		}
		total += n
		if total > MaxModelElements {
			return 0, ErrShapeTooLarge
		}
	}

	return total, nil
}

// Size is the number of elements the shape describes, or -1 when the shape
// is negative or too large.
func (t Tensor) Size() int {
	n, err := ShapeSize(t.Shape)
	if err != nil {
		return -1
	}

	return n
}

func (t Tensor) valid() bool {
	n := t.Size()

	return n >= 0 && n == len(t.Values)
}

// Parameters is the ordered list of tensors making up a model.
type Parameters []Tensor

func (p Parameters) Shapes() [][]int {
	shapes := make([][]int, len(p))
	for i, t := range p {
		shapes[i] = slices.Clone(t.Shape)
	}

	return shapes
}

// Compatible reports whether both parameter sets have identical tensor shapes.
func (p Parameters) Compatible(o Parameters) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if !slices.Equal(p[i].Shape, o[i].Shape) || len(p[i].Values) != len(o[i].Values) {
			return false
		}
	}

	return true
}

func (p Parameters) Valid() bool {
	total := 0
	for _, t := range p {
		if !t.valid() {
			return false
		}
		total += len(t.Values)
	}

	return total <= MaxModelElements
}

func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	c := make(Parameters, len(p))
	for i, t := range p {
		c[i] = Tensor{Shape: slices.Clone(t.Shape), Values: slices.Clone(t.Values)}
	}

	return c
}

// ZeroParameters builds zero-valued tensors for the given shapes. It returns
// nil when ModelSize rejects them.
func ZeroParameters(shapes [][]int) Parameters {
	if len(shapes) == 0 {
		return nil
	}
	if _, err := ModelSize(shapes); err != nil {
		return nil
	}
	p := make(Parameters, len(shapes))
	for i, s := range shapes {
		n, _ := ShapeSize(s)
		p[i] = Tensor{Shape: slices.Clone(s), Values: make([]float64, n)}
	}

	return p
}

type Metrics struct {
	Loss     float64 `json:"loss"     cbor:"1,keyasint"`
	Accuracy float64 `json:"accuracy" cbor:"2,keyasint"`
}

type Contribution struct {
	SessionID     string     `json:"session_id"     cbor:"1,keyasint"`
	Round         uint64     `json:"round"          cbor:"2,keyasint"`
	ParticipantID string     `json:"participant_id" cbor:"3,keyasint"`
	Params        Parameters `json:"params"         cbor:"4,keyasint"`
	NumSamples    uint64     `json:"num_samples"    cbor:"5,keyasint"`
	Metrics       Metrics    `json:"metrics"        cbor:"6,keyasint"`
	ReceivedAt    time.Time  `json:"received_at"    cbor:"-"`
}

type ParticipantMetrics struct {
	ParticipantID string  `json:"participant_id"`
	NumSamples    uint64  `json:"num_samples"`
	Accuracy      float64 `json:"accuracy"`
	Loss          float64 `json:"loss"`
}

type RoundResult struct {
	SessionID       string               `json:"session_id"`
	ProjectID       string               `json:"project_id"`
	Round           uint64               `json:"round"`
	Params          Parameters           `json:"params,omitempty"`
	NumParticipants int                  `json:"num_participants"`
	NumSamples      uint64               `json:"num_samples"`
	Accuracy        float64              `json:"accuracy"`
	Loss            float64              `json:"loss"`
	Participants    []ParticipantMetrics `json:"participants,omitempty"`
	Timestamp       time.Time            `json:"timestamp"`
}

type Hyperparams struct {
	Strategy    Strategy `json:"strategy"              cbor:"1,keyasint"`
	LocalEpochs uint64   `json:"local_epochs"          cbor:"2,keyasint"`
	BatchSize   uint64   `json:"batch_size"            cbor:"3,keyasint"`
	ProximalMu  float64  `json:"proximal_mu,omitempty" cbor:"4,keyasint,omitempty"`
}

// RoundInstructions is what every participant receives at the start of a round.
type RoundInstructions struct {
	SessionID   string      `json:"session_id"   cbor:"1,keyasint"`
	ProjectID   string      `json:"project_id"   cbor:"2,keyasint"`
	Round       uint64      `json:"round"        cbor:"3,keyasint"`
	TotalRounds uint64      `json:"total_rounds" cbor:"4,keyasint"`
	Params      Parameters  `json:"params"       cbor:"5,keyasint"`
	Hyperparams Hyperparams `json:"hyperparams"  cbor:"6,keyasint"`
	Deadline    time.Time   `json:"deadline"     cbor:"7,keyasint"`
}

// HyperparamsFor returns the hyperparameters advertised for a strategy.
func HyperparamsFor(s Strategy, p Project, proximalMu float64) Hyperparams {
	hp := Hyperparams{
		Strategy:    s,
		LocalEpochs: p.LocalEpochs,
		BatchSize:   p.BatchSize,
	}
	if s == FedProx {
		hp.ProximalMu = proximalMu
	}

	return hp
}
