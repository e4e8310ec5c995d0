package fl

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano

	var err error
	encMode, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 27,
		MaxMapPairs:      1 << 20,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// MarshalCBOR encodes v deterministically.
func MarshalCBOR(v any) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}

	return data, nil
}

func UnmarshalCBOR(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cbor decode: %w", err)
	}

	return nil
}

func EncodeParameters(p Parameters) ([]byte, error) {
	return MarshalCBOR(p)
}

func DecodeParameters(data []byte) (Parameters, error) {
	var p Parameters
	if err := UnmarshalCBOR(data, &p); err != nil {
		return nil, err
	}

	return p, nil
}

func DecodeContribution(data []byte) (Contribution, error) {
	var c Contribution
	if err := UnmarshalCBOR(data, &c); err != nil {
		return Contribution{}, err
	}

	return c, nil
}
