package server

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CodecName is the name the CBOR codec registers under. Connect clients
// send "application/cbor" (or "application/grpc+cbor" over gRPC).
const CodecName = "cbor"

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("server: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// Codec marshals the service messages as canonical CBOR. It satisfies both
// connect.Codec and grpc's encoding.Codec, so one value serves the handlers,
// the Connect client and the gRPC client.
type Codec struct{}

// Name implements connect.Codec and encoding.Codec.
func (Codec) Name() string { return CodecName }

// Marshal implements connect.Codec and encoding.Codec.
func (Codec) Marshal(v any) ([]byte, error) {
	data, err := cborEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("server: marshal %T: %w", v, err)
	}
	return data, nil
}

// Unmarshal implements connect.Codec and encoding.Codec.
func (Codec) Unmarshal(data []byte, v any) error {
	if err := cborDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("server: unmarshal %T: %w", v, err)
	}
	return nil
}
