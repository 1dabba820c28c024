package server

import (
	"bytes"
	"testing"
)

func TestCodec_RoundTrip(t *testing.T) {
	var c Codec
	if c.Name() != "cbor" {
		t.Errorf("Name() = %q, want cbor", c.Name())
	}

	in := &CheckSyntaxResponse{
		Valid: false,
		Diagnostics: []*Diagnostic{
			{Line: 2, Column: 5, Message: "expected =, got INT"},
		},
	}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var out CheckSyntaxResponse
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Valid || len(out.Diagnostics) != 1 || *out.Diagnostics[0] != *in.Diagnostics[0] {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

// Canonical encoding: the same message always produces the same bytes and
// integer keys keep messages small.
func TestCodec_Deterministic(t *testing.T) {
	var c Codec
	msg := &EvaluateResponse{Success: true, Result: "42", Type: "INTEGER"}

	a, err := c.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Errorf("encodings differ: %x vs %x", a, b)
	}
	if bytes.Contains(a, []byte("Result")) {
		t.Errorf("encoding uses field names: %x", a)
	}
}

func TestCodec_UnmarshalError(t *testing.T) {
	var out EvaluateResponse
	if err := (Codec{}).Unmarshal([]byte{0xff, 0x00}, &out); err == nil {
		t.Error("Unmarshal of garbage succeeded")
	}
}
