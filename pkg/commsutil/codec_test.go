package commsutil

import "testing"

func TestCodecRoundTrip(t *testing.T) {
	type payload struct {
		Function string `json:"function"`
		Count    int    `json:"count"`
	}

	data, err := EncodePayload(&payload{Function: "add", Count: 3})
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}

	var decoded payload
	if err := DecodePayload(data, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.Function != "add" || decoded.Count != 3 {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestDecodePayload_Invalid(t *testing.T) {
	var out map[string]interface{}
	if err := DecodePayload([]byte(`{bad`), &out); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
