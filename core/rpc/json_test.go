package rpc

import (
	"encoding/json"
	"testing"
)

func rawParams(t *testing.T, items ...interface{}) []json.RawMessage {
	t.Helper()
	out := make([]json.RawMessage, len(items))
	for i, v := range items {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal param %d: %v", i, err)
		}
		out[i] = b
	}
	return out
}

func TestIntParam(t *testing.T) {
	params := rawParams(t, 7, "not-an-int")
	v, err := intParam(params, 0, "height")
	if err != nil || v != 7 {
		t.Fatalf("intParam(0) = %d, %v, want 7, nil", v, err)
	}
	if _, err := intParam(params, 1, "height"); err == nil {
		t.Fatal("expected error for non-integer param")
	}
	if _, err := intParam(params, 5, "height"); err == nil {
		t.Fatal("expected error for missing param")
	}
}

func TestBoolParamOrFallback(t *testing.T) {
	params := rawParams(t, true)
	v, err := boolParamOr(params, 0, false)
	if err != nil || v != true {
		t.Fatalf("boolParamOr(0) = %v, %v, want true, nil", v, err)
	}
	v, err = boolParamOr(params, 5, false)
	if err != nil || v != false {
		t.Fatalf("boolParamOr(missing) = %v, %v, want false, nil", v, err)
	}
}

func TestSuccessLineEmitsExplicitNullResult(t *testing.T) {
	line, err := successLine(json.RawMessage(`1`), nil)
	if err != nil {
		t.Fatalf("successLine: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(line, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	raw, ok := decoded["result"]
	if !ok {
		t.Fatal("expected an explicit \"result\" key even for a nil result")
	}
	if raw != nil {
		t.Fatalf("result = %v, want JSON null", raw)
	}
}
