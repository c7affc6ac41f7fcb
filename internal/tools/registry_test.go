package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
)

type echoRequest struct {
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

func echoDescriptor(t *testing.T) Descriptor {
	params, err := InferParameters(reflect.TypeOf(echoRequest{}))
	if err != nil {
		t.Fatalf("infer parameters: %v", err)
	}
	return Descriptor{Name: "echo", Description: "echoes a message", Parameters: params, Kind: KindLocal}
}

func echoHandler(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	var req echoRequest
	if err := json.Unmarshal(args, &req); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"echoed": req.Message})
}

func TestRegisterAndExecute(t *testing.T) {
	r := New()
	if err := r.Register(echoDescriptor(t), echoHandler); err != nil {
		t.Fatalf("register: %v", err)
	}

	out, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"message":"hi"}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var result map[string]string
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["echoed"] != "hi" {
		t.Fatalf("expected echoed hi, got %+v", result)
	}
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := New()
	d := echoDescriptor(t)
	if err := r.Register(d, echoHandler); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(d, echoHandler); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestExecuteRejectsMissingRequiredField(t *testing.T) {
	r := New()
	if err := r.Register(echoDescriptor(t), echoHandler); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Execute(context.Background(), "echo", json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected validation error for missing required field")
	}
}

func TestCatalogOrderedByKindThenName(t *testing.T) {
	r := New()
	mustRegister(t, r, Descriptor{Name: "zeta", Kind: KindMCP})
	mustRegister(t, r, Descriptor{Name: "alpha", Kind: KindLocal})
	mustRegister(t, r, Descriptor{Name: "beta", Kind: KindLocal})

	catalog := r.Catalog()
	names := make([]string, len(catalog))
	for i, d := range catalog {
		names[i] = d.Name
	}
	want := []string{"alpha", "beta", "zeta"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, names)
		}
	}
}

func TestSearchRanksByBM25Relevance(t *testing.T) {
	r := New()
	mustRegister(t, r, Descriptor{Name: "weather_lookup", Description: "look up current weather conditions for a city", Kind: KindLocal})
	mustRegister(t, r, Descriptor{Name: "stock_price", Description: "look up the current stock price for a ticker", Kind: KindLocal})

	results := r.Search("weather city", 1)
	if len(results) != 1 || results[0].Name != "weather_lookup" {
		t.Fatalf("expected weather_lookup to rank first, got %+v", results)
	}
}

func mustRegister(t *testing.T, r *Registry, d Descriptor) {
	t.Helper()
	if err := r.Register(d, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}); err != nil {
		t.Fatalf("register %s: %v", d.Name, err)
	}
}
