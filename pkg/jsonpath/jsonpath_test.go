package jsonpath

import (
	"testing"
)

const priceDoc = `{
	"bitcoin": {"usd": 64000.5, "usd_24h_change": -1.2},
	"ethereum": {"usd": 3100},
	"quotes": [
		{"symbol": "BTC", "venue": "spot"},
		{"symbol": "ETH", "venue": "perp"}
	],
	"pairs.v2": {"btc": "ok"},
	"stale": false,
	"note": null
}`

func TestToGJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$", "@this"},
		{"$.bitcoin.usd", "bitcoin.usd"},
		{"bitcoin.usd", "bitcoin.usd"},
		{"$.quotes[1].symbol", "quotes.1.symbol"},
		{"$[0]", "0"},
		{"$['pairs.v2'].btc", `pairs\.v2.btc`},
		{`$["bitcoin"]["usd"]`, "bitcoin.usd"},
		{"$.quotes[*].symbol", "quotes.#.symbol"},
		{"  $.stale ", "stale"},
	}

	for _, tt := range tests {
		if got := ToGJSON(tt.in); got != tt.want {
			t.Errorf("ToGJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "nested number", path: "$.bitcoin.usd", want: "64000.5"},
		{name: "gjson syntax", path: "bitcoin.usd", want: "64000.5"},
		{name: "integer", path: "$.ethereum.usd", want: "3100"},
		{name: "array element", path: "$.quotes[1].symbol", want: "ETH"},
		{name: "dotted key", path: "$['pairs.v2'].btc", want: "ok"},
		{name: "boolean", path: "$.stale", want: "false"},
		{name: "null", path: "$.note", want: "null"},
		{name: "wildcard", path: "$.quotes[*].venue", want: `["spot","perp"]`},
		{name: "missing key", path: "$.dogecoin.usd", wantErr: true},
		{name: "index out of range", path: "$.quotes[5]", wantErr: true},
		{name: "empty path", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract([]byte(priceDoc), tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Extract() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Extract() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_InvalidDocument(t *testing.T) {
	if _, err := Extract(nil, "$.a"); err == nil {
		t.Error("expected error for empty document")
	}
	if _, err := Extract([]byte("<html>"), "$.a"); err == nil {
		t.Error("expected error for non-JSON document")
	}
}

func TestLookup(t *testing.T) {
	r := Lookup([]byte(priceDoc), "$.bitcoin.usd")
	if !r.Exists() {
		t.Fatal("expected bitcoin.usd to exist")
	}
	if r.Float() != 64000.5 {
		t.Errorf("Float() = %v, want 64000.5", r.Float())
	}
}
