package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const priceSchema = `{
	"type": "object",
	"properties": {
		"bitcoin": {
			"type": "object",
			"properties": {"usd": {"type": "number", "exclusiveMinimum": 0}},
			"required": ["usd"]
		}
	},
	"required": ["bitcoin"]
}`

func TestSchema_ValidateJSON(t *testing.T) {
	schema, err := Compile("price.json", []byte(priceSchema))
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name      string
		doc       string
		wantValid bool
		wantInErr string
	}{
		{name: "valid price", doc: `{"bitcoin":{"usd":64000.5}}`, wantValid: true},
		{name: "extra fields allowed", doc: `{"bitcoin":{"usd":1,"eur":2},"ethereum":{}}`, wantValid: true},
		{name: "missing coin", doc: `{"ethereum":{"usd":1}}`, wantInErr: "bitcoin"},
		{name: "wrong type", doc: `{"bitcoin":{"usd":"64000"}}`, wantInErr: "/bitcoin/usd"},
		{name: "not positive", doc: `{"bitcoin":{"usd":0}}`, wantInErr: "/bitcoin/usd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.ValidateJSON([]byte(tt.doc))
			if tt.wantValid {
				if err != nil {
					t.Fatalf("ValidateJSON() error = %v", err)
				}
				return
			}
			var ve ValidationErrors
			if !errors.As(err, &ve) {
				t.Fatalf("ValidateJSON() = %v, want ValidationErrors", err)
			}
			if !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantInErr)
			}
		})
	}
}

func TestSchema_MalformedDocument(t *testing.T) {
	schema := MustCompile("price.json", []byte(priceSchema))
	err := schema.ValidateJSON([]byte(`{"bitcoin":`))
	if err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		t.Error("malformed JSON should not be reported as a schema violation")
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile("bad.json", []byte(`{"type": 12}`)); err == nil {
		t.Error("expected error for invalid schema")
	}
	if _, err := Compile("bad.json", []byte(`{`)); err == nil {
		t.Error("expected error for unparsable schema")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]byte(`[1,2,3]`), []byte(`{"type":"array","items":{"type":"integer"}}`)); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := Validate([]byte(`[1,"x"]`), []byte(`{"type":"array","items":{"type":"integer"}}`)); err == nil {
		t.Error("expected a violation")
	}
}

func TestValidationErrors_Error(t *testing.T) {
	ve := ValidationErrors{errors.New("a"), errors.New("b")}
	if ve.Error() != "a; b" {
		t.Errorf("Error() = %q", ve.Error())
	}
}
