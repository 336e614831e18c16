package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sendSpecs = []FieldSpec{
	{Name: "to", Type: FieldString, Required: true},
	{Name: "subject", Type: FieldString, Required: true},
	{Name: "body", Type: FieldString, Required: true},
	{Name: "format", Type: FieldString, Default: "text"},
	{Name: "max_results", Type: FieldInt, Default: 10},
}

func TestValidatePayload_ReportsAllMissingFields(t *testing.T) {
	_, err := ValidatePayload(sendSpecs, Payload{"body": "hi", "subject": "  "})
	require.Error(t, err)

	var pe *ProxyError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindPayloadValidation, pe.Kind)
	assert.Equal(t, "missing required field(s): to, subject", pe.Message)
}

func TestValidatePayload_AppliesDefaults(t *testing.T) {
	in := Payload{"to": "a@example.com", "subject": "s", "body": "b", "extra": true}

	out, err := ValidatePayload(sendSpecs, in)
	require.NoError(t, err)

	assert.Equal(t, "text", out.String("format"))
	assert.Equal(t, 10, out.Int("max_results"))
	assert.Equal(t, true, out["extra"], "undeclared keys pass through")
	assert.NotContains(t, in, "format", "input must not be modified")
}

func TestValidatePayload_Coercion(t *testing.T) {
	specs := []FieldSpec{
		{Name: "n", Type: FieldInt},
		{Name: "flag", Type: FieldBool},
		{Name: "labels", Type: FieldStringList},
		{Name: "events", Type: FieldObjectList},
		{Name: "meta", Type: FieldObject},
	}

	tests := []struct {
		name    string
		in      Payload
		check   func(t *testing.T, p Payload)
		wantErr string
	}{
		{
			name: "json number becomes int",
			in:   Payload{"n": float64(25)},
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, 25, p.Int("n"))
			},
		},
		{
			name: "numeric string becomes int",
			in:   Payload{"n": " 7 "},
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, 7, p.Int("n"))
			},
		},
		{
			name:    "fractional number is rejected",
			in:      Payload{"n": 2.5},
			wantErr: "invalid field(s): n must be an integer",
		},
		{
			name: "bool from string",
			in:   Payload{"flag": "true"},
			check: func(t *testing.T, p Payload) {
				assert.True(t, p.Bool("flag"))
			},
		},
		{
			name: "comma separated string list",
			in:   Payload{"labels": "bug, ui ,,"},
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, []string{"bug", "ui"}, p.StringSlice("labels"))
			},
		},
		{
			name: "json array string list",
			in:   Payload{"labels": []any{"a", "b"}},
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, []string{"a", "b"}, p.StringSlice("labels"))
			},
		},
		{
			name:    "mixed array is rejected",
			in:      Payload{"labels": []any{"a", 1.0}},
			wantErr: "invalid field(s): labels must be a list of strings",
		},
		{
			name: "object list",
			in:   Payload{"events": []any{map[string]any{"summary": "x"}}},
			check: func(t *testing.T, p Payload) {
				require.Len(t, p.Objects("events"), 1)
				assert.Equal(t, "x", p.Objects("events")[0]["summary"])
			},
		},
		{
			name:    "object list with scalar item",
			in:      Payload{"events": []any{"x"}},
			wantErr: "invalid field(s): events must be a list of objects",
		},
		{
			name: "object",
			in:   Payload{"meta": map[string]any{"k": "v"}},
			check: func(t *testing.T, p Payload) {
				assert.Equal(t, "v", p.Object("meta")["k"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := ValidatePayload(specs, tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, err.Error())
				assert.Equal(t, KindPayloadValidation, KindOf(err))
				return
			}
			require.NoError(t, err)
			tt.check(t, out)
		})
	}
}

func TestValidatePayload_MissingBeatsInvalid(t *testing.T) {
	specs := []FieldSpec{
		{Name: "repo", Type: FieldString, Required: true},
		{Name: "per_page", Type: FieldInt},
	}

	_, err := ValidatePayload(specs, Payload{"per_page": "many"})
	require.Error(t, err)
	assert.Equal(t, "missing required field(s): repo", err.Error())
}

func TestPayload_Has(t *testing.T) {
	p := Payload{"a": "x", "b": "", "c": nil, "d": []any{}, "e": 0}

	assert.True(t, p.Has("a"))
	assert.False(t, p.Has("b"))
	assert.False(t, p.Has("c"))
	assert.False(t, p.Has("d"))
	assert.True(t, p.Has("e"))
	assert.False(t, p.Has("missing"))
}
