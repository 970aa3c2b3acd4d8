// Package schema validates raw lot documents against the embedded JSON
// schema before they are decoded.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed lot.schema.json
var lotSchema string

const lotSchemaURL = "https://bluebear.game/schemas/lot.schema.json"

type Validator struct {
	schema *jsonschema.Schema
}

// New compiles the embedded lot schema.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(lotSchemaURL, strings.NewReader(lotSchema)); err != nil {
		return nil, fmt.Errorf("lot schema: %w", err)
	}
	s, err := c.Compile(lotSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("lot schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate returns the JSON pointer of the first offending value together
// with the reason.
func (v *Validator) Validate(raw []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("parse: %w", err)
	}
	err := v.schema.Validate(doc)
	if err == nil {
		return "", nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "", err
	}
	leaf := deepest(ve)
	return leaf.InstanceLocation, errors.New(leaf.Message)
}

func deepest(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	return ve
}
