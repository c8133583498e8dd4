package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"catalog/internal/models"

	"github.com/shopspring/decimal"
)

const (
	msgInvalidString  = "Not a valid string."
	msgInvalidNumber  = "A valid number is required."
	msgInvalidInteger = "A valid integer is required."
)

// ProductInput carries client-supplied product fields. A nil field was not supplied.
type ProductInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Stock       *int             `json:"stock"`
}

// DecodeProductInput decodes a JSON request body with unmarshal. An empty
// body is an empty input. A body that is not a JSON object is returned as a
// plain error; fields of the wrong type are reported as a *ValidationError.
func DecodeProductInput(body []byte, unmarshal func([]byte, any) error) (ProductInput, error) {
	var input ProductInput
	if len(bytes.TrimSpace(body)) == 0 {
		return input, nil
	}

	var raw map[string]json.RawMessage
	if err := unmarshal(body, &raw); err != nil {
		return input, fmt.Errorf("failed to decode product body: %w", err)
	}

	verr := &ValidationError{}
	decodeField(raw, "name", &input.Name, msgInvalidString, unmarshal, verr)
	decodeField(raw, "description", &input.Description, msgInvalidString, unmarshal, verr)
	decodeField(raw, "price", &input.Price, msgInvalidNumber, unmarshal, verr)
	decodeField(raw, "stock", &input.Stock, msgInvalidInteger, unmarshal, verr)

	if !verr.empty() {
		return ProductInput{}, verr
	}
	return input, nil
}

func decodeField[T any](raw map[string]json.RawMessage, field string, dst **T, message string, unmarshal func([]byte, any) error, verr *ValidationError) {
	value, ok := raw[field]
	if !ok {
		return
	}
	if err := unmarshal(value, dst); err != nil {
		verr.Add(field, message)
	}
}

// missingRequired reports the fields a create or full update must carry.
func (in ProductInput) missingRequired() *ValidationError {
	verr := &ValidationError{}
	if in.Name == nil {
		verr.Add("name", msgRequired)
	}
	if in.Price == nil {
		verr.Add("price", msgRequired)
	}
	return verr
}

// applyTo copies the supplied fields onto product. With full set, fields
// that were not supplied are reset to their defaults. Names are trimmed.
func (in ProductInput) applyTo(product *models.Product, full bool) {
	switch {
	case in.Name != nil:
		product.Name = strings.TrimSpace(*in.Name)
	case full:
		product.Name = ""
	}
	switch {
	case in.Description != nil:
		product.Description = *in.Description
	case full:
		product.Description = ""
	}
	switch {
	case in.Price != nil:
		product.Price = *in.Price
	case full:
		product.Price = decimal.Zero
	}
	switch {
	case in.Stock != nil:
		product.Stock = *in.Stock
	case full:
		product.Stock = 0
	}
}
