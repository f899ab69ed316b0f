package forecast

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const salesDataField = "sales_data"

type payload struct {
	fields map[string]json.RawMessage
}

// decodePayload parses body as a JSON object. A UTF-16 or UTF-8 byte order
// mark selects the encoding; without one the body must be valid UTF-8.
func decodePayload(body []byte) (*payload, error) {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !utf8.Valid(decoded) {
		return nil, fmt.Errorf("%w: body is not valid UTF-8", ErrInvalidPayload)
	}
	decoded = bytes.TrimSpace(decoded)
	if len(decoded) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if !json.Valid(decoded) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidPayload)
	}
	if decoded[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMissingField)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(decoded, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty object", ErrMissingField)
	}
	return &payload{fields: fields}, nil
}

// salesData returns the raw elements of the sales_data array.
func (p *payload) salesData() ([]json.RawMessage, error) {
	raw, ok := p.fields[salesDataField]
	if !ok {
		return nil, fmt.Errorf("%w: %s absent", ErrMissingField, salesDataField)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: %s is not an array", ErrMissingField, salesDataField)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingField, err)
	}
	return elements, nil
}

func (p *payload) productName() string {
	raw, ok := p.fields["product_name"]
	if !ok {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err != nil {
		return ""
	}
	return name
}

var (
	errStringFeature   = errors.New("dtype='numeric' is not compatible with arrays of bytes/strings. Convert your data to numeric values explicitly instead.")
	errSequenceFeature = errors.New("setting an array element with a sequence.")
)

// toFeatures converts JSON scalars to float64. Booleans count as 0 and 1 and
// null becomes NaN, which the model rejects.
func toFeatures(elements []json.RawMessage) ([]float64, error) {
	features := make([]float64, len(elements))
	for i, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 {
			return nil, fmt.Errorf("empty element at index %d", i)
		}
		switch element[0] {
		case '"':
			return nil, errStringFeature
		case '[', '{':
			return nil, errSequenceFeature
		case 'n':
			features[i] = math.NaN()
		case 't':
			features[i] = 1
		case 'f':
			features[i] = 0
		default:
			v, err := strconv.ParseFloat(string(element), 64)
			// Out of range literals come back as ±Inf and are left to the model.
			if err != nil && !errors.Is(err, strconv.ErrRange) {
				return nil, fmt.Errorf("could not convert %s to float: %w", element, err)
			}
			features[i] = v
		}
	}
	return features, nil
}
