// Package geocode resolves map coordinates to address components.
//
// The Client talks to a Nominatim-compatible reverse geocoding endpoint.
// CachedGeocoder wraps any Geocoder with a cache keyed by S2 cell so nearby
// pins share one upstream lookup.
package geocode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Geocoder resolves coordinates to an address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*Result, error)
}

// Result is a reverse geocoding result. It is transient and never persisted
// with a report.
type Result struct {
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

// AddressComponent is one key/value pair of a geocoder address.
type AddressComponent struct {
	Key   string
	Value string
}

// Address is the ordered list of string-valued address components, in the
// order the geocoder returned them.
type Address []AddressComponent

// Get returns the value for key, or "" when absent.
func (a Address) Get(key string) string {
	for _, c := range a {
		if c.Key == key {
			return c.Value
		}
	}
	return ""
}

// UnmarshalJSON decodes a JSON object while keeping key order. Values that
// are not strings are skipped.
func (a *Address) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("address: expected object, got %v", tok)
	}

	var out Address
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		out = append(out, AddressComponent{Key: key, Value: value})
	}

	*a = out
	return nil
}

// MarshalJSON encodes the address as a JSON object in component order.
func (a Address) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(c.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(c.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
