package cloud

import (
	"encoding/json"
	"fmt"
	"maps"
)

// ManifestEntry is one appliance record from the account manifest.
//
// The typed fields are the ones this module reads; Attributes keeps the
// complete object as received so nothing the API sends is lost.
type ManifestEntry struct {
	Name             string
	Serial           string
	ProductType      string
	Version          string
	LocalCredentials string

	Attributes map[string]any
}

// manifestFields mirrors the manifest JSON keys.
type manifestFields struct {
	Name             string `json:"Name"`
	Serial           string `json:"Serial"`
	ProductType      string `json:"ProductType"`
	Version          string `json:"Version"`
	LocalCredentials string `json:"LocalCredentials"`
}

// UnmarshalJSON decodes an entry and keeps the raw attribute map.
func (e *ManifestEntry) UnmarshalJSON(data []byte) error {
	var fields manifestFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding manifest entry: %w", err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return fmt.Errorf("decoding manifest attributes: %w", err)
	}

	*e = ManifestEntry{
		Name:             fields.Name,
		Serial:           fields.Serial,
		ProductType:      fields.ProductType,
		Version:          fields.Version,
		LocalCredentials: fields.LocalCredentials,
		Attributes:       attrs,
	}
	return nil
}

// MarshalJSON encodes the entry as the original attribute map, with the
// typed fields written over it.
func (e ManifestEntry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Attributes)+5)
	maps.Copy(out, e.Attributes)
	out["Name"] = e.Name
	out["Serial"] = e.Serial
	out["ProductType"] = e.ProductType
	out["Version"] = e.Version
	out["LocalCredentials"] = e.LocalCredentials
	return json.Marshal(out)
}

// Attribute returns a raw attribute by key.
func (e ManifestEntry) Attribute(key string) (any, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}
