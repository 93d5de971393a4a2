package models

// NodeDescriptor is the registry's public description of a node subtype:
// what the palette shows and the JSON schema its configuration must satisfy.
type NodeDescriptor struct {
	Subtype      string         `json:"subtype"`
	Kind         NodeKind       `json:"kind"`
	Label        string         `json:"label"`
	Description  string         `json:"description"`
	ConfigSchema map[string]any `json:"config_schema"`
}
