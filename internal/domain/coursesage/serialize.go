package coursesage

import "encoding/json"

// toolContentWire is the JSON shape persisted as a tool message's content.
type toolContentWire struct {
	Success bool     `json:"success"`
	Error   string   `json:"error,omitempty"`
	Results []Source `json:"results"`
}

// EncodeToolContent serializes a SourcePacket to the JSON form stored as a
// tool message's content.
func EncodeToolContent(p SourcePacket) (string, error) {
	wire := toolContentWire{Success: p.Success, Error: p.Error, Results: p.Results}
	raw, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseToolContent deserializes a tool message's content back into results.
func ParseToolContent(content string) (toolContentWire, error) {
	var wire toolContentWire
	err := json.Unmarshal([]byte(content), &wire)
	return wire, err
}
