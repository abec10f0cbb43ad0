package supervisor

import (
	"encoding/json"
	"fmt"
)

// The wire protocol is one JSON record per line, UTF-8, no embedded raw
// newlines (JSON string escaping guarantees this). On startup the worker
// emits the READY sentinel once, then the exchange is strictly one request
// line followed by one response line; the worker never writes unsolicited
// lines.
const readySentinel = "READY"

// wireRequest is the request line sent to the worker.
type wireRequest struct {
	Code         string `json:"code"`
	Input        string `json:"input,omitempty"`
	ResetModules bool   `json:"resetModules,omitempty"`
}

// wireResponse is the response line read back. Stdout is a pointer so a
// missing field can be told apart from an empty one: a response with neither
// an error nor a stdout field is malformed.
type wireResponse struct {
	Stdout   *string           `json:"stdout"`
	Stderr   string            `json:"stderr"`
	Bindings map[string]string `json:"bindings"`
	Error    string            `json:"error"`
	Trace    string            `json:"trace"`
}

// encodeRequest serializes a request as a single newline-terminated line.
func encodeRequest(req wireRequest) ([]byte, error) {
	line, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	return append(line, '\n'), nil
}

// decodeResponse parses one response line and verifies it has one of the two
// expected shapes (success or evaluation failure). Anything else means the
// supervisor and worker have lost synchronization.
func decodeResponse(line []byte) (*wireResponse, error) {
	var resp wireResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if resp.Error == "" && resp.Stdout == nil {
		return nil, fmt.Errorf("response has neither error nor stdout field")
	}
	return &resp, nil
}

func (r *wireResponse) stdout() string {
	if r.Stdout == nil {
		return ""
	}
	return *r.Stdout
}
