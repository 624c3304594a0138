package protocol

import (
	"bytes"
	"encoding/json"
)

// IsBatch reports whether payload is a JSON array.
func IsBatch(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// DecodeRequest decodes a single request payload.
func DecodeRequest(data []byte) (*Request, *Error) {
	if !json.Valid(data) {
		return nil, ParseError("request body is not valid JSON")
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, InvalidRequest("Request must be a JSON object", nil)
	}
	return &req, nil
}

// DecodeBatch decodes a batch payload. Items that are not JSON objects are
// kept as empty requests flagged malformed so batch validation can name them.
func DecodeBatch(data []byte) ([]*Request, *Error) {
	if !json.Valid(data) {
		return nil, ParseError("batch body is not valid JSON")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, InvalidRequest("Batch request must be an array", nil)
	}
	reqs := make([]*Request, len(items))
	for i, item := range items {
		req := &Request{}
		if err := json.Unmarshal(item, req); err != nil {
			req = &Request{}
			req.markMalformed("request", "must be a JSON object")
		}
		reqs[i] = req
	}
	return reqs, nil
}
