package engine

import (
	"encoding/json"
	"net/http"

	"github.com/morezero/mcp-engine/pkg/protocol"
)

// Reply is the outcome of a payload: one response, or one per batch item.
type Reply struct {
	Single  *protocol.Response
	Batch   []*protocol.Response
	IsBatch bool
}

// Status returns the HTTP status for the reply. Processed batches are always
// 200 since each item carries its own error.
func (r *Reply) Status() int {
	if r.IsBatch || r.Single == nil {
		return http.StatusOK
	}
	return protocol.HTTPStatus(r.Single.Error)
}

// Error returns the single response's error, if any.
func (r *Reply) Error() *protocol.Error {
	if r.IsBatch || r.Single == nil {
		return nil
	}
	return r.Single.Error
}

// MarshalJSON writes an object for single replies and an array for batches.
func (r *Reply) MarshalJSON() ([]byte, error) {
	if r.IsBatch {
		if r.Batch == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(r.Batch)
	}
	return json.Marshal(r.Single)
}
