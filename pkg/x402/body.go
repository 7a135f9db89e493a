package x402

import (
	"bytes"
	"io"
	"net/http"
)

// RequestBody drains and returns the request body, then restores r.Body so
// later readers (the requirements callback, the operation hooks) see the same
// bytes again.
func RequestBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))

	return data, nil
}
