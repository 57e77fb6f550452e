package transport

import "encoding/json"

// Envelope wraps every proposal and offer API response. Error carries the
// public message; Code carries the domain error code.
type Envelope struct {
	Status string      `json:"status"`
	Code   string      `json:"code,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  interface{} `json:"error,omitempty"`
	Meta   interface{} `json:"meta,omitempty"`
}

// NewSuccess returns a success envelope.
func NewSuccess(data interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "success",
		Data:   data,
		Meta:   meta,
	}
}

// NewError returns an error envelope with optional metadata.
// An empty code is reported as INTERNAL.
func NewError(code string, err interface{}, meta interface{}) Envelope {
	return Envelope{
		Status: "error",
		Code:   codeOrInternal(code),
		Error:  err,
		Meta:   meta,
	}
}

// NewFailure returns an error envelope whose data carries a payload the client
// reads in place of the success body, such as a SaveResponse with Success false.
func NewFailure(code, message string, data interface{}) Envelope {
	env := NewError(code, message, nil)
	env.Data = data
	return env
}

// String returns the JSON representation (best-effort) for logging purposes.
func (e Envelope) String() string {
	out, err := json.Marshal(e)
	if err != nil {
		return "{}"
	}
	return string(out)
}

func codeOrInternal(code string) string {
	if code == "" {
		return "INTERNAL"
	}
	return code
}
