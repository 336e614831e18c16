package model

import "errors"

// Envelope is the uniform response of every dispatch. Exactly one of Data
// and Error is meaningful, selected by Success.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Succeed wraps an action result. A nil result becomes an empty object so
// callers can always index into data.
func Succeed(data any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{Success: true, Data: data}
}

// Fail wraps err. Only ProxyError messages are exposed; anything else is
// replaced with a generic message so raw causes never reach the caller.
func Fail(err error) Envelope {
	var pe *ProxyError
	if errors.As(err, &pe) && pe.Message != "" {
		return Envelope{Success: false, Error: pe.Message, ErrorCode: pe.ErrorCode()}
	}
	return Envelope{Success: false, Error: "Unknown error occurred", ErrorCode: KindInternal.Code()}
}
