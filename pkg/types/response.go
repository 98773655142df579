package types

import "errors"

// Resp is the envelope every HTTP endpoint responds with:
// {success: true, data} | {success: false, code, msg}.
type Resp struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Code    ErrorCode `json:"code,omitempty"`
	Msg     string    `json:"msg,omitempty"`
}

// OkResp wraps a payload in a success envelope.
func OkResp(data any) Resp {
	return Resp{Success: true, Data: data}
}

// ErrResp converts any error into a failure envelope. The operator context of
// wrapped errors is intentionally dropped; only the AppError message survives.
func ErrResp(err error) Resp {
	code := CodeOf(err)
	msg := ""
	var appErr *AppError
	if errors.As(err, &appErr) {
		msg = appErr.Msg
	}
	if msg == "" {
		msg = string(code)
	}
	return Resp{Success: false, Code: code, Msg: msg}
}
