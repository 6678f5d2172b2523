package memd

import (
	"bytes"
	"encoding/json"

	"github.com/pior/memd/mcbp"
)

type errInfoState uint8

const (
	errInfoAbsent errInfoState = iota
	errInfoPending
	errInfoParsed
)

// errorInfo holds the server's enhanced error body. It is decoded at most
// once, on the first query.
type errorInfo struct {
	state   errInfoState
	raw     []byte
	ref     string
	context string
}

type enhancedErrorBody struct {
	Error *struct {
		Ref     string `json:"ref"`
		Context string `json:"context"`
	} `json:"error"`
}

// arm records the body of a failed JSON response for later decoding. The
// value is copied since the envelope buffer does not outlive dispatch.
func (e *errorInfo) arm(env *mcbp.Envelope) {
	if env.Status == mcbp.StatusSuccess || !env.Datatype.Has(mcbp.DatatypeJSON) || len(env.Value) == 0 {
		return
	}
	e.raw = bytes.Clone(env.Value)
	e.state = errInfoPending
}

func (e *errorInfo) resolve() bool {
	switch e.state {
	case errInfoParsed:
		return true
	case errInfoAbsent:
		return false
	}

	var body enhancedErrorBody
	if err := json.Unmarshal(e.raw, &body); err != nil || body.Error == nil ||
		(body.Error.Ref == "" && body.Error.Context == "") {
		e.state = errInfoAbsent
		e.raw = nil
		return false
	}

	e.ref = body.Error.Ref
	e.context = body.Error.Context
	e.state = errInfoParsed
	e.raw = nil
	return true
}

// HasErrorInfo reports whether the server attached a decodable enhanced
// error body.
func (c *Context) HasErrorInfo() bool {
	return c.errInfo.resolve()
}

// ErrorRef returns the server's error reference id, used to correlate with
// server logs.
func (c *Context) ErrorRef() (string, bool) {
	if !c.errInfo.resolve() || c.errInfo.ref == "" {
		return "", false
	}
	return c.errInfo.ref, true
}

// ErrorContext returns the server's human readable error context.
func (c *Context) ErrorContext() (string, bool) {
	if !c.errInfo.resolve() || c.errInfo.context == "" {
		return "", false
	}
	return c.errInfo.context, true
}
