// Package graphql defines the operation and response envelope types that
// flow through the link chain and into the normalized cache.
package graphql

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind distinguishes reads from writes.
type Kind int

const (
	// KindQuery is a read operation.
	KindQuery Kind = iota
	// KindMutation is a write operation.
	KindMutation
)

func (k Kind) String() string {
	if k == KindMutation {
		return "mutation"
	}
	return "query"
}

// Operation describes one named GraphQL document.
//
// Fields lists the root selection names the document requests; the cache
// uses them to read a query back without a network round trip. Every root
// field receives Variables as its arguments.
type Operation struct {
	Name     string
	Kind     Kind
	Document string
	Fields   []string
}

// Request is an operation bound to variables and headers, as it travels
// through the link chain.
type Request struct {
	Operation Operation
	Variables map[string]any
	Header    map[string]string
}

// NewRequest binds op to a copy of vars.
func NewRequest(op Operation, vars map[string]any) Request {
	return Request{Operation: op, Variables: cloneMap(vars), Header: map[string]string{}}
}

// SetHeader records one outbound header.
func (r *Request) SetHeader(key, value string) {
	if r.Header == nil {
		r.Header = map[string]string{}
	}
	r.Header[key] = value
}

// Body is the JSON POST body sent to the endpoint.
type Body struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
}

// Body renders the request payload.
func (r Request) Body() Body {
	return Body{
		Query:         r.Operation.Document,
		Variables:     r.Variables,
		OperationName: r.Operation.Name,
	}
}

// Location is a source position reported with an error.
type Location struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Error is one entry of the response errors array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Locations  []Location     `json:"locations,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code, or "".
func (e Error) Code() string {
	if e.Extensions == nil {
		return ""
	}
	code, _ := e.Extensions["code"].(string)
	return strings.TrimSpace(code)
}

// Response is the standard {data, errors} envelope.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors []Error        `json:"errors,omitempty"`
	// StatusCode is the HTTP status the envelope arrived with.
	StatusCode int `json:"-"`
}

// HasErrors reports whether the server reported any error.
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// ErrorCodes extracts every errors[].extensions.code from a raw envelope
// without decoding the data payload.
func ErrorCodes(raw []byte) []string {
	result := gjson.GetBytes(raw, "errors.#.extensions.code")
	if !result.Exists() {
		return nil
	}
	codes := make([]string, 0, len(result.Array()))
	for _, code := range result.Array() {
		if v := strings.TrimSpace(code.String()); v != "" {
			codes = append(codes, v)
		}
	}
	return codes
}

// DecodeResponse parses a raw envelope. A body that is not JSON or carries
// neither data nor errors is rejected.
func DecodeResponse(raw []byte) (*Response, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("response is not valid json")
	}
	parsed := gjson.ParseBytes(raw)
	if !parsed.Get("data").Exists() && !parsed.Get("errors").Exists() {
		return nil, fmt.Errorf("response has neither data nor errors")
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
