package rpcmodel

import "github.com/maverikod/code-analysis-db/pkg/wire"

// Result is the sum type every handler returns: exactly one of SuccessResult,
// DataResult or ErrorResult. It replaces the isinstance-based dispatch the
// Python driver used with an exhaustive type switch at the server boundary.
type Result interface {
	isResult()
	// ToEnvelope renders the variant into the response half of an Envelope.
	ToEnvelope(id string) wire.Envelope
}

// SuccessResult carries an operation's acknowledgement payload — row counts,
// generated IDs, transaction IDs — for operations that don't return rows.
type SuccessResult struct {
	Data map[string]any
}

func (SuccessResult) isResult() {}

func (r SuccessResult) ToEnvelope(id string) wire.Envelope {
	data := r.Data
	if data == nil {
		data = map[string]any{}
	}
	return wire.NewResultEnvelope(id, map[string]any{"success": true, "data": data})
}

// DataResult carries a row set, for select / get_table_info style
// operations.
type DataResult struct {
	Rows []map[string]any
}

func (DataResult) isResult() {}

func (r DataResult) ToEnvelope(id string) wire.Envelope {
	rows := r.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return wire.NewResultEnvelope(id, map[string]any{"success": true, "data": rows})
}

// ErrorResult carries a failed operation's error code, human-readable
// description and optional structured details.
type ErrorResult struct {
	Code        ErrorCode
	Description string
	Details     map[string]any
}

func (ErrorResult) isResult() {}

func (r ErrorResult) ToEnvelope(id string) wire.Envelope {
	return wire.NewErrorEnvelope(id, int(r.Code), r.Description, r.Details)
}

// NewSuccess builds a SuccessResult, the common case for writes.
func NewSuccess(data map[string]any) SuccessResult {
	return SuccessResult{Data: data}
}

// NewData builds a DataResult, the common case for reads.
func NewData(rows []map[string]any) DataResult {
	return DataResult{Rows: rows}
}

// NewError builds an ErrorResult.
func NewError(code ErrorCode, description string, details map[string]any) ErrorResult {
	return ErrorResult{Code: code, Description: description, Details: details}
}
