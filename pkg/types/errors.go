package types

import "errors"

// Upgrade errors. Decode errors are recovered per record, source errors per
// family; schema errors abort the whole upgrade.
var (
	ErrSourceUnavailable = errors.New("legacy source unavailable")
	ErrRecordDecode      = errors.New("malformed legacy record")
	ErrSchemaCreation    = errors.New("schema creation failed")
	ErrInsertConflict    = errors.New("duplicate primary key")
)

// Store and cache errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrUnknownTable = errors.New("unknown table")
)
