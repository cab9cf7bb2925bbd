package benefits

import "errors"

var (
	ErrCalculationNotFound = errors.New("benefit calculation not found")
	ErrUnknownKind         = errors.New("unknown benefit kind")
)
