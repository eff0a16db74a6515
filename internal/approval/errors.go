package approval

import "github.com/zero-bot/codecoder/internal/apperr"

// Sentinel errors specific to the approval domain, wrapped into
// apperr.CodedError by the Service's writeError helper.
var (
	ErrRequestNotFound = apperr.ErrNotFound
	ErrAlreadyTerminal = apperr.ErrAlreadyTerminal
	ErrNotApprover     = apperr.ErrUnauthorized
)
