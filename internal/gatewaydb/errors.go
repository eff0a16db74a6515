package gatewaydb

import "github.com/zero-bot/codecoder/internal/apperr"

var (
	// ErrUserNotFound is returned when a lookup by id or username misses.
	ErrUserNotFound = apperr.New("gatewaydb", apperr.KindNotFound, "USER_NOT_FOUND", "user not found", apperr.ErrNotFound)

	// ErrDuplicateUsername is returned by CreateUser on a unique-index
	// violation (spec §4.13, mapped to 409 by the gateway HTTP layer).
	ErrDuplicateUsername = apperr.New("gatewaydb", apperr.KindConsistency, "DUPLICATE_USERNAME", "username already exists", nil)

	// ErrInvalidCredentials is returned by VerifyPassword on a bad
	// username or password.
	ErrInvalidCredentials = apperr.New("gatewaydb", apperr.KindAuthorization, "INVALID_CREDENTIALS", "invalid username or password", apperr.ErrUnauthorized)

	// ErrUserDisabled is returned when an authentication attempt targets
	// a disabled account.
	ErrUserDisabled = apperr.New("gatewaydb", apperr.KindAuthorization, "USER_DISABLED", "user account is disabled", apperr.ErrUnauthorized)

	// ErrQuotaExceeded is returned by CheckQuota when any limit is met
	// or exceeded (spec §4.13, mapped to 429).
	ErrQuotaExceeded = apperr.New("gatewaydb", apperr.KindCapacity, "QUOTA_EXCEEDED", "usage quota exceeded", apperr.ErrQuotaExceeded)
)
