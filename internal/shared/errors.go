package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure. Inactive accounts and
	// unknown emails surface the same error to avoid user enumeration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("email already taken")
	// ErrSelfDelete indicates an admin tried to delete their own account.
	ErrSelfDelete = errors.New("cannot delete yourself")
	// ErrWrongPassword indicates the supplied current password did not match.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrUnknownRole indicates a role name not present in the catalog.
	ErrUnknownRole = errors.New("unknown role")
	// ErrUnknownPermission indicates a permission name not present in the catalog.
	ErrUnknownPermission = errors.New("unknown permission")
	// ErrCSRFTokenMissing occurs when the CSRF token is absent.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps an error to a message suitable for flash or inline
// display. Unrecognised errors collapse to a generic message so internals
// never leak into rendered pages.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, ErrDuplicateEmail):
		return "That email address is already taken."
	case errors.Is(err, ErrSelfDelete):
		return "You cannot delete yourself!"
	case errors.Is(err, ErrWrongPassword):
		return "Current password is incorrect."
	case errors.Is(err, ErrUnknownRole):
		return "Unknown role."
	case errors.Is(err, ErrUnknownPermission):
		return "Unknown permission."
	default:
		return "Something went wrong. Please try again."
	}
}
