package handlers

// Stable error codes surfaced in ErrorResponse.Code. Clients branch on
// these, so changing a value is a breaking API change.
const (
	CodeBadRequest    = "bad_request"
	CodeUnauthorized  = "unauthorized"
	CodeForbidden     = "forbidden"
	CodeNotFound      = "not_found"
	CodeRateLimited   = "rate_limited"
	CodeInternalError = "internal_error"
)
