package service

import "errors"

// Failure classes. Public CacheService operations never return these; they
// are logged and mapped to a safe default at the operation boundary.
var (
	// ErrStoreUnavailable covers open/transaction failures and init timeout
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrNetworkFailure covers non-2xx, timeout/abort and transport errors
	ErrNetworkFailure = errors.New("network failure")
	// ErrEncodingFailure is a response body that cannot become a payload
	ErrEncodingFailure = errors.New("encoding failure")
	// ErrQuotaComputation is a scan error while summing usage
	ErrQuotaComputation = errors.New("quota computation failure")
	// ErrDenylisted marks a domain never fetched over the network
	ErrDenylisted = errors.New("domain denylisted")
)
