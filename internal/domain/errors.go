package domain

import "github.com/pkg/errors"

var (
	// ErrRateLimitExceeded means the retry budget for rate-limited calls ran out.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrFetchFailed means the explorer returned an unusable response.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrWalletNotFound is returned by repositories for unknown addresses.
	ErrWalletNotFound = errors.New("wallet not found")
)
