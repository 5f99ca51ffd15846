package domain

import "errors"

var (
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrInvalidRule      = errors.New("invalid rate limit rule")
)

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
