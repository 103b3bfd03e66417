package minibatch

import (
	"errors"
	"fmt"
)

// SkipPolicy decides whether a chunk step continues past a malformed line or
// a rejected item. skipCount is the number of items the step skipped so far.
// Write errors are never offered to the policy.
type SkipPolicy interface {
	ShouldSkip(err error, skipCount int64) bool
}

type failFast struct{}

// FailFast aborts on the first parse or transform error. It is the default.
func FailFast() SkipPolicy { return failFast{} }

func (failFast) ShouldSkip(err error, skipCount int64) bool { return false }
func (failFast) String() string                             { return "fail-fast" }

type skipLimit struct {
	limit int64
}

// SkipLimit skips parse and transform errors until limit items have been
// skipped; the next one aborts the step.
func SkipLimit(limit int64) SkipPolicy { return skipLimit{limit: limit} }

func (p skipLimit) ShouldSkip(err error, skipCount int64) bool {
	return skippable(err) && skipCount < p.limit
}

func (p skipLimit) String() string { return fmt.Sprintf("skip-limit(%d)", p.limit) }

type alwaysSkip struct{}

// AlwaysSkip skips every parse and transform error.
func AlwaysSkip() SkipPolicy { return alwaysSkip{} }

func (alwaysSkip) ShouldSkip(err error, skipCount int64) bool { return skippable(err) }
func (alwaysSkip) String() string                             { return "skip-all" }

func skippable(err error) bool {
	var pe *ParseError
	var te *TransformError
	return errors.As(err, &pe) || errors.As(err, &te)
}

// ParseSkipPolicy maps fail-fast, skip-all and skip-limit to a policy.
func ParseSkipPolicy(name string, limit int64) (SkipPolicy, error) {
	switch name {
	case "", "fail-fast":
		return FailFast(), nil
	case "skip-all":
		return AlwaysSkip(), nil
	case "skip-limit":
		if limit <= 0 {
			return nil, NewBatchError(ErrCodeConfig, "skip-limit policy requires a positive limit, got %d", limit)
		}
		return SkipLimit(limit), nil
	}
	return nil, NewBatchError(ErrCodeConfig, "unknown skip policy: %s", name)
}
