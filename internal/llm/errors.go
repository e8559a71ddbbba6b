package llm

import "github.com/hindsightdb/hindsight/internal/errs"

// errOutputTooLong is returned when the model stops because it hit
// max_tokens before finishing. Callers
// (retain's extraction step) distinguish this from other failures to
// split the chunk and recurse rather than giving up.
func errOutputTooLong(scope Scope) error {
	return errs.New(errs.KindOutputTooLong, "model stopped at max_tokens for scope "+string(scope))
}

func errCallFailed(scope Scope, cause error) error {
	return errs.Wrap(errs.KindTransient, "llm call failed for scope "+string(scope), cause)
}
