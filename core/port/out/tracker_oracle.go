package out

import "context"

// ClassificationOracle submits a prompt and blocks until the backend returns
// its raw text answer. Backend failures are returned as apperr
// ORACLE_FAILED or CLASSIFICATION_TIMED_OUT errors.
type ClassificationOracle interface {
	Classify(ctx context.Context, prompt string) (string, error)
	Name() string
}
