package writer

import "errors"

// Lifecycle precondition violations. The offending call is skipped; no
// state is written.
var (
	ErrNoActiveRun      = errors.New("no active run: call StartRun first")
	ErrNoActiveQuestion = errors.New("no active question: call StartQuestion first")
	ErrRunFinished      = errors.New("run already finished: call StartRun to begin a new one")
	ErrNegativeDelta    = errors.New("token deltas must not be negative")
	ErrNoGrid           = errors.New("no grid: call StartGrid first")
)
