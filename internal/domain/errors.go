package domain

import "errors"

var (
	// ErrCacheUnavailable means the cache backing store could not be reached.
	// Readers treat it as a miss and writers skip.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrNoValidInputs means none of the given paths resolved to a PDF report.
	ErrNoValidInputs = errors.New("no valid PDF reports found at the provided path(s)")

	// ErrNotIndexed means a query ran before any index was bound.
	ErrNotIndexed = errors.New("no index loaded: ingest reports or load an existing index first")

	// ErrAnswerGenerationFailed wraps failures of the answer model.
	ErrAnswerGenerationFailed = errors.New("answer generation failed")

	// ErrJudgeScoreInvalid marks a judge reply that is not a number in [0,10].
	ErrJudgeScoreInvalid = errors.New("invalid judge score")

	ErrIndexNotFound = errors.New("index not found")
	ErrIndexCorrupt  = errors.New("index corrupt")

	// ErrIndexIncompatible means the index was built with another embedding
	// model or dimension than the one configured now.
	ErrIndexIncompatible = errors.New("index built with a different embedding model")

	// ErrTimeout wraps external calls that exceeded their deadline.
	ErrTimeout = errors.New("external call timed out")
)
