package service

import "errors"

// Pipeline error taxonomy. Stage-local recoverable problems (one chunk,
// one candidate, one clip) are absorbed and logged; these kinds surface
// when a whole stage fails.
var (
	// ErrTranscriptionFailed: the single-file call failed or every chunk failed.
	ErrTranscriptionFailed = errors.New("transcription failed")

	// ErrExtractionBackendFailed: the generation backend call itself failed.
	ErrExtractionBackendFailed = errors.New("key point extraction failed")

	// ErrExtractionParseFailed: the generation response was not a JSON array.
	ErrExtractionParseFailed = errors.New("key point response is not a JSON array")

	// ErrClipMaterializationFailed: a single clip could not be produced.
	// Per-segment only; never fatal to the job.
	ErrClipMaterializationFailed = errors.New("clip materialization failed")
)
