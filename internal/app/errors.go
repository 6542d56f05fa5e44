package app

import "errors"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedType   = errors.New("unsupported file type")
	ErrPayloadTooLarge   = errors.New("file exceeds the upload size limit")
	ErrEmptyDocument     = errors.New("document contains no extractable text")
	ErrExtractionFailure = errors.New("text extraction failed")
	ErrEmbeddingFailure  = errors.New("embedding failed")
	ErrGenerationFailure = errors.New("answer generation failed")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("document is not in the expected status")
)
