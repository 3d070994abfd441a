package types

import "errors"

// Domain errors for type validation
var (
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrInvalidChunkType = errors.New("invalid chunk type")
	ErrInvalidLines     = errors.New("invalid line range")
	ErrEmptyFilePath    = errors.New("file path cannot be empty")
)
