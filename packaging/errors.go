package packaging

import "errors"

var (
	// ErrInvalidArchive indicates the payload is not a readable ZIP archive
	ErrInvalidArchive = errors.New("invalid package archive")

	// ErrNuspecNotFound indicates no .nuspec file was found
	ErrNuspecNotFound = errors.New("nuspec file not found")

	// ErrInvalidManifest indicates the nuspec is malformed or incomplete
	ErrInvalidManifest = errors.New("invalid nuspec manifest")
)
