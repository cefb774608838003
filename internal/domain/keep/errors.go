package keep

import "errors"

var (
	ErrAuthentication     = errors.New("authentication failed")
	ErrUnknownContentType = errors.New("unknown content type")
	ErrNetwork            = errors.New("network failure")
	ErrFilesystem         = errors.New("filesystem failure")
)
