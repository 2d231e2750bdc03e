package connection

import "errors"

var (
	errNeitherURINorHostPath = errors.New("connection requires either uri or both host and path")
	errUnsupportedMethod     = errors.New("unsupported method")
	errPathNotAbsolute       = errors.New("path must begin with /")
	errInvalidURI            = errors.New("uri must begin with http:// or https://")

	errMissingSmallTableID = errors.New("cache init requires a small-table identifier")
	errMissingEncryptionKey = errors.New("cache init names a cipher but no encryption key was supplied")
)
