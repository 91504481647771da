package handlecache

import "github.com/h2non/filetype"

const (
	defaultMimeType  = "application/octet-stream"
	defaultExtension = "bin"
)

// DetectType sniffs the MIME type and file extension of data from its magic
// bytes. Unknown content is reported as application/octet-stream.
func DetectType(data []byte) (mimeType string, extension string) {
	kind, err := filetype.Match(data)
	if err != nil || kind == filetype.Unknown {
		return defaultMimeType, defaultExtension
	}
	return kind.MIME.Value, kind.Extension
}
