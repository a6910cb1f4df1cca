package document

import (
	"mime"
	"regexp"
	"slices"
	"strings"

	apperrors "github.com/target/mmk-docpipe/internal/errors"
)

const maxFilenameLength = 255

var reSHA256 = regexp.MustCompile(`^[a-f0-9]{64}$`)

// UploadRules validates upload requests against the configured allow-list.
type UploadRules struct {
	allowedMimeTypes []string
	maxSizeBytes     int64
}

// NewUploadRules normalises the allowed MIME types. An empty list allows any
// well-formed type; maxSizeBytes <= 0 disables the size check.
func NewUploadRules(allowedMimeTypes []string, maxSizeBytes int64) *UploadRules {
	normalised := make([]string, 0, len(allowedMimeTypes))
	for _, m := range allowedMimeTypes {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			normalised = append(normalised, m)
		}
	}
	return &UploadRules{allowedMimeTypes: normalised, maxSizeBytes: maxSizeBytes}
}

// CheckFilename rejects empty, overlong, or path-bearing filenames.
func (r *UploadRules) CheckFilename(filename string) error {
	name := strings.TrimSpace(filename)
	switch {
	case name == "":
		return apperrors.ValidationField("filename", "filename is required")
	case len(name) > maxFilenameLength:
		return apperrors.ValidationField("filename", "filename is too long")
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return apperrors.ValidationField("filename", "filename must not contain path separators")
	}
	return nil
}

// CheckMimeType parses the media type and applies the allow-list.
func (r *UploadRules) CheckMimeType(mimeType string) error {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return apperrors.ValidationField("mime_type", "mime type is invalid")
	}
	if len(r.allowedMimeTypes) > 0 && !slices.Contains(r.allowedMimeTypes, strings.ToLower(mediaType)) {
		return apperrors.ValidationField("mime_type", "mime type is not allowed")
	}
	return nil
}

// CheckSize applies the configured maximum upload size.
func (r *UploadRules) CheckSize(size int64) error {
	if size < 0 {
		return apperrors.ValidationField("size_bytes", "size must not be negative")
	}
	if r.maxSizeBytes > 0 && size > r.maxSizeBytes {
		return apperrors.ValidationField("size_bytes", "file is too large")
	}
	return nil
}

// CheckContentHash requires a lower-case hex sha256 digest.
func CheckContentHash(hash string) error {
	if !reSHA256.MatchString(hash) {
		return apperrors.ValidationField("sha256_hash", "sha256 hash must be 64 lower-case hex characters")
	}
	return nil
}
