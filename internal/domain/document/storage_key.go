// Package document holds the pure rules of the document pipeline: storage key
// layout and upload validation.
package document

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-docpipe/internal/domain/model"
)

// DefaultExtension is used when the uploaded filename has none.
const DefaultExtension = "bin"

// ErrMalformedKey is returned by ParseStorageKey for keys not produced by NewStorageKey.
var ErrMalformedKey = errors.New("malformed storage key")

var (
	reExtension = regexp.MustCompile(`^[a-z0-9]{1,10}$`)
	reOwner     = regexp.MustCompile(`^[A-Za-z0-9._@-]{1,128}$`)
)

// StorageKey is the parsed form of "{type}/{owner}/{unixMillis}-{uuid}.{ext}".
type StorageKey struct {
	DocumentType model.DocumentType
	OwnerID      string
	CreatedAt    time.Time
	ID           uuid.UUID
	Extension    string
}

// String renders the key; the type segment is lower-cased.
func (k StorageKey) String() string {
	return fmt.Sprintf("%s/%s/%d-%s.%s",
		strings.ToLower(string(k.DocumentType)), k.OwnerID, k.CreatedAt.UnixMilli(), k.ID, k.Extension)
}

// NewStorageKey builds a fresh key for an upload by ownerID.
func NewStorageKey(docType model.DocumentType, ownerID, filename string, now time.Time) (StorageKey, error) {
	if !docType.Valid() {
		return StorageKey{}, errors.New("unknown document type")
	}
	if !reOwner.MatchString(ownerID) {
		return StorageKey{}, errors.New("invalid owner id")
	}
	return StorageKey{
		DocumentType: docType,
		OwnerID:      ownerID,
		CreatedAt:    now.UTC(),
		ID:           uuid.New(),
		Extension:    Extension(filename),
	}, nil
}

// Extension returns the lower-cased filename extension, or DefaultExtension.
func Extension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), "."))
	if !reExtension.MatchString(ext) {
		return DefaultExtension
	}
	return ext
}

// ParseStorageKey is the inverse of StorageKey.String.
func ParseStorageKey(raw string) (StorageKey, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 3 {
		return StorageKey{}, ErrMalformedKey
	}

	docType, err := model.ParseDocumentType(parts[0])
	if err != nil || parts[0] != strings.ToLower(parts[0]) {
		return StorageKey{}, ErrMalformedKey
	}
	if !reOwner.MatchString(parts[1]) {
		return StorageKey{}, ErrMalformedKey
	}

	name, ext, ok := strings.Cut(parts[2], ".")
	if !ok || !reExtension.MatchString(ext) {
		return StorageKey{}, ErrMalformedKey
	}
	ts, id, ok := strings.Cut(name, "-")
	if !ok {
		return StorageKey{}, ErrMalformedKey
	}
	millis, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || millis <= 0 {
		return StorageKey{}, ErrMalformedKey
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return StorageKey{}, ErrMalformedKey
	}

	return StorageKey{
		DocumentType: docType,
		OwnerID:      parts[1],
		CreatedAt:    time.UnixMilli(millis).UTC(),
		ID:           parsedID,
		Extension:    ext,
	}, nil
}
