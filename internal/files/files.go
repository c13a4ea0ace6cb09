// Package files issues upload authorization grants. It only vouches for a
// transfer; the bytes themselves move over the HTTP surface, outside this
// core.
package files

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatcore/pkg/interfaces"
)

// Service hands out time-limited upload grants under a fixed URL prefix.
type Service struct {
	urlPrefix string
	ttl       time.Duration
}

// NewService creates a grant issuer. Grants point under urlPrefix and expire
// after ttl.
func NewService(urlPrefix string, ttl time.Duration) *Service {
	return &Service{
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		ttl:       ttl,
	}
}

// AuthorizeUpload validates the filename and returns a fresh grant. The
// filename must be a bare name: path separators and parent references are
// rejected.
func (s *Service) AuthorizeUpload(ctx context.Context, username, filename string) (*interfaces.UploadGrant, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: empty filename", interfaces.ErrUploadRejected)
	}
	if strings.ContainsAny(filename, "/\\") || strings.Contains(filename, "..") {
		return nil, fmt.Errorf("%w: filename %q must not contain path elements", interfaces.ErrUploadRejected, filename)
	}

	uploadID := uuid.New().String()
	return &interfaces.UploadGrant{
		UploadID:  uploadID,
		UploadURL: s.urlPrefix + "/" + uploadID,
		ExpiresIn: int(s.ttl.Seconds()),
	}, nil
}
