package files

import (
	"context"
	"errors"
	"testing"
	"time"

	"chatcore/pkg/interfaces"
)

func TestAuthorizeUpload_GrantFields(t *testing.T) {
	s := NewService("/uploads/", 5*time.Minute)

	grant, err := s.AuthorizeUpload(context.Background(), "alice", "report.pdf")
	if err != nil {
		t.Fatalf("AuthorizeUpload failed: %v", err)
	}
	if grant.UploadID == "" {
		t.Error("Expected a non-empty upload ID")
	}
	if grant.UploadURL != "/uploads/"+grant.UploadID {
		t.Errorf("Expected URL under the prefix, got %q", grant.UploadURL)
	}
	if grant.ExpiresIn != 300 {
		t.Errorf("Expected 300 second expiry, got %d", grant.ExpiresIn)
	}
}

func TestAuthorizeUpload_UniqueIDs(t *testing.T) {
	s := NewService("/uploads", time.Minute)

	first, _ := s.AuthorizeUpload(context.Background(), "alice", "a.txt")
	second, _ := s.AuthorizeUpload(context.Background(), "alice", "a.txt")
	if first.UploadID == second.UploadID {
		t.Error("Grants for the same file should get distinct IDs")
	}
}

func TestAuthorizeUpload_RejectsBadFilenames(t *testing.T) {
	s := NewService("/uploads", time.Minute)

	for _, filename := range []string{"", "../etc/passwd", "dir/file.txt", `dir\file.txt`, "a..b"} {
		_, err := s.AuthorizeUpload(context.Background(), "alice", filename)
		if !errors.Is(err, interfaces.ErrUploadRejected) {
			t.Errorf("Filename %q: expected rejection, got %v", filename, err)
		}
	}
}
