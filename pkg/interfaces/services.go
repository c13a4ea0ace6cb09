// Package interfaces defines the collaborator contracts consumed by the
// connection and dispatch core. Persistence, AI generation, file transfer,
// and project/ticket business logic live behind these interfaces; the core
// never reaches past them.
package interfaces

import (
	"context"

	"chatcore/pkg/types"
)

// MessageService persists chat messages. SaveMessage returns the assigned
// message ID.
type MessageService interface {
	SaveMessage(ctx context.Context, content, username, roomID string) (string, error)
}

// AIResponder produces assistant replies. Generation may be slow; callers
// must invoke it off the read loop so one slow generation never blocks other
// connections.
type AIResponder interface {
	GenerateAIResponse(ctx context.Context, prompt, promptContext string) (string, error)
}

// HistoryService is the optional read side of the message store, used to
// replay recent room history to a freshly joined connection.
type HistoryService interface {
	RecentMessages(ctx context.Context, roomID string, limit int) ([]*types.StoredMessage, error)
}

// FileService authorizes uploads. The actual transfer happens over the HTTP
// surface, outside this core.
type FileService interface {
	AuthorizeUpload(ctx context.Context, username, filename string) (*UploadGrant, error)
}

// UploadGrant is the authorization metadata returned for a file_upload_request.
type UploadGrant struct {
	UploadID  string `json:"upload_id"`
	UploadURL string `json:"upload_url"`
	ExpiresIn int    `json:"expires_in"`
}

// ProjectService acknowledges project and ticket update frames. No
// persistence contract is defined by this core; implementations decide what,
// if anything, to do with the payload.
type ProjectService interface {
	AcknowledgeUpdate(ctx context.Context, kind string, payload map[string]any) error
}
