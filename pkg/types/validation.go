package types

import (
	"regexp"
)

// Compiled once at package initialization.
var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)
	roomIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)
)

// MaxContentBytes caps the content field of chat and AI request frames.
const MaxContentBytes = 65536

// IsValidUsername reports whether name is acceptable as a chat identity.
func IsValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}

// IsValidRoomID reports whether id is acceptable as a room identifier.
func IsValidRoomID(id string) bool {
	return roomIDRegex.MatchString(id)
}

// IsValidFrameType reports whether t is one of the inbound frame types the
// dispatcher knows how to route.
func IsValidFrameType(t string) bool {
	switch t {
	case FrameChatMessage, FrameUserTyping, FrameRoomJoin, FrameRoomLeave,
		FrameAuthentication, FrameAIRequest, FrameFileUploadRequest,
		FrameProjectUpdate, FrameTicketUpdate, FramePing:
		return true
	}
	return false
}

// ValidateChat checks the fields a chat_message frame must carry.
func (f *Frame) ValidateChat() error {
	if f.Username == "" {
		return ErrMissingUsername
	}
	if !IsValidUsername(f.Username) {
		return ErrInvalidUsername
	}
	if f.Content == "" {
		return ErrMissingContent
	}
	if len(f.Content) > MaxContentBytes {
		return ErrContentTooLarge
	}
	if f.RoomID != "" && !IsValidRoomID(f.RoomID) {
		return ErrInvalidRoomID
	}
	return nil
}

// ValidateRoom checks the fields a room_join or room_leave frame must carry.
func (f *Frame) ValidateRoom() error {
	if f.RoomID == "" {
		return ErrMissingRoomID
	}
	if !IsValidRoomID(f.RoomID) {
		return ErrInvalidRoomID
	}
	return nil
}

// ValidateAuthentication checks the fields an authentication frame must carry.
func (f *Frame) ValidateAuthentication() error {
	if f.Username == "" {
		return ErrMissingUsername
	}
	if !IsValidUsername(f.Username) {
		return ErrInvalidUsername
	}
	return nil
}
