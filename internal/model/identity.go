package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Identity binds a caller to a user and a session.
type Identity struct {
	UserID    string
	SessionID string
}

// NewUserID returns a fresh anonymous user id ("user_" + random hex).
func NewUserID() string {
	return "user_" + randomSuffix()
}

// NewSessionID returns a fresh session id ("session_" + random hex).
func NewSessionID() string {
	return "session_" + randomSuffix()
}

// NewConversationID returns a time-based conversation id with a random tail.
func NewConversationID(now time.Time) string {
	return fmt.Sprintf("conv_%d_%s", now.Unix(), randomSuffix()[:4])
}

// NewIdentity generates both ids.
func NewIdentity() Identity {
	return Identity{UserID: NewUserID(), SessionID: NewSessionID()}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
