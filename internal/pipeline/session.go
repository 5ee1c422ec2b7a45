package pipeline

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Session is one submitted call: an audio file and the requested stages.
type Session struct {
	ID        string
	AudioPath string
	Requested StageSet
}

// NewSession assigns a random ID.
func NewSession(audioPath string, requested StageSet) Session {
	return Session{ID: uuid.NewString(), AudioPath: audioPath, Requested: requested}
}

// Validate checks the fields Run relies on.
func (s Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return errors.New("session id is required")
	}
	if strings.TrimSpace(s.AudioPath) == "" {
		return errors.New("session audio path is required")
	}
	return nil
}
