package models

import (
	"errors"
	"strings"
)

// ErrUserNotFound marks a directory lookup miss. Missing users are a
// terminal data error: logged and surfaced, never queued for retry.
var ErrUserNotFound = errors.New("user not found")

// UserRecord is the directory's source-of-truth user entity. Profile holds
// custom attributes loaded separately via LoadProfileFields.
type UserRecord struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
	IDNumber  string
	Deleted   bool
	Suspended bool
	Profile   map[string]any
}

// Field resolves a mapping source name against the record, built-in columns
// first and custom profile fields second.
func (u *UserRecord) Field(name string) (any, bool) {
	switch strings.ToLower(name) {
	case "id":
		return u.ID, true
	case "username":
		return u.Username, true
	case "email":
		return u.Email, true
	case "firstname":
		return u.FirstName, true
	case "lastname":
		return u.LastName, true
	case "idnumber":
		return u.IDNumber, true
	}

	if u.Profile != nil {
		if v, ok := u.Profile[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// UserEvent is the message shape the host application publishes when a
// directory record is created or updated.
type UserEvent struct {
	UserID    int64  `json:"user_id"`
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
}
