package users

import (
	"time"

	"github.com/google/uuid"
)

type ContextKey string

const UserKey ContextKey = "user"

// User is the identity handed to us by the auth collaborator. Tag
// disambiguates players sharing a display name.
type User struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Tag       string    `db:"tag" json:"tag"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

func (u User) DisplayName() string {
	if u.Tag == "" {
		return u.Username
	}
	return u.Username + "#" + u.Tag
}
