package models

import "time"

// Account is a paying end user, keyed by the identity provider's subject id.
type Account struct {
	Identity  string    `json:"identity" bson:"_id"`
	Credits   int64     `json:"credits" bson:"credits"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
