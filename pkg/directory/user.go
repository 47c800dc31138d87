package directory

import "time"

// User is the durable local identity created from a Google login.
//
// ID is assigned by the backing store on first insert and never changes.
// ExternalID holds the provider subject ("sub") and is unique and
// immutable after creation. The remaining profile fields are refreshed
// from the latest claims on every login.
type User struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"google_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"name"`
	PictureURL  string    `json:"picture,omitempty"`
	Locale      string    `json:"locale,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
