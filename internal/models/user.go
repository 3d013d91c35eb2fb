package models

import "time"

type CreatedVia string

const (
	CreatedViaDiscord CreatedVia = "discord"
	CreatedViaSignup  CreatedVia = "signup"
)

type User struct {
	ID           string
	DiscordID    *string
	Email        string
	PasswordHash []byte
	DisplayName  string
	CreatedVia   CreatedVia
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is a long-lived opaque credential. Only the sha256 of the
// token is stored; the raw value is returned to the client once.
type Session struct {
	ID        string
	UserID    string
	TokenHash []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CodeKind separates the two ephemeral code spaces so a code issued
// for one purpose cannot be redeemed for the other.
type CodeKind string

const (
	CodeKindLink    CodeKind = "link"
	CodeKindConnect CodeKind = "connect"
)

type EphemeralCode struct {
	ID        string
	UserID    string
	Kind      CodeKind
	CodeHash  []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}
