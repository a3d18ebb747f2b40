package auth

// Package auth contains domain-level types for the client-side session core.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents the account type of a platform user.
// Keep string form for easy persistence and JSON exchange with the backend.
type Role string

const (
	RoleVolunteer Role = "volunteer"
	RoleShelter   Role = "shelter"
	RoleAdmin     Role = "admin"
)

// IsValid reports whether r is one of the known account types.
func (r Role) IsValid() bool {
	switch r {
	case RoleVolunteer, RoleShelter, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole parses a user type string, ignoring case and surrounding spaces.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}

// DonationStats is the per-user donation summary the backend attaches to a user.
type DonationStats struct {
	TotalDonated   float64    `json:"totalDonated"`
	DonationCount  int        `json:"donationCount"`
	LastDonationAt *time.Time `json:"lastDonationAt,omitempty"`
}

// User is the authenticated user record owned by the session.
type User struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone,omitempty"`
	Address       string         `json:"address,omitempty"`
	UserType      Role           `json:"userType"`
	ShelterID     string         `json:"shelterId,omitempty"`
	Avatar        string         `json:"avatar,omitempty"`
	DonationStats *DonationStats `json:"donationStats,omitempty"`
}

// Normalize fills defaults for records that omit optional attributes.
// A record without a user type is a volunteer, the platform's default account.
func (u *User) Normalize() {
	u.ID = strings.TrimSpace(u.ID)
	if u.UserType == "" {
		u.UserType = RoleVolunteer
	}
}

// Validate reports whether the record has the shape a session requires.
func (u User) Validate() bool {
	if strings.TrimSpace(u.ID) == "" {
		return false
	}
	return u.UserType == "" || u.UserType.IsValid()
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (u User) Clone() User {
	if u.DonationStats != nil {
		stats := *u.DonationStats
		if stats.LastDonationAt != nil {
			at := *stats.LastDonationAt
			stats.LastDonationAt = &at
		}
		u.DonationStats = &stats
	}
	return u
}

// Session pairs a bearer token with the user record it authorizes.
// Token and User are always persisted and cleared together.
type Session struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Valid is true only for a complete pair.
func (s Session) Valid() bool {
	return strings.TrimSpace(s.Token) != "" && s.User.Validate()
}

// Phase is the coarse state of the authentication state machine.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseAuthenticated Phase = "authenticated"
	PhaseAnonymous     Phase = "anonymous"
)

// Snapshot is an immutable view of the authentication state.
// For every settled snapshot IsAuthenticated == (CurrentUser != nil).
type Snapshot struct {
	CurrentUser     *User  `json:"currentUser"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	Loading         bool   `json:"loading"`
	Error           string `json:"error,omitempty"`
	Phase           Phase  `json:"phase"`
}

// HasRole reports whether the snapshot holds a user of the given type.
func (s Snapshot) HasRole(r Role) bool {
	return s.CurrentUser != nil && s.CurrentUser.UserType == r
}

// Attachment is a binary file sent alongside structured fields (e.g. an avatar).
type Attachment struct {
	FieldName   string
	FileName    string
	ContentType string
	Data        []byte
}

// ProfileFields is the structured part of a profile update.
// Empty values are not sent.
type ProfileFields struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

// ProfileUpdate is a tagged variant: plain fields, or fields with an attachment.
// The transport chooses JSON or multipart encoding from the variant.
type ProfileUpdate struct {
	Fields     ProfileFields
	attachment *Attachment
}

// FieldsUpdate builds the structured-fields variant.
func FieldsUpdate(f ProfileFields) ProfileUpdate {
	return ProfileUpdate{Fields: f}
}

// FieldsWithAttachmentUpdate builds the variant that carries a binary attachment.
func FieldsWithAttachmentUpdate(f ProfileFields, a Attachment) ProfileUpdate {
	if a.FieldName == "" {
		a.FieldName = "avatar"
	}
	return ProfileUpdate{Fields: f, attachment: &a}
}

// Attachment returns the attachment and whether this is the attachment variant.
func (p ProfileUpdate) Attachment() (Attachment, bool) {
	if p.attachment == nil {
		return Attachment{}, false
	}
	return *p.attachment, true
}

// Registration carries the sign-up form. Avatar is optional.
type Registration struct {
	Name      string
	Email     string
	Password  string
	Phone     string
	Address   string
	UserType  Role
	ShelterID string
	Avatar    *Attachment
}
