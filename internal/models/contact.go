package models

import "time"

// ContactType enumerates supported contact channels.
type ContactType string

const (
	ContactTypeEmail    ContactType = "EMAIL"
	ContactTypePhone    ContactType = "PHONE"
	ContactTypeWhatsApp ContactType = "WHATSAPP"
)

// Valid reports whether the contact type is known.
func (t ContactType) Valid() bool {
	switch t {
	case ContactTypeEmail, ContactTypePhone, ContactTypeWhatsApp:
		return true
	}
	return false
}

// ContactPoint is an email/phone/WhatsApp entry owned by a person.
// At most one primary active contact may exist per type per person;
// the service demotes the previous primary when a new one is set.
type ContactPoint struct {
	ID        string      `db:"id" json:"id"`
	PersonID  string      `db:"person_id" json:"person_id"`
	Type      ContactType `db:"type" json:"type"`
	Value     string      `db:"value" json:"value"`
	IsPrimary bool        `db:"is_primary" json:"is_primary"`
	IsActive  bool        `db:"is_active" json:"is_active"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}
