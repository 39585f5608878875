package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

// FormatPhoneForVCard normalizes a raw phone number to E.164 for vCard
// TEL fields. A bare 10-digit US number gains the +1 prefix; an
// 11-digit number starting with 1 gains +. Anything else returns "".
func FormatPhoneForVCard(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	switch d := digits.String(); {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	default:
		return ""
	}
}

// EscapeVCardValue escapes structural characters per RFC 6350 §3.4.
func EscapeVCardValue(value string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\r\n", "\\n",
		"\n", "\\n",
	)
	return r.Replace(value)
}

// ContactCard holds one exportable contact.
type ContactCard struct {
	FullName     string
	Organization string
	Phone        string
	Email        string
}

// BuildVCards renders a vCard 3.0 document for the given contacts.
// Contacts whose phone cannot be normalized keep their email only;
// contacts with neither channel are skipped.
func BuildVCards(cards []ContactCard, now time.Time) string {
	var b strings.Builder
	stamp := now.UTC().Format("20060102T150405Z")
	for _, card := range cards {
		phone := FormatPhoneForVCard(card.Phone)
		if phone == "" && card.Email == "" {
			continue
		}
		b.WriteString("BEGIN:VCARD\r\n")
		b.WriteString("VERSION:3.0\r\n")
		b.WriteString("FN:" + EscapeVCardValue(card.FullName) + "\r\n")
		b.WriteString(fmt.Sprintf("N:%s;;;;\r\n", EscapeVCardValue(card.FullName)))
		if card.Organization != "" {
			b.WriteString("ORG:" + EscapeVCardValue(card.Organization) + "\r\n")
		}
		if phone != "" {
			b.WriteString("TEL;TYPE=CELL:" + phone + "\r\n")
		}
		if card.Email != "" {
			b.WriteString("EMAIL;TYPE=INTERNET:" + EscapeVCardValue(card.Email) + "\r\n")
		}
		b.WriteString("REV:" + stamp + "\r\n")
		b.WriteString("END:VCARD\r\n")
	}
	return b.String()
}

// CardFromPerson builds a ContactCard from a person and their primary
// contact points.
func CardFromPerson(person *models.Person, contacts []models.ContactPoint, org string) ContactCard {
	card := ContactCard{FullName: person.FullName, Organization: org}
	for _, cp := range contacts {
		if !cp.IsActive {
			continue
		}
		switch cp.Type {
		case models.ContactTypePhone, models.ContactTypeWhatsApp:
			if card.Phone == "" || cp.IsPrimary {
				card.Phone = cp.Value
			}
		case models.ContactTypeEmail:
			if card.Email == "" || cp.IsPrimary {
				card.Email = cp.Value
			}
		}
	}
	return card
}
