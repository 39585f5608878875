package export

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markazapp/markaz-admin-api/internal/models"
)

func TestFormatPhoneForVCard(t *testing.T) {
	assert.Equal(t, "+16125551234", FormatPhoneForVCard("(612) 555-1234"))
	assert.Equal(t, "+16125551234", FormatPhoneForVCard("1-612-555-1234"))
	assert.Equal(t, "", FormatPhoneForVCard("555-1234"))
	assert.Equal(t, "", FormatPhoneForVCard("2-612-555-1234"))
	assert.Equal(t, "", FormatPhoneForVCard(""))
}

func TestEscapeVCardValue(t *testing.T) {
	assert.Equal(t, `Ali\, Hassan\; Jr.`, EscapeVCardValue("Ali, Hassan; Jr."))
	assert.Equal(t, `a\\b`, EscapeVCardValue(`a\b`))
	assert.Equal(t, `line1\nline2`, EscapeVCardValue("line1\nline2"))
	assert.Equal(t, `line1\nline2`, EscapeVCardValue("line1\r\nline2"))
}

func TestBuildVCardsSkipsUnreachableContacts(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := BuildVCards([]ContactCard{
		{FullName: "Amina Yusuf", Phone: "6125551234", Organization: "Markaz"},
		{FullName: "No Channels"},
		{FullName: "Email Only", Email: "parent@example.com"},
	}, now)

	assert.Equal(t, 2, strings.Count(doc, "BEGIN:VCARD"))
	assert.NotContains(t, doc, "No Channels")
	assert.Contains(t, doc, "FN:Amina Yusuf\r\n")
	assert.Contains(t, doc, "TEL;TYPE=CELL:+16125551234\r\n")
	assert.Contains(t, doc, "EMAIL;TYPE=INTERNET:parent@example.com\r\n")
	assert.Contains(t, doc, "REV:20250301T120000Z\r\n")
}

func TestBuildVCardsKeepsEmailWhenPhoneUnparseable(t *testing.T) {
	doc := BuildVCards([]ContactCard{
		{FullName: "Partial", Phone: "ext. 42", Email: "partial@example.com"},
	}, time.Now())

	require.Contains(t, doc, "BEGIN:VCARD")
	assert.NotContains(t, doc, "TEL;")
	assert.Contains(t, doc, "EMAIL;TYPE=INTERNET:partial@example.com\r\n")
}

func TestCardFromPersonPrefersPrimaryContacts(t *testing.T) {
	person := &models.Person{ID: "p-1", FullName: "Amina Yusuf"}
	contacts := []models.ContactPoint{
		{Type: models.ContactTypePhone, Value: "6125550001", IsActive: true},
		{Type: models.ContactTypeWhatsApp, Value: "6125550002", IsActive: true, IsPrimary: true},
		{Type: models.ContactTypeEmail, Value: "old@example.com", IsActive: false, IsPrimary: true},
		{Type: models.ContactTypeEmail, Value: "current@example.com", IsActive: true},
	}

	card := CardFromPerson(person, contacts, "Markaz")
	assert.Equal(t, "Amina Yusuf", card.FullName)
	assert.Equal(t, "Markaz", card.Organization)
	assert.Equal(t, "6125550002", card.Phone, "primary whatsapp number wins over the first phone")
	assert.Equal(t, "current@example.com", card.Email, "inactive contacts are ignored")
}
