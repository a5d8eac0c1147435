package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/franchise-integration-hub/internal/model"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "trunk prefix", input: "89991234567", want: "+79991234567", wantOK: true},
		{name: "bare ten digits", input: "9991234567", want: "+79991234567", wantOK: true},
		{name: "too short", input: "123", wantOK: false},
		{name: "formatted local", input: "8 (999) 123-45-67", want: "+79991234567", wantOK: true},
		{name: "international", input: "+7 999 123 45 67", want: "+79991234567", wantOK: true},
		{name: "foreign number kept", input: "+44 20 7946 0958", want: "+442079460958", wantOK: true},
		{name: "eleven digits without trunk", input: "79991234567", want: "+79991234567", wantOK: true},
		{name: "empty", input: "", wantOK: false},
		{name: "letters only", input: "call me", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NormalizePhone(tc.input)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	for _, raw := range []string{"89991234567", "9991234567", "+7 (999) 123-45-67", "+442079460958", "380501234567"} {
		once, ok := NormalizePhone(raw)
		require.True(t, ok, raw)
		twice, ok := NormalizePhone(once)
		require.True(t, ok, raw)
		assert.Equal(t, once, twice, raw)
	}
}

func TestExtractContacts(t *testing.T) {
	found := ExtractContacts("Hi! Call me at 8 (999) 123-45-67 or mail Ivan.Petrov@Example.com.")
	assert.Equal(t, "+79991234567", found.Phone)
	assert.Equal(t, "ivan.petrov@example.com", found.Email)

	none := ExtractContacts("order #12 please, 3 pcs")
	assert.Empty(t, none.Phone)
	assert.Empty(t, none.Email)

	assert.Equal(t, ExtractedContacts{}, ExtractContacts("   "))
}

func TestDeriveIdentity_NamePriority(t *testing.T) {
	tests := []struct {
		name string
		msg  model.CanonicalMessage
		want string
	}{
		{
			name: "username wins",
			msg:  model.CanonicalMessage{Channel: model.ChannelTelegram, ExternalUserID: "1", Username: "ivan_p", FirstName: "Ivan"},
			want: "ivan_p",
		},
		{
			name: "first and last",
			msg:  model.CanonicalMessage{Channel: model.ChannelTelegram, ExternalUserID: "1", FirstName: "Ivan", LastName: "Petrov"},
			want: "Ivan Petrov",
		},
		{
			name: "first only",
			msg:  model.CanonicalMessage{Channel: model.ChannelVK, ExternalUserID: "1", FirstName: "Ivan"},
			want: "Ivan",
		},
		{
			name: "synthesized from long id",
			msg:  model.CanonicalMessage{Channel: model.ChannelWhatsApp, ExternalUserID: "79991234567"},
			want: "WhatsApp user 79991234",
		},
		{
			name: "synthesized from short id",
			msg:  model.CanonicalMessage{Channel: model.ChannelAvito, ExternalUserID: "42"},
			want: "Avito user 42",
		},
		{
			name: "no id at all",
			msg:  model.CanonicalMessage{Channel: model.ChannelMax},
			want: "Max user",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := DeriveIdentity(tc.msg)
			assert.Equal(t, tc.want, c.Name)
			assert.NotEmpty(t, c.Name)
		})
	}
}

func TestDeriveIdentity_StructuredFieldsWin(t *testing.T) {
	c := DeriveIdentity(model.CanonicalMessage{
		Channel:        model.ChannelAvito,
		ExternalUserID: "u-1",
		Username:       "Olga",
		Phone:          "89990000000",
		MessageText:    "my other number is 8 911 111 22 33, email olga@example.com",
	})

	assert.Equal(t, "+79990000000", c.Phone)
	assert.Equal(t, "olga@example.com", c.Email)
	assert.Equal(t, "u-1", c.PlatformID)
	assert.True(t, c.Usable())
	require.NotNil(t, c.PhonePtr())
	require.NotNil(t, c.EmailPtr())
}

func TestDeriveIdentity_TextFillsGaps(t *testing.T) {
	c := DeriveIdentity(model.CanonicalMessage{
		Channel:        model.ChannelInstagram,
		ExternalUserID: "17841400000",
		MessageText:    "price? my phone 9991234567",
	})
	assert.Equal(t, "+79991234567", c.Phone)
	assert.Empty(t, c.Email)
	assert.Nil(t, c.EmailPtr())
}

func TestContact_Usable(t *testing.T) {
	assert.False(t, Contact{}.Usable())
	assert.False(t, Contact{Name: "Ivan"}.Usable())
	assert.False(t, Contact{Name: "   ", Phone: "+79991234567"}.Usable())
	assert.True(t, Contact{Name: "Ivan", Email: "i@example.com"}.Usable())
	assert.True(t, Contact{Name: "Ivan", PlatformID: "123"}.Usable())
}
