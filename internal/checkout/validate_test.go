package checkout

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/01moynul/netriver-marketplace/internal/config"
	"github.com/01moynul/netriver-marketplace/internal/models"
)

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"  Ada  ":                      "Ada",
		"<script>alert(1)</script>":    "scriptalert(1)/script",
		"JavaScript:void(0)":           "void(0)",
		`img onerror=steal() src=x`:    "img steal() src=x",
		"12 Marina Road, Lagos Island": "12 Marina Road, Lagos Island",
	}
	for in, want := range tests {
		assert.Equal(t, want, Sanitize(in), in)
	}
}

func TestValidateNormalisesAndAccepts(t *testing.T) {
	v := NewCustomerValidator(Rules{Regions: config.DefaultRegions, Phone: regexp.MustCompile(config.DefaultPhonePattern)})

	got, err := v.Validate(models.Customer{
		Name:    " Tunde <b>Bakare</b> ",
		Email:   "TUNDE@Example.NG",
		Phone:   "+234 903 123 4567",
		Address: "4 Ring Road, Ibadan North",
		State:   "Oyo",
		City:    "Ibadan",
	})
	require.NoError(t, err)
	assert.Equal(t, "Tunde bBakare/b", got.Name)
	assert.Equal(t, "tunde@example.ng", got.Email)
	assert.Equal(t, "+2349031234567", got.Phone)
}

func TestValidateUsesInjectedRules(t *testing.T) {
	v := NewCustomerValidator(Rules{Regions: []string{"Greater Accra"}, Phone: regexp.MustCompile(`^0[235]\d{8}$`)})

	_, err := v.Validate(models.Customer{
		Name: "Kofi Mensah", Email: "kofi@example.com", Phone: "0241234567",
		Address: "7 Oxford Street, Osu", State: "Greater Accra", City: "Accra",
	})
	assert.NoError(t, err)

	_, err = v.Validate(models.Customer{
		Name: "Kofi Mensah", Email: "kofi@example.com", Phone: "08031234567",
		Address: "7 Oxford Street, Osu", State: "Lagos", City: "Accra",
	})
	assert.Error(t, err)
}
