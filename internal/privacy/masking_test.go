package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPhoneNumber(t *testing.T) {
	assert.Equal(t, "", MaskPhoneNumber(""))
	assert.Equal(t, "***", MaskPhoneNumber("123"))
	assert.Equal(t, "*******4567", MaskPhoneNumber("15551234567"))
	assert.Equal(t, "+*******4567", MaskPhoneNumber("+15551234567"))
	assert.Equal(t, "+****", MaskPhoneNumber("+1234"))
}

func TestMaskProviderMessageID(t *testing.T) {
	assert.Equal(t, "", MaskProviderMessageID(""))
	assert.Equal(t, "********", MaskProviderMessageID("short-id"))
	assert.Equal(t, "**********34567890", MaskProviderMessageID("wamid.123434567890"))
}
