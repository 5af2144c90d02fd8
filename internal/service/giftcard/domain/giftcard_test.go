package domain

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode(t *testing.T) {
	re := regexp.MustCompile(`^[A-HJ-NP-Z2-9]{4}(-[A-HJ-NP-Z2-9]{4}){3}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Regexp(t, re, code)
		assert.False(t, seen[code])
		seen[code] = true
	}
}

func TestNormalizeAndMask(t *testing.T) {
	assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", NormalizeCode(" abcd efgh-jklm npqr "))
	assert.Equal(t, "ABC", NormalizeCode("abc"))
	assert.Equal(t, "****-****-****-NPQR", MaskCode("ABCD-EFGH-JKLM-NPQR"))
	assert.Equal(t, "**", MaskCode("AB"))
}

func TestCheckUsable(t *testing.T) {
	now := time.Now().UTC()
	exp := now.Add(time.Hour)
	g := &GiftCard{Status: StatusActive, ExpiresAt: &exp}
	assert.NoError(t, g.CheckUsable(now))
	assert.ErrorIs(t, g.CheckUsable(exp), ErrGiftCardExpired)

	g.Status = StatusDisabled
	assert.ErrorIs(t, g.CheckUsable(now), ErrGiftCardDisabled)
}
