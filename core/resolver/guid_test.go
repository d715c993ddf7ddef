package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGUID(t *testing.T) {
	const canonical = "917393e3-1b1e-5cef-ace4-edaa54e1f810"
	cases := []struct{ in, want string }{
		{"  917393E3-1B1E-5CEF-ACE4-EDAA54E1F810 ", canonical},
		{"{917393e3-1b1e-5cef-ace4-edaa54e1f810}", canonical},
		{"urn:uuid:917393e3-1b1e-5cef-ace4-edaa54e1f810", canonical},
		{" not-a-uuid ", "not-a-uuid"},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeGUID(tc.in), tc.in)
	}
}
