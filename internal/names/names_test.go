package names

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice.webmail", Normalize(" Alice.Webmail. "))
	assert.Equal(t, "", Normalize("."))
}

func TestToASCII(t *testing.T) {
	assert.Equal(t, "xn--belgi-rsa.be", ToASCII("belgië.be"))
	assert.Equal(t, "plain.example", ToASCII("Plain.Example."))
	assert.Equal(t, "", ToASCII("bad domain"))
}

func TestIsValidAccount(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"alice", true},
		{"alice.webmail", true},
		{"a-b.c-d", true},
		{"belgië", true},
		{"", false},
		{"-alice", false},
		{"alice-", false},
		{"al ice", false},
		{"alice..webmail", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ok, IsValidAccount(tc.name), tc.name)
	}
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("alice@example.com"))
	assert.True(t, IsValidEmail("a.b+c@sub.example.com"))
	assert.False(t, IsValidEmail("alice"))
	assert.False(t, IsValidEmail("alice@"))
	assert.False(t, IsValidEmail("@example.com"))
}

func TestSplitEmail(t *testing.T) {
	local, dom := SplitEmail("Alice@Example.COM.")
	assert.Equal(t, "Alice", local)
	assert.Equal(t, "example.com", dom)
}
