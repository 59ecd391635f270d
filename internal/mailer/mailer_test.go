package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitHeaderBlock(t *testing.T) {
	header, body := splitHeaderBlock(
		"Subject: Welcome aboard\n" +
			"To: alice@mail.example\n" +
			"To: audit@mail.example\n" +
			"\n" +
			"<p>Hello</p>\n")

	assert.Equal(t, "Welcome aboard", header["Subject"])
	assert.Equal(t, "alice@mail.example,audit@mail.example", header["To"])
	assert.Equal(t, "<p>Hello</p>\n", body)
}

func TestSplitHeaderBlockNoHeaders(t *testing.T) {
	header, body := splitHeaderBlock("<p>just a body</p>")
	assert.Empty(t, header)
	assert.Equal(t, "<p>just a body</p>", body)
}

func TestSplitHeaderBlockNonMultilineOverwrites(t *testing.T) {
	header, _ := splitHeaderBlock("Subject: one\nSubject: two\n\nbody")
	assert.Equal(t, "two", header["Subject"])
}
