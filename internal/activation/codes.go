package activation

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

// asSimpleText encodes a digest as URL- and filename-safe text: base64
// with "/" → "-", "+" → "_" and padding dropped.
func asSimpleText(data []byte) string {
	enc := base64.StdEncoding.EncodeToString(data)
	enc = strings.NewReplacer("/", "-", "+", "_", "=", "").Replace(enc)
	return enc
}

func doMakeHash(src string) string {
	h := sha256.New()
	for i := 0; i < 10; i++ {
		h.Write([]byte(src))
	}
	return asSimpleText(h.Sum(nil))
}

// MakeHash derives the on-disk name for a reset code by iterating the
// digest, so holding the stored name does not reveal the code+pin pair.
func MakeHash(src string) string {
	for i := 0; i < 1000; i++ {
		src = doMakeHash(src)
	}
	return src
}

// MakeResetCode mints the random single-use code mailed to the user.
func MakeResetCode(user string) (string, error) {
	buf := make([]byte, 500)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reset code entropy: %w", err)
	}
	h := sha256.New()
	h.Write(buf)
	h.Write([]byte(user))
	return asSimpleText(h.Sum(nil)), nil
}
