package utils

import (
	"fmt"
	"math/rand"
)

const inviteCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RandomPin returns a 6-digit group PIN in [100000, 999999]. Uniqueness is
// the caller's problem (query-and-reroll at group creation).
func RandomPin() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}

// RandomInviteCode returns an 8-character invite token. Ambiguous characters
// (0/O, 1/I) are left out of the charset.
func RandomInviteCode() string {
	code := make([]byte, 8)
	for i := range code {
		code[i] = inviteCharset[rand.Intn(len(inviteCharset))]
	}
	return string(code)
}
