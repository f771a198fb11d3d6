package util

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9_-]`)

// maxSlugPrefix keeps "passages_<slug>" well under the 63-byte Postgres
// identifier limit so the hash suffix is never truncated away.
const maxSlugPrefix = 24

// UserSlug normalizes a user identity (email) into a filesystem- and
// table-name-safe key. The readable prefix replaces disallowed runes, and a
// hash of the full identity is appended so that identities differing only in
// replaced runes (alice.smith vs alice_smith) still map to distinct slugs.
func UserSlug(identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	slug := slugPattern.ReplaceAllString(identity, "_")
	if len(slug) > maxSlugPrefix {
		slug = slug[:maxSlugPrefix]
	}
	sum := sha256.Sum256([]byte(identity))
	return slug + "_" + hex.EncodeToString(sum[:4])
}
