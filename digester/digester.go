package digester

import (
	"crypto/sha1" //nolint:gosec // git object ids are sha1
	"encoding/hex"
	"strconv"
)

// BlobID returns the id git assigns to content stored
// as a blob object: sha1 over "blob <len>\x00<content>".
func BlobID(content []byte) string {
	ha := sha1.New() //nolint:gosec // git object ids are sha1

	ha.Write([]byte("blob "))
	ha.Write([]byte(strconv.Itoa(len(content))))
	ha.Write([]byte{0})
	ha.Write(content)

	return hex.EncodeToString(ha.Sum(nil))
}

// Sum returns a sha1 hex digest over parts, each
// terminated by a NUL byte so that ("ab","c") and
// ("a","bc") differ.
func Sum(parts ...string) string {
	ha := sha1.New() //nolint:gosec // identifier, not a security boundary

	for _, p := range parts {
		ha.Write([]byte(p))
		ha.Write([]byte{0})
	}

	return hex.EncodeToString(ha.Sum(nil))
}
