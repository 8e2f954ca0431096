package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// MD5Upper returns the MD5 checksum of s as an uppercase hex string,
// the format of package content-hash folders.
func MD5Upper(s string) string {
	h := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(h[:]))
}
