package bk

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// HashPath returns the content-hash name of a source path. The path is
// normalized first so separator style, case and trailing separators do not
// change the result. The hash only names folders; it is not a security boundary.
func HashPath(path string, isDir bool) string {
	sum := md5.Sum([]byte(normalizePath(path, isDir)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// normalizePath lower-cases path, converts backslashes to slashes and keeps a
// single trailing slash only for directories.
func normalizePath(path string, isDir bool) string {
	p := strings.ToLower(strings.ReplaceAll(path, `\`, "/"))
	p = strings.TrimRight(p, "/")
	if isDir {
		p += "/"
	}
	return p
}

// HashPaths maps every source directory to its content hash.
func HashPaths(sources []string) map[string]string {
	hashes := make(map[string]string, len(sources))
	for _, s := range sources {
		hashes[s] = HashPath(s, true)
	}
	return hashes
}
