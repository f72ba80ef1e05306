package object

import "strings"

// ObjectKey maps a storage path onto a bucket key. Only a leading slash is
// dropped so the key stays byte-equal to the recorded path.
func ObjectKey(path string) string {
	return strings.TrimPrefix(path, "/")
}
