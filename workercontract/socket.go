package workercontract

import (
	"crypto/sha256"
	"encoding/base32"
	"path/filepath"
	"strings"
)

// Unix socket paths are limited by sun_path: 104 bytes on Darwin, 108 on
// Linux. Stay under the smaller limit (minus the NUL) so socket dirs work
// on both.
const maxSocketPath = 103

// SocketPath derives the socket file path for a runtime: <dir>/<id>.sock.
// When the joined path would exceed the sun_path limit, the basename is
// replaced with a digest of the runtime id so the path stays addressable.
func SocketPath(dir, runtimeID string) string {
	path := filepath.Join(dir, runtimeID+".sock")
	if len(path) <= maxSocketPath {
		return path
	}

	sum := sha256.Sum256([]byte(runtimeID))
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	short := strings.ToLower(enc.EncodeToString(sum[:]))[:16]
	return filepath.Join(dir, short+".sock")
}
