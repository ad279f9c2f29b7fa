// Package machineid derives a stable identifier for the host the hook runs
// on, and signs/verifies that identifier so the webhook side can bind an
// approval row to the machine that created it.
package machineid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/user"
	"runtime"
	"strings"
)

// FingerprintLength is the length, in hex characters, of a derived
// fingerprint.
const FingerprintLength = 32

// machineIDPaths are checked in order for a platform machine-id file. Only
// the first one that exists and is readable contributes to the fingerprint.
var machineIDPaths = []string{
	"/etc/machine-id",
	"/var/lib/dbus/machine-id",
}

// hardwareUUIDPaths are checked the same way, for platforms that expose a
// hardware UUID through the filesystem (Linux DMI).
var hardwareUUIDPaths = []string{
	"/sys/class/dmi/id/product_uuid",
}

// DeriveFingerprint computes a stable 32-hex-character fingerprint for the
// current machine and user, from hostname, username, architecture/platform,
// the OS machine-id file (where readable), a hardware UUID (where readable),
// and the home directory.
//
// The fingerprint is stable across invocations: every input is either fixed
// per-machine or fixed per-user, and none of it depends on process state.
func DeriveFingerprint() (string, error) {
	parts := []string{}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	parts = append(parts, hostname)

	username := "unknown-user"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	parts = append(parts, username)

	parts = append(parts, runtime.GOARCH, runtime.GOOS)

	if id := readFirst(machineIDPaths); id != "" {
		parts = append(parts, id)
	}
	if id := readFirst(hardwareUUIDPaths); id != "" {
		parts = append(parts, id)
	}

	home, err := os.UserHomeDir()
	if err == nil {
		parts = append(parts, home)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])[:FingerprintLength], nil
}

func readFirst(paths []string) string {
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}
