package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// FingerprintFunc computes a device-derived pseudo-identifier. It is invoked
// once per process; a failure yields an empty fingerprint, which downstream
// code treats as a valid degenerate anonymous subject.
type FingerprintFunc func(ctx context.Context) (string, error)

// HostFingerprint derives a stable fingerprint from host attributes: hostname,
// platform, and hardware addresses. The result is a short hex digest, stable
// across restarts on the same machine but carrying no reversible host detail.
func HostFingerprint(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	host, err := os.Hostname()
	if err != nil {
		return "", err
	}

	parts := []string{host, runtime.GOOS, runtime.GOARCH}

	if ifaces, err := net.Interfaces(); err == nil {
		macs := make([]string, 0, len(ifaces))
		for _, ifc := range ifaces {
			if hw := ifc.HardwareAddr.String(); hw != "" {
				macs = append(macs, hw)
			}
		}
		sort.Strings(macs)
		parts = append(parts, macs...)
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("fp-%s", hex.EncodeToString(sum[:16])), nil
}
