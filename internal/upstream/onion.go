package upstream

import (
	"encoding/base32"
	"net"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	onionSuffix = ".onion"

	// onionV3Length is the length of a v3 address label: 56 base32 characters.
	onionV3Length = 56

	onionV3Version = 0x03
)

var onionChecksumPrefix = []byte(".onion checksum")

// IsOnionHost reports whether host (with or without a port) is a Tor onion
// service name. Such hosts are only reachable through Tor.
func IsOnionHost(host string) bool {
	return strings.HasSuffix(hostname(host), onionSuffix)
}

// ValidOnionHost reports whether host is a well-formed v3 onion service
// name with a correct checksum. Subdomains of the service are accepted.
func ValidOnionHost(host string) bool {
	name := strings.TrimSuffix(hostname(host), onionSuffix)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if len(name) != onionV3Length {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(name))
	if err != nil || len(decoded) != 35 {
		return false
	}
	// pubkey (32 bytes) || checksum (2 bytes) || version (1 byte)
	pubkey, checksum, version := decoded[:32], decoded[32:34], decoded[34]
	if version != onionV3Version {
		return false
	}

	data := make([]byte, 0, len(onionChecksumPrefix)+len(pubkey)+1)
	data = append(data, onionChecksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)
	sum := sha3.Sum256(data)
	return checksum[0] == sum[0] && checksum[1] == sum[1]
}

func hostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(strings.ToLower(host), ".")
}
