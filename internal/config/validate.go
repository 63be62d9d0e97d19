package config

import (
	"net/mail"
	"strconv"
	"strings"

	"github.com/hackerrun/hackerrun/internal/errdefs"
)

// ValidateIPv4 enforces a strict dotted-quad shape: four decimal octets,
// each in 0-255. Hostnames are rejected on purpose — the sslip.io domain
// derivation only works with a literal address.
func ValidateIPv4(addr string) error {
	parts := strings.Split(addr, ".")
	if len(parts) != 4 {
		return errdefs.Validation("invalid server address %q: expected a dotted-quad IPv4 address", addr)
	}
	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return errdefs.Validation("invalid server address %q: expected a dotted-quad IPv4 address", addr)
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return errdefs.Validation("invalid server address %q: octet %q out of range", addr, part)
		}
	}
	return nil
}

// ValidatePort accepts a decimal TCP port in 1-65535.
func ValidatePort(port string) error {
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return errdefs.Validation("invalid port %q: expected a number between 1 and 65535", port)
	}
	return nil
}

// ValidateEmail checks the certificate contact address. The ACME endpoint
// rejects garbage addresses with an opaque error much later, so catch the
// obvious cases up front.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errdefs.Validation("invalid email address %q", email)
	}
	return nil
}
