// Package horosafe holds the input guards pinup applies at its edges:
// secret length, path containment for prototype files, identifier shape for
// project and version slugs, outbound URL checks for snapshot rendering, and
// bounded reads.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"path/filepath"
	"strings"
)

// MinSecretLen is the minimum length of the session signing secret (256 bits).
const MinSecretLen = 32

// MaxIdentifierLen bounds project and version identifiers.
const MaxIdentifierLen = 64

var (
	ErrSecretTooShort = fmt.Errorf("horosafe: secret must be at least %d bytes", MinSecretLen)
	ErrPathTraversal  = errors.New("horosafe: path traversal detected")
	ErrSSRF           = errors.New("horosafe: URL targets a private or loopback address")
	ErrUnsafeScheme   = errors.New("horosafe: only http and https schemes are allowed")
	ErrTooLarge       = errors.New("horosafe: input exceeds limit")
)

// ValidateSecret checks that secret is at least MinSecretLen bytes.
func ValidateSecret(secret []byte) error {
	if len(secret) < MinSecretLen {
		return ErrSecretTooShort
	}
	return nil
}

// SafePath joins a request path onto base and refuses anything that would
// land outside it. The returned path is cleaned.
func SafePath(base, rel string) (string, error) {
	if strings.Contains(rel, "..") || strings.ContainsRune(rel, 0) {
		return "", ErrPathTraversal
	}
	root := filepath.Clean(base)
	joined := filepath.Join(root, filepath.Clean("/"+rel))
	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// ValidateIdentifier accepts ASCII letters, digits, underscore, hyphen and
// dot, up to MaxIdentifierLen bytes.
func ValidateIdentifier(s string) error {
	switch {
	case s == "":
		return errors.New("horosafe: identifier must not be empty")
	case len(s) > MaxIdentifierLen:
		return fmt.Errorf("horosafe: identifier too long (max %d)", MaxIdentifierLen)
	case s == "." || s == "..":
		return fmt.Errorf("horosafe: invalid identifier %q", s)
	}
	for _, r := range s {
		if !identChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// ValidateURL checks that rawURL is http(s) with a host that does not
// resolve to a private, link-local or loopback address. A DNS failure is let
// through: the later connection fails on its own.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("horosafe: invalid URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return errors.New("horosafe: URL has no host")
	}
	if ip := net.ParseIP(host); ip != nil {
		if privateIP(ip) {
			return ErrSSRF
		}
		return nil
	}
	addrs, err := net.LookupHost(host)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if ip := net.ParseIP(a); ip != nil && privateIP(ip) {
			return ErrSSRF
		}
	}
	return nil
}

// LimitedReadAll reads r fully but fails with ErrTooLarge past maxBytes.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

func identChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}

var privateNets = func() []*net.IPNet {
	var out []*net.IPNet
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "169.254.0.0/16", "fc00::/7"} {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			out = append(out, n)
		}
	}
	return out
}()

func privateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range privateNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
