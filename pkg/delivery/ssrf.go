package delivery

import (
	"net"
	"net/url"
	"strings"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

var blockedHostnames = map[string]struct{}{
	"localhost":             {},
	"localhost.localdomain": {},
}

// validateWebhookURL rejects non-HTTP(S) schemes and any host that is,
// by name or as a literal IP, localhost or a loopback/unspecified/
// RFC1918/link-local/unique-local address. Only the literal host in the
// URL is checked: hostnames are not resolved, so a name whose DNS record
// points at a private address is not rejected.
func validateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return cdberr.New(cdberr.Transport, "invalid webhook url")
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return cdberr.New(cdberr.Transport, "only http and https protocols are allowed")
	}

	host := u.Hostname()
	if host == "" {
		return cdberr.New(cdberr.Transport, "webhook url has an empty host")
	}

	if isBlockedHost(host) {
		return cdberr.New(cdberr.Transport, "webhook url cannot target a blocked or private host")
	}
	return nil
}

func isBlockedHost(host string) bool {
	lower := strings.ToLower(host)
	if _, blocked := blockedHostnames[lower]; blocked {
		return true
	}
	if strings.HasSuffix(lower, ".localhost") {
		return true
	}

	ip := net.ParseIP(lower)
	if ip == nil {
		return false
	}
	return isBlockedIP(ip)
}

func isBlockedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		switch {
		case v4[0] == 10:
			return true
		case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
			return true
		case v4[0] == 192 && v4[1] == 168:
			return true
		case v4[0] == 169 && v4[1] == 254:
			return true
		}
		return false
	}
	// fc00::/7 unique local
	if len(ip) == net.IPv6len && ip[0]&0xfe == 0xfc {
		return true
	}
	return false
}
