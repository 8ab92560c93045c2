// Package security provides SSRF protection for outbound HTTP requests made
// to operator-configured webhook URLs.
//
// SafeTransport resolves every destination itself and refuses to dial
// loopback, private, link-local (including the EC2 metadata service) and
// other non-routable ranges. Redirect targets are checked the same way.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// dnsTimeout is the maximum time allowed for DNS resolution.
const dnsTimeout = 500 * time.Millisecond

var (
	// ErrSSRFBlocked is returned when a request targets a blocked IP range.
	ErrSSRFBlocked = errors.New("ssrf: request to blocked IP range")
	// ErrSSRFDNSTimeout is returned when DNS resolution exceeds dnsTimeout.
	ErrSSRFDNSTimeout = errors.New("ssrf: DNS resolution timeout")
	// ErrSSRFDNSFailed is returned when DNS resolution fails entirely.
	ErrSSRFDNSFailed = errors.New("ssrf: DNS resolution failed")
	// ErrSSRFTooManyRedirects is returned when the redirect limit is exceeded.
	ErrSSRFTooManyRedirects = errors.New("ssrf: too many redirects")
	// ErrInsecureScheme is returned by ValidateWebhookURL for non-https URLs.
	ErrInsecureScheme = errors.New("ssrf: webhook URL must use https")
)

// BlockedCIDRs lists the destination ranges no webhook may reach.
var BlockedCIDRs = []string{
	"127.0.0.0/8",    // Localhost
	"10.0.0.0/8",     // Private Class A
	"172.16.0.0/12",  // Private Class B
	"192.168.0.0/16", // Private Class C
	"169.254.0.0/16", // Link-local (AWS Metadata!)
	"0.0.0.0/8",      // Current network
	"224.0.0.0/4",    // Multicast
	"240.0.0.0/4",    // Reserved
	"100.64.0.0/10",  // Shared Address Space (CGN)
	"198.18.0.0/15",  // Benchmark testing
	"fc00::/7",       // IPv6 private
	"fe80::/10",      // IPv6 link-local
	"::1/128",        // IPv6 localhost
}

var blockedNets = sync.OnceValues(func() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(BlockedCIDRs))
	for _, cidr := range BlockedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("ssrf: failed to parse CIDR %q: %w", cidr, err)
		}
		nets = append(nets, ipNet)
	}
	return nets, nil
})

// IsBlockedIP reports whether ip falls inside any blocked range. IPv4-mapped
// IPv6 addresses are checked as IPv4.
func IsBlockedIP(ip net.IP) bool {
	nets, err := blockedNets()
	if err != nil {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, ipNet := range nets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver abstracts DNS resolution for testability.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// resolveSafe resolves host and fails closed unless every address is
// routable. Checking all addresses defeats DNS answers that mix a public IP
// with a private one.
func resolveSafe(ctx context.Context, r Resolver, host string) ([]net.IPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return nil, fmt.Errorf("%w: %s", ErrSSRFBlocked, ip)
		}
		return []net.IPAddr{{IP: ip}}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrSSRFDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrSSRFDNSFailed, host, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrSSRFDNSFailed, host)
	}
	for _, ipAddr := range ips {
		if IsBlockedIP(ipAddr.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrSSRFBlocked, ipAddr.IP, host)
		}
	}
	return ips, nil
}

// SafeTransport is an http.RoundTripper whose dialer only connects to
// addresses that pass IsBlockedIP.
type SafeTransport struct {
	Base *http.Transport

	// Resolver is used for DNS lookups. Nil means net.DefaultResolver.
	Resolver Resolver

	dialer *net.Dialer
}

// NewSafeTransport wraps base, overriding its DialContext. A nil base gets a
// clone of http.DefaultTransport without proxy support, since a proxy would
// dial on our behalf and bypass the check.
func NewSafeTransport(base *http.Transport) (*SafeTransport, error) {
	if _, err := blockedNets(); err != nil {
		return nil, fmt.Errorf("ssrf: initialization failed: %w", err)
	}

	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
		base.Proxy = nil
	}

	st := &SafeTransport{
		Base:   base,
		dialer: &net.Dialer{Timeout: 5 * time.Second},
	}
	base.DialContext = st.safeDialContext
	return st, nil
}

// RoundTrip implements http.RoundTripper.
func (st *SafeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return st.Base.RoundTrip(req)
}

func (st *SafeTransport) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}

	ips, err := resolveSafe(ctx, st.resolver(), host)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, ip := range ips {
		conn, err := st.dialer.DialContext(ctx, network, net.JoinHostPort(ip.IP.String(), port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (st *SafeTransport) resolver() Resolver {
	if st.Resolver != nil {
		return st.Resolver
	}
	return net.DefaultResolver
}

// CheckRedirect returns an http.Client CheckRedirect function that enforces
// maxRedirects and validates every redirect target. A nil resolver means
// net.DefaultResolver.
func CheckRedirect(maxRedirects int, resolver Resolver) func(req *http.Request, via []*http.Request) error {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrSSRFTooManyRedirects, maxRedirects)
		}

		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrSSRFBlocked)
		}
		_, err := resolveSafe(req.Context(), resolver, host)
		return err
	}
}

// ValidateWebhookURL is the pre-flight check applied to a configured webhook
// URL at startup: it must parse, use https and resolve only to routable
// addresses. A nil resolver means net.DefaultResolver.
func ValidateWebhookURL(ctx context.Context, raw string, resolver Resolver) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("ssrf: invalid webhook URL: %w", err)
	}
	if u.Scheme != "https" {
		return ErrInsecureScheme
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("%w: webhook URL has no host", ErrSSRFBlocked)
	}
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	_, err = resolveSafe(ctx, resolver, host)
	return err
}

// NewSafeHTTPClient creates an http.Client using SafeTransport and SSRF-aware
// redirect checking.
func NewSafeHTTPClient(timeout time.Duration, maxRedirects int, resolver Resolver) (*http.Client, error) {
	transport, err := NewSafeTransport(nil)
	if err != nil {
		return nil, err
	}
	transport.Resolver = resolver

	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: CheckRedirect(maxRedirects, resolver),
	}, nil
}
