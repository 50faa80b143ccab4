// Package urlsafe implements the URL safety gate that guards every outbound
// fetch. All checks fail closed: an unparseable URL or an unresolved hostname
// is a denial, never an "unknown, proceed".
package urlsafe

import (
	"context"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Reason is the machine-readable cause attached to every denial. Callers
// branch on it for logging and policy, never to turn a deny into an allow.
type Reason string

// Denial reasons.
const (
	ReasonInvalidURL       Reason = "invalid_url"
	ReasonDNSUnresolved    Reason = "dns_unresolved"
	ReasonPrivateIP        Reason = "private_ip"
	ReasonCloudMetadata    Reason = "cloud_metadata"
	ReasonRobotsDisallowed Reason = "robots_disallowed"
)

// Decision is the outcome of a gate check.
type Decision struct {
	Allowed bool
	Reason  Reason
	Detail  string
}

// Allow returns a permissive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denial with the given reason.
func Deny(reason Reason, detail string) Decision {
	return Decision{Reason: reason, Detail: detail}
}

// Resolver resolves hostnames to addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

const maxURLLength = 2048

var blockedV4Networks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10", // carrier-grade NAT
	"198.18.0.0/15", // benchmark testing
)

var blockedV6Networks = mustParseCIDRs(
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

// Known cloud metadata endpoints (AWS/GCP/Azure IMDS, AWS IPv6 IMDS).
var metadataAddrs = map[string]struct{}{
	"169.254.169.254": {},
	"fd00:ec2::254":   {},
}

var metadataHostnames = map[string]struct{}{
	"metadata.google.internal": {},
	"metadata.google.com":      {},
	"metadata.azure.com":       {},
	"metadata":                 {},
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// Gate validates URLs before they are handed to a fetcher. DNS and IP checks
// are stateless and recomputed on every call; the robots policy is the only
// component with mutable shared state (its per-domain TTL cache).
type Gate struct {
	resolver Resolver
	robots   *RobotsPolicy
	logger   *zap.Logger
}

// New builds a Gate. A nil resolver falls back to net.DefaultResolver; a nil
// robots policy disables the robots.txt check entirely.
func New(resolver Resolver, robots *RobotsPolicy, logger *zap.Logger) *Gate {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		resolver: resolver,
		robots:   robots,
		logger:   logger,
	}
}

// Check runs the full gate: syntactic validation, DNS resolution, private and
// metadata address screening, and (when configured) the robots.txt policy
// check. A fetch attempted on a denied URL is a defect in the caller.
func (g *Gate) Check(ctx context.Context, rawURL string) Decision {
	decision := g.CheckSecurity(ctx, rawURL)
	if !decision.Allowed || g.robots == nil {
		return decision
	}
	return g.checkRobots(ctx, rawURL)
}

// CheckSecurity runs only the security checks, skipping robots.txt. Callers
// that explicitly override politeness still pass through every security
// check; security denials are never overridable.
func (g *Gate) CheckSecurity(ctx context.Context, rawURL string) Decision {
	if rawURL == "" || len(rawURL) > maxURLLength {
		return Deny(ReasonInvalidURL, "empty or oversized URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Deny(ReasonInvalidURL, "unparseable URL")
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return Deny(ReasonInvalidURL, "scheme "+scheme+" not allowed")
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return Deny(ReasonInvalidURL, "missing hostname")
	}
	if _, blocked := metadataHostnames[hostname]; blocked {
		return Deny(ReasonCloudMetadata, "metadata hostname "+hostname)
	}
	if hostname == "localhost" {
		return Deny(ReasonPrivateIP, "loopback hostname")
	}

	if ip := net.ParseIP(hostname); ip != nil {
		return checkAddress(ip)
	}

	addrs, err := g.resolver.LookupIPAddr(ctx, hostname)
	if err != nil || len(addrs) == 0 {
		g.logger.Warn("gate deny: hostname did not resolve", zap.String("host", hostname))
		return Deny(ReasonDNSUnresolved, "hostname "+hostname+" did not resolve")
	}
	// Every resolved address must pass; a single bad record denies the URL.
	for _, addr := range addrs {
		if decision := checkAddress(addr.IP); !decision.Allowed {
			g.logger.Warn("gate deny: resolved address blocked",
				zap.String("host", hostname),
				zap.String("ip", addr.IP.String()),
				zap.String("reason", string(decision.Reason)),
			)
			return decision
		}
	}
	return Allow()
}

func (g *Gate) checkRobots(ctx context.Context, rawURL string) Decision {
	allowed, err := g.robots.Allowed(ctx, rawURL)
	if err != nil {
		// Robots unavailability is a politeness gap, not a security hole.
		g.logger.Warn("robots check failed; allowing", zap.String("url", rawURL), zap.Error(err))
		return Allow()
	}
	if !allowed {
		return Deny(ReasonRobotsDisallowed, "path disallowed by robots.txt")
	}
	return Allow()
}

func checkAddress(ip net.IP) Decision {
	// To4 also unwraps IPv4-mapped IPv6 forms such as ::ffff:127.0.0.1.
	if v4 := ip.To4(); v4 != nil {
		if _, meta := metadataAddrs[v4.String()]; meta {
			return Deny(ReasonCloudMetadata, "metadata address "+v4.String())
		}
		for _, network := range blockedV4Networks {
			if network.Contains(v4) {
				return Deny(ReasonPrivateIP, "address "+v4.String()+" in "+network.String())
			}
		}
		return Allow()
	}
	if _, meta := metadataAddrs[ip.String()]; meta {
		return Deny(ReasonCloudMetadata, "metadata address "+ip.String())
	}
	for _, network := range blockedV6Networks {
		if network.Contains(ip) {
			return Deny(ReasonPrivateIP, "address "+ip.String()+" in "+network.String())
		}
	}
	return Allow()
}
