package signals

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/miekg/dns"

	"catchphish/internal/models"
)

// DefaultDNSServer is used when no resolver is configured.
const DefaultDNSServer = "8.8.8.8:53"

// DNSProvider resolves A, NS and MX records. It does not contribute to the
// score; the addresses appear in incident reports and drive fuzzy search.
type DNSProvider struct {
	server string
	client *dns.Client
}

// NewDNSProvider creates a resolver against server (host or host:port).
func NewDNSProvider(server string) *DNSProvider {
	if server == "" {
		server = DefaultDNSServer
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &DNSProvider{
		server: server,
		client: &dns.Client{Timeout: 5 * time.Second},
	}
}

func (p *DNSProvider) Name() models.SignalName { return models.SignalDNS }

func (p *DNSProvider) Collect(ctx context.Context, t Target) models.SignalResult {
	var (
		payload models.DNSPayload
		errs    []string
	)
	for _, qt := range []uint16{dns.TypeA, dns.TypeNS, dns.TypeMX} {
		answers, err := p.query(ctx, t.Domain, qt)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", dns.TypeToString[qt], err))
			continue
		}
		switch qt {
		case dns.TypeA:
			payload.A = answers
		case dns.TypeNS:
			payload.NS = answers
		case dns.TypeMX:
			payload.MX = answers
		}
	}
	if len(errs) == 3 {
		return models.Unavailable(p.Name(), strings.Join(errs, "; "))
	}
	return models.Success(p.Name(), payload)
}

// Resolves reports whether domain has at least one A record.
func (p *DNSProvider) Resolves(ctx context.Context, domain string) bool {
	answers, err := p.query(ctx, domain, dns.TypeA)
	return err == nil && len(answers) > 0
}

// query returns the sorted record values of type qt. NXDOMAIN yields an empty
// answer, not an error.
func (p *DNSProvider) query(ctx context.Context, domain string, qt uint16) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qt)
	msg.RecursionDesired = true

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return nil, err
	}
	switch resp.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}

	out := []string{}
	for _, rr := range resp.Answer {
		switch r := rr.(type) {
		case *dns.A:
			out = append(out, r.A.String())
		case *dns.NS:
			out = append(out, strings.TrimSuffix(r.Ns, "."))
		case *dns.MX:
			out = append(out, strings.TrimSuffix(r.Mx, "."))
		}
	}
	sort.Strings(out)
	return out, nil
}
