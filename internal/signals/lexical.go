package signals

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"catchphish/internal/models"
)

// DefaultBrands maps brand keywords to their official domain.
var DefaultBrands = map[string]string{
	"google":    "google.com",
	"facebook":  "facebook.com",
	"microsoft": "microsoft.com",
	"apple":     "apple.com",
	"amazon":    "amazon.com",
	"paypal":    "paypal.com",
	"netflix":   "netflix.com",
	"instagram": "instagram.com",
	"twitter":   "twitter.com",
	"linkedin":  "linkedin.com",
}

// DefaultSuspiciousTLDs are suffixes disproportionately used for phishing.
var DefaultSuspiciousTLDs = []string{"tk", "ml", "ga", "cf", "gq", "xyz", "top", "club"}

var (
	numericRun   = regexp.MustCompile(`\d{4,}`)
	nonAlnumRune = regexp.MustCompile(`[^a-z0-9.-]`)
)

var substitutions = []struct{ fake, real string }{
	{"0", "o"}, {"1", "l"}, {"5", "s"}, {"vv", "w"}, {"rn", "m"},
}

// LexicalProvider inspects the domain string itself for phishing patterns.
// It makes no network calls.
type LexicalProvider struct {
	brands         map[string]string
	suspiciousTLDs map[string]struct{}
	maxLabelLen    int
	maxHyphens     int
}

// NewLexicalProvider creates a lexical checker. Nil arguments select the defaults.
func NewLexicalProvider(brands map[string]string, suspiciousTLDs []string) *LexicalProvider {
	if brands == nil {
		brands = DefaultBrands
	}
	if suspiciousTLDs == nil {
		suspiciousTLDs = DefaultSuspiciousTLDs
	}
	tlds := make(map[string]struct{}, len(suspiciousTLDs))
	for _, t := range suspiciousTLDs {
		tlds[strings.TrimPrefix(strings.ToLower(t), ".")] = struct{}{}
	}
	return &LexicalProvider{
		brands:         brands,
		suspiciousTLDs: tlds,
		maxLabelLen:    15,
		maxHyphens:     2,
	}
}

func (p *LexicalProvider) Name() models.SignalName { return models.SignalLexical }

func (p *LexicalProvider) Collect(_ context.Context, t Target) models.SignalResult {
	return models.Success(p.Name(), models.LexicalPayload{Indicators: p.Indicators(t.Domain)})
}

// Indicators lists every suspicious pattern found in domain.
func (p *LexicalProvider) Indicators(domain string) []string {
	domain = strings.ToLower(domain)
	indicators := []string{}

	brands := make([]string, 0, len(p.brands))
	for b := range p.brands {
		brands = append(brands, b)
	}
	sort.Strings(brands)
	for _, brand := range brands {
		official := p.brands[brand]
		if official == "" || !strings.Contains(domain, brand) {
			continue
		}
		if domain != official && !strings.HasSuffix(domain, "."+official) {
			indicators = append(indicators, fmt.Sprintf("Contains '%s' but is not the official domain", brand))
		}
	}

	if etld1, err := publicsuffix.EffectiveTLDPlusOne(domain); err == nil {
		sub := strings.TrimSuffix(strings.TrimSuffix(domain, etld1), ".")
		if sub != "" && strings.Count(sub, ".") >= 1 {
			indicators = append(indicators, "Excessive number of subdomains")
		}
	}

	suffix, _ := publicsuffix.PublicSuffix(domain)
	tld := suffix[strings.LastIndex(suffix, ".")+1:]
	if _, ok := p.suspiciousTLDs[tld]; ok {
		indicators = append(indicators, "Uses suspicious TLD commonly associated with phishing")
	}

	if first, _, _ := strings.Cut(domain, "."); len(first) > p.maxLabelLen {
		indicators = append(indicators, "Unusually long domain name")
	}

	if numericRun.MatchString(domain) {
		indicators = append(indicators, "Contains long numeric sequences")
	}

	for _, s := range substitutions {
		if strings.Contains(domain, s.fake) {
			indicators = append(indicators, fmt.Sprintf("Contains potential character substitution: '%s' for '%s'", s.fake, s.real))
		}
	}

	// The punycode prefix is not a user-chosen hyphen.
	if strings.Count(strings.ReplaceAll(domain, "xn--", ""), "-") > p.maxHyphens {
		indicators = append(indicators, "Excessive hyphens")
	}

	if nonAlnumRune.MatchString(domain) || strings.Contains(domain, "xn--") {
		indicators = append(indicators, "Contains non-alphanumeric or internationalized characters")
	}

	return indicators
}
