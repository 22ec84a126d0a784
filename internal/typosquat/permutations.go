package typosquat

import (
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// homoglyphs maps a character to look-alikes commonly used in phishing domains.
var homoglyphs = map[byte][]string{
	'a': {"4", "q"},
	'b': {"d", "lb"},
	'd': {"b", "cl"},
	'e': {"3"},
	'g': {"q", "9"},
	'i': {"1", "l"},
	'l': {"1", "i"},
	'm': {"rn", "nn"},
	'o': {"0"},
	's': {"5"},
	'u': {"v"},
	'w': {"vv"},
	'z': {"2"},
}

// alternateTLDs are suffixes swapped in for the protected domain's own.
var alternateTLDs = []string{"com", "net", "org", "info", "co", "io", "xyz", "top", "tk", "ml", "online", "site"}

// Permutations generates typosquat variants of domain: character omission,
// repetition, transposition, homoglyph substitution, hyphen insertion and
// TLD swaps. Only the registrable label is permuted; subdomains are dropped.
// The input itself is never returned.
func Permutations(domain string) []string {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	etld1, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return nil
	}
	suffix, _ := publicsuffix.PublicSuffix(etld1)
	label := strings.TrimSuffix(etld1, "."+suffix)
	if label == "" {
		return nil
	}

	labels := make(map[string]struct{})
	addLabel := func(l string) {
		if l != "" && l != label && !strings.HasPrefix(l, "-") && !strings.HasSuffix(l, "-") {
			labels[l] = struct{}{}
		}
	}

	for i := 0; i < len(label); i++ {
		// omission
		addLabel(label[:i] + label[i+1:])
		// repetition
		addLabel(label[:i+1] + label[i:])
		// transposition
		if i+1 < len(label) && label[i] != label[i+1] {
			addLabel(label[:i] + string(label[i+1]) + string(label[i]) + label[i+2:])
		}
		// homoglyphs
		for _, g := range homoglyphs[label[i]] {
			addLabel(label[:i] + g + label[i+1:])
		}
		// hyphenation
		if i > 0 {
			addLabel(label[:i] + "-" + label[i:])
		}
	}

	seen := make(map[string]struct{})
	for l := range labels {
		seen[l+"."+suffix] = struct{}{}
	}
	for _, tld := range alternateTLDs {
		if tld != suffix {
			seen[label+"."+tld] = struct{}{}
		}
	}
	delete(seen, etld1)

	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
