package signals

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"catchphish/internal/models"
)

// DefaultRDAPURL is the public RDAP bootstrap redirector.
const DefaultRDAPURL = "https://rdap.org"

// RegistrationProvider fetches registration metadata over RDAP. It does not
// contribute to the score but enriches incident reports.
type RegistrationProvider struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

// NewRegistrationProvider creates an RDAP client.
func NewRegistrationProvider(baseURL string, client *http.Client) *RegistrationProvider {
	if baseURL == "" {
		baseURL = DefaultRDAPURL
	}
	return &RegistrationProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client, now: time.Now}
}

func (p *RegistrationProvider) Name() models.SignalName { return models.SignalRegistration }

type rdapDomain struct {
	Status []string `json:"status"`
	Events []struct {
		Action string `json:"eventAction"`
		Date   string `json:"eventDate"`
	} `json:"events"`
	Entities []struct {
		Roles     []string `json:"roles"`
		VCard     []any    `json:"vcardArray"`
		PublicIDs []struct {
			Identifier string `json:"identifier"`
		} `json:"publicIds"`
	} `json:"entities"`
	Nameservers []struct {
		LDHName string `json:"ldhName"`
	} `json:"nameservers"`
}

func (p *RegistrationProvider) Collect(ctx context.Context, t Target) models.SignalResult {
	// Registries only know the registrable domain.
	domain, err := publicsuffix.EffectiveTLDPlusOne(t.Domain)
	if err != nil {
		return models.Unavailable(p.Name(), "no registrable domain: "+err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/domain/"+url.PathEscape(domain), nil)
	if err != nil {
		return models.Unavailable(p.Name(), err.Error())
	}
	var body rdapDomain
	if err := doJSON(p.client, req, &body); err != nil {
		if errors.Is(err, errNotFound) {
			return models.Unavailable(p.Name(), "domain not found in registry")
		}
		return models.Unavailable(p.Name(), reason(err))
	}

	payload := models.RegistrationPayload{RDAPStatuses: body.Status}
	for _, ev := range body.Events {
		ts, err := time.Parse(time.RFC3339, ev.Date)
		if err != nil {
			continue
		}
		ts = ts.UTC()
		switch ev.Action {
		case "registration":
			payload.CreatedAt = &ts
			age := int(p.now().Sub(ts).Hours() / 24)
			payload.AgeDays = &age
		case "expiration":
			payload.ExpiresAt = &ts
		}
	}
	for _, ent := range body.Entities {
		for _, role := range ent.Roles {
			switch role {
			case "registrar":
				payload.Registrar = vcardField(ent.VCard, "fn")
			case "registrant":
				if c := vcardCountry(ent.VCard); c != "" {
					payload.Country = c
				}
			}
		}
	}
	for _, ns := range body.Nameservers {
		payload.Nameservers = append(payload.Nameservers, strings.ToLower(ns.LDHName))
	}
	return models.Success(p.Name(), payload)
}

// vcardProperties returns the property list of a jCard ["vcard", [...]].
func vcardProperties(vcard []any) []any {
	if len(vcard) != 2 {
		return nil
	}
	props, _ := vcard[1].([]any)
	return props
}

func vcardField(vcard []any, name string) string {
	for _, prop := range vcardProperties(vcard) {
		fields, ok := prop.([]any)
		if !ok || len(fields) < 4 {
			continue
		}
		if key, _ := fields[0].(string); key == name {
			v, _ := fields[3].(string)
			return v
		}
	}
	return ""
}

// vcardCountry reads the country component of the "adr" property.
func vcardCountry(vcard []any) string {
	for _, prop := range vcardProperties(vcard) {
		fields, ok := prop.([]any)
		if !ok || len(fields) < 4 {
			continue
		}
		if key, _ := fields[0].(string); key != "adr" {
			continue
		}
		if params, ok := fields[1].(map[string]any); ok {
			if cc, ok := params["cc"].(string); ok && cc != "" {
				return cc
			}
		}
		if parts, ok := fields[3].([]any); ok && len(parts) == 7 {
			c, _ := parts[6].(string)
			return c
		}
	}
	return ""
}
