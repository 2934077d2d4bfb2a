// Package registry holds static metadata about the providers the hub
// can talk to: what business function they serve, which process
// environment variables their client needs, and whether an adapter is
// generally available yet.
package registry

import (
	"os"
	"sort"

	"github.com/unionhall/integration-hub/models"
)

type ProviderInfo struct {
	Provider         models.Provider
	Type             models.IntegrationType
	DisplayName      string
	RequiredEnvVars  []string
	RequiresOAuth    bool
	SupportsWebhooks bool
	Entities         []string
	// Available is false for providers we list but have not shipped an
	// adapter for. Resolving them fails with PROVIDER_UNAVAILABLE
	// instead of UNKNOWN_PROVIDER so callers can tell the cases apart.
	Available bool
}

var providers = map[models.Provider]ProviderInfo{
	models.ProviderQuickBooks: {
		Provider:         models.ProviderQuickBooks,
		Type:             models.TypeAccounting,
		DisplayName:      "QuickBooks Online",
		RequiredEnvVars:  []string{"QUICKBOOKS_CLIENT_ID", "QUICKBOOKS_CLIENT_SECRET"},
		RequiresOAuth:    true,
		SupportsWebhooks: true,
		Entities:         []string{"customers", "invoices", "payments"},
		Available:        true,
	},
	models.ProviderXero: {
		Provider:         models.ProviderXero,
		Type:             models.TypeAccounting,
		DisplayName:      "Xero",
		RequiredEnvVars:  []string{"XERO_CLIENT_ID", "XERO_CLIENT_SECRET"},
		RequiresOAuth:    true,
		SupportsWebhooks: true,
		Entities:         []string{"contacts", "invoices"},
		Available:        true,
	},
	models.ProviderSage: {
		Provider:        models.ProviderSage,
		Type:            models.TypeAccounting,
		DisplayName:     "Sage Accounting",
		RequiredEnvVars: []string{"SAGE_CLIENT_ID", "SAGE_CLIENT_SECRET"},
		RequiresOAuth:   true,
		Entities:        []string{"contacts", "invoices"},
		Available:       false,
	},
	models.ProviderFreshBooks: {
		Provider:        models.ProviderFreshBooks,
		Type:            models.TypeAccounting,
		DisplayName:     "FreshBooks",
		RequiredEnvVars: []string{"FRESHBOOKS_CLIENT_ID", "FRESHBOOKS_CLIENT_SECRET"},
		RequiresOAuth:   true,
		Entities:        []string{"clients", "invoices"},
		Available:       false,
	},
	models.ProviderWave: {
		Provider:        models.ProviderWave,
		Type:            models.TypeAccounting,
		DisplayName:     "Wave",
		RequiredEnvVars: []string{"WAVE_API_TOKEN"},
		Entities:        []string{"customers", "invoices"},
		Available:       false,
	},
	models.ProviderWorkday: {
		Provider:         models.ProviderWorkday,
		Type:             models.TypeHRIS,
		DisplayName:      "Workday",
		RequiredEnvVars:  []string{"WORKDAY_CLIENT_ID", "WORKDAY_CLIENT_SECRET"},
		RequiresOAuth:    true,
		SupportsWebhooks: true,
		Entities:         []string{"workers", "positions"},
		Available:        true,
	},
	models.ProviderBambooHR: {
		Provider:         models.ProviderBambooHR,
		Type:             models.TypeHRIS,
		DisplayName:      "BambooHR",
		RequiredEnvVars:  []string{"BAMBOOHR_API_KEY"},
		SupportsWebhooks: true,
		Entities:         []string{"employees"},
		Available:        true,
	},
	models.ProviderADP: {
		Provider:        models.ProviderADP,
		Type:            models.TypeHRIS,
		DisplayName:     "ADP Workforce Now",
		RequiredEnvVars: []string{"ADP_CLIENT_ID", "ADP_CLIENT_SECRET", "ADP_CERT_PATH"},
		RequiresOAuth:   true,
		Entities:        []string{"workers"},
		Available:       false,
	},
	models.ProviderSunLife: {
		Provider:         models.ProviderSunLife,
		Type:             models.TypeInsurance,
		DisplayName:      "Sun Life",
		RequiredEnvVars:  []string{"SUNLIFE_API_KEY"},
		SupportsWebhooks: true,
		Entities:         []string{"members", "claims", "coverage"},
		Available:        true,
	},
	models.ProviderManulife: {
		Provider:        models.ProviderManulife,
		Type:            models.TypeInsurance,
		DisplayName:     "Manulife",
		RequiredEnvVars: []string{"MANULIFE_API_KEY"},
		Entities:        []string{"members", "claims"},
		Available:       false,
	},
	models.ProviderGreenShield: {
		Provider:        models.ProviderGreenShield,
		Type:            models.TypeInsurance,
		DisplayName:     "GreenShield Canada",
		RequiredEnvVars: []string{"GREENSHIELD_API_KEY"},
		Entities:        []string{"members", "claims"},
		Available:       false,
	},
	models.ProviderCanadaLife: {
		Provider:        models.ProviderCanadaLife,
		Type:            models.TypeInsurance,
		DisplayName:     "Canada Life",
		RequiredEnvVars: []string{"CANADALIFE_API_KEY"},
		Entities:        []string{"members", "claims"},
		Available:       false,
	},
	models.ProviderSlack: {
		Provider:         models.ProviderSlack,
		Type:             models.TypeCommunication,
		DisplayName:      "Slack",
		RequiredEnvVars:  []string{"SLACK_CLIENT_ID", "SLACK_CLIENT_SECRET"},
		RequiresOAuth:    true,
		SupportsWebhooks: true,
		Entities:         []string{"users", "channels"},
		Available:        true,
	},
	models.ProviderTeams: {
		Provider:        models.ProviderTeams,
		Type:            models.TypeCommunication,
		DisplayName:     "Microsoft Teams",
		RequiredEnvVars: []string{"MSGRAPH_CLIENT_ID", "MSGRAPH_CLIENT_SECRET", "MSGRAPH_TENANT_ID"},
		RequiresOAuth:   true,
		Entities:        []string{"users", "teams"},
		Available:       false,
	},
	models.ProviderLinkedInLearning: {
		Provider:        models.ProviderLinkedInLearning,
		Type:            models.TypeLMS,
		DisplayName:     "LinkedIn Learning",
		RequiredEnvVars: []string{"LINKEDIN_CLIENT_ID", "LINKEDIN_CLIENT_SECRET"},
		RequiresOAuth:   true,
		Entities:        []string{"learners", "completions"},
		Available:       false,
	},
	models.ProviderSharePoint: {
		Provider:        models.ProviderSharePoint,
		Type:            models.TypeDocuments,
		DisplayName:     "SharePoint",
		RequiredEnvVars: []string{"MSGRAPH_CLIENT_ID", "MSGRAPH_CLIENT_SECRET", "MSGRAPH_TENANT_ID"},
		RequiresOAuth:   true,
		Entities:        []string{"sites", "documents"},
		Available:       false,
	},
}

// Lookup returns the metadata for a provider, ok=false when the
// provider id is not known at all.
func Lookup(p models.Provider) (ProviderInfo, bool) {
	info, ok := providers[p]
	return info, ok
}

func ByType(t models.IntegrationType) []ProviderInfo {
	var out []ProviderInfo

	for _, info := range providers {
		if info.Type == t {
			out = append(out, info)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })

	return out
}

func All() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(providers))
	for _, info := range providers {
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })

	return out
}

// MissingEnvVars reports which of the provider's required environment
// variables are absent or empty. lookupEnv defaults to os.LookupEnv
// and is injectable for tests.
func MissingEnvVars(info ProviderInfo, lookupEnv func(string) (string, bool)) []string {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	var missing []string

	for _, name := range info.RequiredEnvVars {
		if v, ok := lookupEnv(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}

	return missing
}
