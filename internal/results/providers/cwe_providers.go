// internal/results/providers/cwe_providers.go
package providers

import (
	"fmt"
)

// CWEEntry holds details about a specific CWE.
type CWEEntry struct {
	ID          string
	Name        string
	Description string
}

// CWEProvider defines the interface for retrieving CWE information.
type CWEProvider interface {
	GetCWE(id string) (*CWEEntry, error)
}

// InMemoryCWEProvider serves the weaknesses the authentication analyzers map to.
type InMemoryCWEProvider struct {
	data map[string]CWEEntry
}

// NewInMemoryCWEProvider creates a new InMemoryCWEProvider with preloaded data.
func NewInMemoryCWEProvider() *InMemoryCWEProvider {
	entries := []CWEEntry{
		{ID: "CWE-200", Name: "Exposure of Sensitive Information to an Unauthorized Actor", Description: "The product exposes sensitive information to an actor that is not explicitly authorized to have access to that information."},
		{ID: "CWE-312", Name: "Cleartext Storage of Sensitive Information", Description: "The product stores sensitive information in cleartext within a resource that might be accessible to another control sphere."},
		{ID: "CWE-319", Name: "Cleartext Transmission of Sensitive Information", Description: "The information is sent in cleartext and can be observed by unauthorized parties."},
		{ID: "CWE-326", Name: "Inadequate Encryption Strength", Description: "The product stores or transmits sensitive data using an encryption scheme that is theoretically sound, but is not strong enough for the level of protection required."},
		{ID: "CWE-347", Name: "Improper Verification of Cryptographic Signature", Description: "The product does not verify, or incorrectly verifies, the cryptographic signature for data."},
		{ID: "CWE-522", Name: "Insufficiently Protected Credentials", Description: "The product transmits or stores authentication credentials, but it uses an insecure method that is susceptible to unauthorized interception and/or retrieval."},
		{ID: "CWE-598", Name: "Use of GET Request Method With Sensitive Query Strings", Description: "The web application uses the HTTP GET method to process a request and includes sensitive information in the query string of that request."},
		{ID: "CWE-613", Name: "Insufficient Session Expiration", Description: "The product allows an attacker to reuse old session credentials or session IDs for authorization."},
		{ID: "CWE-614", Name: "Sensitive Cookie in HTTPS Session Without 'Secure' Attribute", Description: "The Secure attribute for sensitive cookies in HTTPS sessions is not set, which could cause the user agent to send those cookies in plaintext over an HTTP session."},
		{ID: "CWE-693", Name: "Protection Mechanism Failure", Description: "The product does not use or incorrectly uses a protection mechanism that provides sufficient defense against directed attacks."},
		{ID: "CWE-942", Name: "Permissive Cross-domain Policy with Untrusted Domains", Description: "The product uses a cross-domain policy file that includes domains that should not be trusted."},
		{ID: "CWE-1004", Name: "Sensitive Cookie Without 'HttpOnly' Flag", Description: "The product uses a cookie to store sensitive information, but the cookie is not marked with the HttpOnly flag."},
		{ID: "CWE-1275", Name: "Sensitive Cookie with Improper SameSite Attribute", Description: "The SameSite attribute for sensitive cookies is not set, or an insecure value is used."},
	}
	data := make(map[string]CWEEntry, len(entries))
	for _, e := range entries {
		data[e.ID] = e
	}
	return &InMemoryCWEProvider{data: data}
}

// GetCWE retrieves CWE details by ID. Unknown IDs yield a placeholder entry
// rather than an error so enrichment never fails a run.
func (p *InMemoryCWEProvider) GetCWE(id string) (*CWEEntry, error) {
	entry, exists := p.data[id]
	if !exists {
		return &CWEEntry{ID: id, Name: fmt.Sprintf("%s (Details Not Found)", id), Description: "Details for this CWE ID are not available in the local database."}, nil
	}
	return &entry, nil
}
