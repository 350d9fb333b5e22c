package security

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-webauthn/webauthn/webauthn"
)

// webAuthnRPName is the relying party display name shown by authenticators.
const webAuthnRPName = "Formbase"

// NewWebAuthn builds a WebAuthn relying party for the dashboard served at publicURL.
// The RP ID is the host of publicURL and the origin is its scheme and host.
func NewWebAuthn(publicURL string) (*webauthn.WebAuthn, error) {
	origin, rpID, err := webAuthnOrigin(publicURL)
	if err != nil {
		return nil, err
	}
	return webauthn.New(&webauthn.Config{
		RPID:          rpID,
		RPDisplayName: webAuthnRPName,
		RPOrigins:     []string{origin},
	})
}

// webAuthnOrigin returns the browser origin and RP ID for a public URL.
func webAuthnOrigin(publicURL string) (string, string, error) {
	parsed, errParse := url.Parse(strings.TrimSpace(publicURL))
	if errParse != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", "", fmt.Errorf("webauthn: invalid public url %q", publicURL)
	}
	return parsed.Scheme + "://" + parsed.Host, parsed.Hostname(), nil
}
