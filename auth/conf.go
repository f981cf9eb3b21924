package auth

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/oauth2/clientcredentials"
)

// Conf holds OAuth2 client-credentials settings for an outbound service.
// An empty TokenURL disables authentication.
type Conf struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	TokenURL     string   `json:"token_url"`
	Scopes       []string `json:"scopes"`
}

// Enabled reports whether a token endpoint is configured.
func (c Conf) Enabled() bool { return strings.TrimSpace(c.TokenURL) != "" }

// Validate checks the settings when authentication is enabled.
func (c Conf) Validate() error {
	if !c.Enabled() {
		return nil
	}
	u, err := url.Parse(c.TokenURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("token_url must be an http or https URL")
	}
	if c.ClientID == "" {
		return errors.New("client_id is required")
	}
	return nil
}

func (c Conf) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
}
