// Package auth implements the feed's authentication providers: the
// LDAP account directory and API key extraction for push endpoints.
package auth

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/willibrandon/gonuget-server/db"
)

// LDAPConfig describes how to reach and query the account directory.
//
// LoginMask is a bind DN template; its CNSubstitution marker is replaced
// with a common name before binding. Filter is a search filter template;
// its UsernameSubstitution marker is replaced with the username being
// looked up.
type LDAPConfig struct {
	ServerURI            string `toml:"server_uri"`
	LoginMask            string `toml:"login_mask"`
	CNSubstitution       string `toml:"login_mask_cn_substitution"`
	FunctionalUser       string `toml:"common_name"`
	FunctionalPassword   string `toml:"password"`
	BaseDN               string `toml:"base_dn"`
	Filter               string `toml:"filter"`
	UsernameSubstitution string `toml:"filter_username_substitution"`
}

// LDAPDirectory resolves and authenticates users against an LDAP
// server. It implements db.Directory.
type LDAPDirectory struct {
	cfg LDAPConfig
}

// NewLDAPDirectory creates a directory backed by the configured LDAP
// server.
func NewLDAPDirectory(cfg LDAPConfig) *LDAPDirectory {
	return &LDAPDirectory{cfg: cfg}
}

func (d *LDAPDirectory) bindDN(commonName string) string {
	return strings.ReplaceAll(d.cfg.LoginMask, d.cfg.CNSubstitution, commonName)
}

// CommonName searches the directory for the username and returns the
// matched account's cn attribute.
func (d *LDAPDirectory) CommonName(username string) (string, error) {
	conn, err := ldap.DialURL(d.cfg.ServerURI)
	if err != nil {
		return "", fmt.Errorf("dial directory: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(d.bindDN(d.cfg.FunctionalUser), d.cfg.FunctionalPassword); err != nil {
		return "", fmt.Errorf("bind functional user: %w", err)
	}

	filter := strings.ReplaceAll(d.cfg.Filter, d.cfg.UsernameSubstitution,
		ldap.EscapeFilter(username))
	result, err := conn.Search(ldap.NewSearchRequest(
		d.cfg.BaseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		0, 0, false, filter, []string{"cn"}, nil))
	if err != nil {
		return "", fmt.Errorf("search directory: %w", err)
	}

	switch len(result.Entries) {
	case 0:
		return "", db.ErrDirectoryUserNotFound
	case 1:
		return result.Entries[0].GetAttributeValue("cn"), nil
	default:
		return "", db.ErrDirectoryFilterNotUnique
	}
}

// Login resolves the username to its common name and binds with the
// given password. Returns the account's full name on success.
func (d *LDAPDirectory) Login(username, password string) (string, error) {
	commonName, err := d.CommonName(username)
	if err != nil {
		return "", err
	}

	conn, err := ldap.DialURL(d.cfg.ServerURI)
	if err != nil {
		return "", fmt.Errorf("dial directory: %w", err)
	}
	defer conn.Close()

	if err := conn.Bind(d.bindDN(commonName), password); err != nil {
		return "", fmt.Errorf("bind %s: %w", username, err)
	}
	return commonName, nil
}
