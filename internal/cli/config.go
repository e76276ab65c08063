package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/axa-poc/portalauth/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/kirsle/configdir"
	"gopkg.in/yaml.v3"
)

// appName names the per-user config directory.
const appName = "portalauth"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PORTAL_"

// Config is the CLI configuration file.
type Config struct {
	Domain         string            `yaml:"domain"`
	ClientId       string            `yaml:"client_id"`
	RedirectUrl    string            `yaml:"redirect_url"`
	LogoutReturnTo string            `yaml:"logout_return_to,omitempty"`
	Audience       string            `yaml:"audience,omitempty"`
	Scopes         []string          `yaml:"scopes,omitempty"`
	Namespace      string            `yaml:"namespace,omitempty"`
	CallbackRoute  string            `yaml:"callback_route,omitempty"`
	PortalRoutes   map[string]string `yaml:"portal_routes,omitempty"`
	VerifyIdTokens bool              `yaml:"verify_id_tokens,omitempty"`
	SigningAlgs    []string          `yaml:"signing_algs,omitempty"`

	// ProviderCA and PublicKeys accept PEM text or a path to a PEM file.
	ProviderCA string   `yaml:"provider_ca,omitempty"`
	PublicKeys []string `yaml:"public_keys,omitempty"`

	// DB is the BBolt file holding both storage scopes.
	DB       string `yaml:"db,omitempty"`
	LogLevel string `yaml:"log_level,omitempty"`
}

// DefaultConfigPath is the config file used when none is given.
func DefaultConfigPath() string {
	return configdir.LocalConfig(appName, "config.yaml")
}

// DefaultDBPath is the storage file used when none is configured.
func DefaultDBPath() string {
	return configdir.LocalConfig(appName, "portal.db")
}

// LoadConfig reads the config file at path, then applies PORTAL_*
// environment overrides.  An optional .env file in the working directory is
// loaded into the environment first.  An empty path means
// DefaultConfigPath, which may be missing.
func LoadConfig(path string) (*Config, error) {
	const op = "cli.LoadConfig"
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: unable to load .env: %w", op, err)
	}

	c := &Config{}
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("%s: unable to parse %s: %w", op, path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("%s: unable to read %s: %w", op, path, err)
	}

	if err := c.applyEnv(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if c.DB == "" {
		c.DB = DefaultDBPath()
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"DOMAIN", &c.Domain},
		{"CLIENT_ID", &c.ClientId},
		{"REDIRECT_URL", &c.RedirectUrl},
		{"LOGOUT_RETURN_TO", &c.LogoutReturnTo},
		{"AUDIENCE", &c.Audience},
		{"NAMESPACE", &c.Namespace},
		{"CALLBACK_ROUTE", &c.CallbackRoute},
		{"PROVIDER_CA", &c.ProviderCA},
		{"DB", &c.DB},
		{"LOG_LEVEL", &c.LogLevel},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + s.name); ok {
			*s.dst = v
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "SCOPES"); ok {
		c.Scopes = strings.Fields(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "VERIFY_ID_TOKENS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sVERIFY_ID_TOKENS: %w", EnvPrefix, err)
		}
		c.VerifyIdTokens = b
	}
	return nil
}

// OIDCConfig builds the provider configuration.
func (c *Config) OIDCConfig() (*oidc.Config, error) {
	const op = "cli.(Config).OIDCConfig"
	ca, err := readPEM(c.ProviderCA)
	if err != nil {
		return nil, fmt.Errorf("%s: provider_ca: %w", op, err)
	}
	keys := make([]string, 0, len(c.PublicKeys))
	for _, k := range c.PublicKeys {
		pem, err := readPEM(k)
		if err != nil {
			return nil, fmt.Errorf("%s: public_keys: %w", op, err)
		}
		keys = append(keys, pem)
	}
	algs := make([]oidc.Alg, 0, len(c.SigningAlgs))
	for _, a := range c.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}

	opts := []oidc.Option{
		oidc.WithScopes(c.Scopes...),
		oidc.WithNamespace(c.Namespace),
		oidc.WithCallbackRoute(c.CallbackRoute),
		oidc.WithPortalRoutes(c.PortalRoutes),
		oidc.WithSupportedSigningAlgs(algs...),
		oidc.WithProviderCA(ca),
	}
	if c.LogoutReturnTo != "" {
		opts = append(opts, oidc.WithLogoutReturnTo(c.LogoutReturnTo))
	}
	if c.Audience != "" {
		opts = append(opts, oidc.WithAudience(c.Audience))
	}
	if len(keys) > 0 {
		opts = append(opts, oidc.WithPublicKeys(keys...))
	}
	if c.VerifyIdTokens {
		opts = append(opts, oidc.WithVerifyIdTokens())
	}
	oc, err := oidc.NewConfig(c.Domain, c.ClientId, c.RedirectUrl, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return oc, nil
}

// Level returns the configured log level, defaulting to warn.
func (c *Config) Level() hclog.Level {
	if l := hclog.LevelFromString(c.LogLevel); l != hclog.NoLevel {
		return l
	}
	return hclog.Warn
}

// readPEM returns v when it is PEM text, otherwise the contents of the file
// named by v.
func readPEM(v string) (string, error) {
	if v == "" || strings.Contains(v, "-----BEGIN") {
		return v, nil
	}
	data, err := os.ReadFile(filepath.Clean(v))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
