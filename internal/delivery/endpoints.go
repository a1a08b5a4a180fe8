package delivery

import (
	"fmt"
	"net/url"
	"strings"

	asseterrors "github.com/jmgilman/go/assets/errors"
)

// Environment selects the active EndpointSet.
type Environment string

// Deployment environments.
const (
	Production  Environment = "production"
	Staging     Environment = "staging"
	Development Environment = "development"
)

// ParseEnvironment parses an environment name. An empty string selects
// production.
func ParseEnvironment(s string) (Environment, error) {
	switch env := Environment(strings.ToLower(strings.TrimSpace(s))); env {
	case "":
		return Production, nil
	case Production, Staging, Development:
		return env, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// DefaultHealthPath is probed when an Endpoint does not set HealthPath.
const DefaultHealthPath = "/health"

// Endpoint is one origin able to serve assets.
type Endpoint struct {
	// Name identifies the endpoint in EndpointHealth and probe results.
	Name string `json:"name"`
	// BaseURL is the absolute URL asset paths are joined onto.
	BaseURL string `json:"base_url"`
	// HealthPath is requested by CheckEndpointHealth.
	HealthPath string `json:"health_path,omitempty"`
}

// HealthURL returns the probe URL for the endpoint.
func (e Endpoint) HealthURL() (string, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return "", err
	}
	hp := e.HealthPath
	if hp == "" {
		hp = DefaultHealthPath
	}
	return u.JoinPath(hp).String(), nil
}

func (e Endpoint) validate() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint name cannot be empty")
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return fmt.Errorf("endpoint %s: invalid base URL: %w", e.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint %s: base URL must be http or https, got %q", e.Name, e.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint %s: base URL has no host", e.Name)
	}
	return nil
}

// EndpointSet is the ordered set of origins for one environment. Assets is
// optional and only ever probed.
type EndpointSet struct {
	Primary  Endpoint  `json:"primary"`
	Fallback Endpoint  `json:"fallback"`
	Assets   *Endpoint `json:"assets,omitempty"`
}

// Validate checks that the primary and fallback are usable and distinct.
func (s EndpointSet) Validate() error {
	if err := s.Primary.validate(); err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid primary endpoint")
	}
	if err := s.Fallback.validate(); err != nil {
		return asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid fallback endpoint")
	}
	if s.Primary.Name == s.Fallback.Name {
		return asseterrors.Newf(asseterrors.CodeInvalidConfig,
			"primary and fallback endpoints share the name %q", s.Primary.Name)
	}
	if s.Assets != nil {
		if err := s.Assets.validate(); err != nil {
			return asseterrors.Wrap(err, asseterrors.CodeInvalidConfig, "invalid assets endpoint")
		}
	}
	return nil
}

// All returns every configured endpoint in order.
func (s EndpointSet) All() []Endpoint {
	all := []Endpoint{s.Primary, s.Fallback}
	if s.Assets != nil {
		all = append(all, *s.Assets)
	}
	return all
}

var defaultEndpoints = map[Environment]EndpointSet{
	Production: {
		Primary:  Endpoint{Name: "primary", BaseURL: "https://cdn.example.com"},
		Fallback: Endpoint{Name: "fallback", BaseURL: "https://cdn-backup.example.com"},
		Assets:   &Endpoint{Name: "assets", BaseURL: "https://assets.example.com"},
	},
	Staging: {
		Primary:  Endpoint{Name: "primary", BaseURL: "https://staging-cdn.example.com"},
		Fallback: Endpoint{Name: "fallback", BaseURL: "https://staging-cdn-backup.example.com"},
	},
	Development: {
		Primary:  Endpoint{Name: "primary", BaseURL: "http://localhost:8080"},
		Fallback: Endpoint{Name: "fallback", BaseURL: "http://localhost:8081"},
	},
}

// DefaultEndpoints returns the built-in endpoint set for env.
func DefaultEndpoints(env Environment) (EndpointSet, error) {
	set, ok := defaultEndpoints[env]
	if !ok {
		return EndpointSet{}, asseterrors.Newf(asseterrors.CodeInvalidConfig, "no endpoints for environment %q", env)
	}
	if set.Assets != nil {
		a := *set.Assets
		set.Assets = &a
	}
	return set, nil
}
