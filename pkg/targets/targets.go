// Package targets models the monitored pages and the sources that list them.
package targets

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/weppos/publicsuffix-go/publicsuffix"
)

// ErrInvalidTarget marks a target that cannot be processed.
var ErrInvalidTarget = errors.New("invalid target")

// Target is one monitored page.
type Target struct {
	URL      string `mapstructure:"url" json:"url" yaml:"url"`
	Selector string `mapstructure:"selector" json:"selector" yaml:"selector"`
	Name     string `mapstructure:"name" json:"name,omitempty" yaml:"name,omitempty"`
	Notes    string `mapstructure:"notes" json:"notes,omitempty" yaml:"notes,omitempty"`
	// Enabled is nil when unset, which counts as enabled.
	Enabled *bool `mapstructure:"enabled" json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

func (t Target) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Validate checks the fields a run needs.
func (t Target) Validate() error {
	if strings.TrimSpace(t.URL) == "" {
		return errors.Mark(errors.New("target has no url"), ErrInvalidTarget)
	}
	if strings.TrimSpace(t.Selector) == "" {
		return errors.Mark(errors.Newf("target %s has no selector", t.URL), ErrInvalidTarget)
	}
	u, err := url.Parse(t.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Mark(errors.Newf("target url %q is not an http(s) url", t.URL), ErrInvalidTarget)
	}
	return nil
}

// DisplayName returns Name, or the registrable domain of URL, or URL itself.
// e.g. "https://deals.example.co.uk/hawaii" -> "example.co.uk"
func (t Target) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	u, err := url.Parse(t.URL)
	if err != nil || u.Hostname() == "" {
		return t.URL
	}
	domain, err := publicsuffix.Domain(u.Hostname())
	if err != nil {
		return u.Hostname()
	}
	return domain
}

// Enabled returns the enabled targets of ts in order.
func Enabled(ts []Target) []Target {
	out := make([]Target, 0, len(ts))
	for _, t := range ts {
		if t.IsEnabled() {
			out = append(out, t)
		}
	}
	return out
}

// Source supplies the ordered target list for a run.
type Source interface {
	Targets(ctx context.Context) ([]Target, error)
}

// Static is a fixed target list.
type Static []Target

func (s Static) Targets(context.Context) ([]Target, error) {
	return append([]Target(nil), s...), nil
}

// Viper reads targets from a key of a viper instance.
type Viper struct {
	V   *viper.Viper
	Key string
}

// FromViper reads the "targets" key of v, or of the global viper when v is nil.
func FromViper(v *viper.Viper) *Viper {
	if v == nil {
		v = viper.GetViper()
	}
	return &Viper{V: v, Key: "targets"}
}

func (s *Viper) Targets(context.Context) ([]Target, error) {
	if !s.V.IsSet(s.Key) {
		return nil, errors.Newf("no %q configured", s.Key)
	}
	var ts []Target
	if err := s.V.UnmarshalKey(s.Key, &ts); err != nil {
		return nil, errors.Wrapf(err, "read %q", s.Key)
	}
	return ts, nil
}
