package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrMissingConfig is returned when a required key is neither in the file nor in the environment.
var ErrMissingConfig = errors.New("missing config")

// quotingSection nested mapping holding quoting parameter overrides.
const quotingSection = "quoting"

// Provider key/value settings read from a YAML file and overlaid by environment
// variables with the same name.
type Provider struct {
	values    map[string]string
	quoting   *yaml.Node
	lookupEnv func(string) (string, bool)
}

// NewProvider reads path. A missing file yields a provider backed by the environment only.
func NewProvider(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		data = nil
	}

	return ParseProvider(data, os.LookupEnv)
}

// ParseProvider builds a provider from YAML bytes and an environment lookup.
func ParseProvider(data []byte, lookupEnv func(string) (string, bool)) (*Provider, error) {
	p := &Provider{values: make(map[string]string), lookupEnv: lookupEnv}
	if lookupEnv == nil {
		p.lookupEnv = func(string) (string, bool) { return "", false }
	}
	if len(data) == 0 {
		return p, nil
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "parse yaml config")
	}

	for k, node := range raw {
		switch {
		case k == quotingSection && node.Kind == yaml.MappingNode:
			n := node
			p.quoting = &n
		case node.Kind == yaml.ScalarNode:
			p.values[k] = node.Value
		case node.Kind == yaml.SequenceNode:
			items := make([]string, 0, len(node.Content))
			for _, item := range node.Content {
				items = append(items, item.Value)
			}
			p.values[k] = strings.Join(items, ",")
		}
	}

	return p, nil
}

// Has reports whether key is set in the environment or the file.
func (p *Provider) Has(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

// GetString returns the raw value of key.
func (p *Provider) GetString(key string) (string, error) {
	v, ok := p.lookup(key)
	if !ok {
		return "", errors.Wrapf(ErrMissingConfig, "key %s", key)
	}
	return v, nil
}

// GetNumber parses key as a decimal number.
func (p *Provider) GetNumber(key string) (decimal.Decimal, error) {
	v, err := p.GetString(key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "key %s is not a number", key)
	}
	return d, nil
}

// GetBoolean parses key as a boolean.
func (p *Provider) GetBoolean(key string) (bool, error) {
	v, err := p.GetString(key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, errors.Wrapf(err, "key %s is not a boolean", key)
	}
	return b, nil
}

func (p *Provider) lookup(key string) (string, bool) {
	if v, ok := p.lookupEnv(key); ok {
		return v, true
	}
	v, ok := p.values[key]
	return v, ok
}
