package products

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	HostGitHub = "github"
	HostGitLab = "gitlab"
)

var ErrUnknownProduct = errors.New("no repository configured for product")

// Product maps a feedback product name onto the repository fixes land in.
type Product struct {
	Name          string   `yaml:"name"`
	Host          string   `yaml:"host"`           // "github" or "gitlab"
	Repo          string   `yaml:"repo"`           // owner/name or GitLab project path
	DefaultBranch string   `yaml:"default_branch"` // defaults to main
	Aliases       []string `yaml:"aliases,omitempty"`
	Labels        []string `yaml:"labels,omitempty"` // extra labels on every issue
}

// RepoOwner and RepoName split Repo at the last slash. GitLab subgroups stay
// in the owner part.
func (p Product) RepoOwner() string {
	if i := strings.LastIndex(p.Repo, "/"); i > 0 {
		return p.Repo[:i]
	}
	return ""
}

func (p Product) RepoName() string {
	if i := strings.LastIndex(p.Repo, "/"); i >= 0 {
		return p.Repo[i+1:]
	}
	return p.Repo
}

type file struct {
	Products []Product `yaml:"products"`
}

// Catalog resolves product names case-insensitively, including aliases.
type Catalog struct {
	byName map[string]Product
	list   []Product
}

func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading products file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing products YAML: %w", err)
	}
	return New(f.Products)
}

func New(list []Product) (*Catalog, error) {
	c := &Catalog{byName: map[string]Product{}}
	for i, p := range list {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("product %d: name is required", i)
		}
		if !strings.Contains(p.Repo, "/") {
			return nil, fmt.Errorf("product %q: repo must look like owner/name", p.Name)
		}
		switch p.Host {
		case "":
			p.Host = HostGitHub
		case HostGitHub, HostGitLab:
		default:
			return nil, fmt.Errorf("product %q: unknown host %q", p.Name, p.Host)
		}
		if p.DefaultBranch == "" {
			p.DefaultBranch = "main"
		}

		for _, key := range append([]string{p.Name}, p.Aliases...) {
			k := normalize(key)
			if _, dup := c.byName[k]; dup {
				return nil, fmt.Errorf("product %q: name or alias %q is already taken", p.Name, key)
			}
			c.byName[k] = p
		}
		c.list = append(c.list, p)
	}
	return c, nil
}

func (c *Catalog) Lookup(name string) (Product, error) {
	if c == nil {
		return Product{}, ErrUnknownProduct
	}
	p, ok := c.byName[normalize(name)]
	if !ok {
		return Product{}, fmt.Errorf("%w: %q", ErrUnknownProduct, name)
	}
	return p, nil
}

func (c *Catalog) All() []Product {
	if c == nil {
		return nil
	}
	return append([]Product(nil), c.list...)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
