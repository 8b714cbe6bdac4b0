package repohost

import (
	"errors"
	"fmt"

	"darwin.app/engine/internal/products"
)

// ErrNoRepository means the task cannot be mapped to a configured host and
// repository.
var ErrNoRepository = errors.New("no repository configured")

// Target is a resolved product: where its code lives and how to reach it.
type Target struct {
	Host    Host
	Product products.Product
}

type Resolver interface {
	Resolve(product *string) (*Target, error)
}

type resolver struct {
	catalog *products.Catalog
	hosts   map[string]Host
}

// NewResolver maps products onto hosts keyed by products.HostGitHub and
// products.HostGitLab. A nil host means that code host is not configured.
func NewResolver(catalog *products.Catalog, hosts map[string]Host) Resolver {
	clean := make(map[string]Host, len(hosts))
	for k, h := range hosts {
		if h != nil {
			clean[k] = h
		}
	}
	return &resolver{catalog: catalog, hosts: clean}
}

func (r *resolver) Resolve(product *string) (*Target, error) {
	if product == nil || *product == "" {
		return nil, fmt.Errorf("%w: task has no product", ErrNoRepository)
	}
	p, err := r.catalog.Lookup(*product)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoRepository, err)
	}
	host, ok := r.hosts[p.Host]
	if !ok {
		return nil, fmt.Errorf("%w: %s is not configured for product %q", ErrNoRepository, p.Host, p.Name)
	}
	return &Target{Host: host, Product: p}, nil
}
