// Package dns is the thin boundary to the outside resolver. Transport is
// out of scope for the backend; the activation engine only needs MX answer
// sets.
package dns

import (
	"context"
	"net"
)

// MX is one answer record.
type MX struct {
	Pref uint16
	Host string
}

// Resolver answers MX queries. A failed lookup (NXDOMAIN, SERVFAIL,
// timeout) is an error; the caller treats any error as "no match".
type Resolver interface {
	LookupMX(ctx context.Context, domain string) ([]MX, error)
}

type netResolver struct {
	r *net.Resolver
}

// NewNetResolver wraps the system resolver.
func NewNetResolver() Resolver {
	return &netResolver{r: net.DefaultResolver}
}

func (n *netResolver) LookupMX(ctx context.Context, domain string) ([]MX, error) {
	answers, err := n.r.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}
	out := make([]MX, 0, len(answers))
	for _, mx := range answers {
		out = append(out, MX{Pref: mx.Pref, Host: mx.Host})
	}
	return out, nil
}
