// Package captcha holds the human verification collaborator the login
// handshake delegates to.
package captcha

import "context"

// Resolver solves a reCAPTCHA challenge identified by its site key on the
// page at `pageUrl`, returning the solution token.
type Resolver interface {
	Resolve(ctx context.Context, siteKey, pageUrl string) (string, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, siteKey, pageUrl string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, siteKey, pageUrl string) (string, error) {
	return f(ctx, siteKey, pageUrl)
}
