package probe

import "context"

// SecretResolver resolves an op:// credential reference into its
// plaintext value. *secrets.Resolver satisfies this; it is passed in
// rather than imported directly so probe has no hard dependency on a
// particular secrets backend.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
