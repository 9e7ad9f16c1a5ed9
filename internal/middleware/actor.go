package middleware

import (
	"context"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Identity headers set by the SSO proxy in front of the portal.
const (
	ActorIDHeader         = "X-Portal-Actor-Id"
	ActorRoleHeader       = "X-Portal-Actor-Role"
	ActorDepartmentHeader = "X-Portal-Actor-Department"
)

// maxActorField bounds each identity value copied into the context.
const maxActorField = 256

// Actor identifies who issued a request. Empty fields are unknown.
type Actor struct {
	ID         string
	Role       string
	Department string
}

// IsZero reports whether no identity is known.
func (a Actor) IsZero() bool {
	return a == Actor{}
}

type actorKey struct{}

// SetActor stores the actor in the context.
func SetActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor retrieves the actor from context. Returns the zero Actor if not present.
func GetActor(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}

// ActorHeaders copies the proxy identity headers into the request context.
// Identity resolution itself happens upstream; this middleware only trusts
// what the proxy forwarded.
func ActorHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := Actor{
			ID:         headerValue(r, ActorIDHeader),
			Role:       headerValue(r, ActorRoleHeader),
			Department: headerValue(r, ActorDepartmentHeader),
		}
		if !a.IsZero() {
			r = r.WithContext(SetActor(r.Context(), a))
		}
		next.ServeHTTP(w, r)
	})
}

func headerValue(r *http.Request, name string) string {
	v := strings.TrimSpace(r.Header.Get(name))
	if len(v) <= maxActorField {
		return v
	}
	// Cut on a rune boundary so multi-byte names stay valid UTF-8.
	n := maxActorField
	for n > 0 && !utf8.RuneStart(v[n]) {
		n--
	}
	return v[:n]
}
