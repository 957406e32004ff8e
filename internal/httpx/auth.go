package httpx

import (
	"context"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-order-lifecycle/internal/logx"
	"github.com/ariefcatur/go-order-lifecycle/internal/orders"
)

const RoleAdmin = orders.RoleAdmin

type actorKey struct{}

// ActorClaims is the identity issued upstream: sub is the actor id.
type ActorClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

// Parse validates an HS256 token and returns the actor it names.
func (a *Authenticator) Parse(raw string) (orders.Actor, error) {
	claims := &ActorClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return orders.Actor{}, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return orders.Actor{}, jwt.NewValidationError("missing sub", jwt.ValidationErrorClaimsInvalid)
	}
	return orders.Actor{ID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}

// Sign issues a token for actor; used by tests and local tooling.
func (a *Authenticator) Sign(actor orders.Actor, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = actor.ID
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, ActorClaims{Name: actor.Name, Role: actor.Role, RegisteredClaims: claims})
	return tok.SignedString(a.secret)
}

// RequireActor rejects requests without a valid bearer token and stores the
// actor on the request context.
func (a *Authenticator) RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			WriteError(r.Context(), w, NewError(CodeUnauthorized, "missing bearer token", http.StatusUnauthorized))
			return
		}
		actor, err := a.Parse(raw)
		if err != nil {
			logx.FromContext(r.Context()).Info("token rejected", zap.Error(err))
			WriteError(r.Context(), w, NewError(CodeUnauthorized, "invalid token", http.StatusUnauthorized))
			return
		}
		ctx := WithActor(r.Context(), actor)
		ctx = logx.WithLogger(ctx, logx.FromContext(ctx).With(zap.String("actor_id", actor.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				WriteError(r.Context(), w, NewError(CodeUnauthorized, "missing actor", http.StatusUnauthorized))
				return
			}
			if actor.Role != role {
				WriteError(r.Context(), w, NewError(CodeForbidden, "requires role "+role, http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithActor(ctx context.Context, a orders.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (orders.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(orders.Actor)
	return a, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
