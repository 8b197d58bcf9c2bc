/*
guard.go - Operator identity and capability checks

PURPOSE:
  Keeps "who is calling and what may they do" out of the ledger engine.
  An authenticator middleware resolves the operator once per request and
  stores it in the request context; Require() guards individual routes.

CAPABILITIES:
  member_view      search, list, read members, settings and history
  member_manage    create / delete members, adjust points
  cashier          consume and recharge
  settings_manage  change point rate and tier thresholds
  reports          summaries and tier counts

AUTHENTICATION:
  Session login is outside this service. Operators present a bearer token
  that config maps to a name and a capability set. With auth disabled
  every request runs as "local" with all capabilities.

SEE ALSO:
  - server.go: Applies Authenticate and Require to routes
  - config/config.go: AuthConfig
*/
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/warp/member-ledger/config"
)

// Capability is a permission tag.
type Capability string

const (
	CapMemberView     Capability = "member_view"
	CapMemberManage   Capability = "member_manage"
	CapCashier        Capability = "cashier"
	CapSettingsManage Capability = "settings_manage"
	CapReports        Capability = "reports"
)

// AllCapabilities is granted when authentication is disabled.
var AllCapabilities = []Capability{
	CapMemberView, CapMemberManage, CapCashier, CapSettingsManage, CapReports,
}

// Operator is the request-scoped caller identity.
type Operator struct {
	Name         string
	Capabilities map[Capability]bool
}

func NewOperator(name string, caps ...Capability) *Operator {
	op := &Operator{Name: name, Capabilities: make(map[Capability]bool, len(caps))}
	for _, c := range caps {
		op.Capabilities[c] = true
	}
	return op
}

// Can is the policy function: an operator may act iff it holds the tag.
func (o *Operator) Can(c Capability) bool {
	return o != nil && o.Capabilities[c]
}

type operatorKey struct{}

// WithOperator returns a context carrying op.
func WithOperator(ctx context.Context, op *Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

// OperatorFrom returns the operator stored in ctx, or nil.
func OperatorFrom(ctx context.Context) *Operator {
	op, _ := ctx.Value(operatorKey{}).(*Operator)
	return op
}

// Authenticate resolves the operator for each request. Requests without a
// known token continue anonymously; Require rejects them where needed.
func Authenticate(cfg config.AuthConfig) func(http.Handler) http.Handler {
	tokens := make(map[string]*Operator, len(cfg.Tokens))
	for _, t := range cfg.Tokens {
		caps := make([]Capability, 0, len(t.Capabilities))
		for _, c := range t.Capabilities {
			caps = append(caps, Capability(c))
		}
		tokens[t.Token] = NewOperator(t.Operator, caps...)
	}
	local := NewOperator("local", AllCapabilities...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), local)))
				return
			}

			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if op, ok := tokens[token]; ok && token != "" {
				r = r.WithContext(WithOperator(r.Context(), op))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require rejects requests whose operator lacks capability c:
// 401 when there is no operator at all, 403 otherwise.
func Require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := OperatorFrom(r.Context())
			if op == nil {
				writeError(w, http.StatusUnauthorized, "Authentication required", "")
				return
			}
			if !op.Can(c) {
				writeError(w, http.StatusForbidden, "Missing capability "+string(c), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
