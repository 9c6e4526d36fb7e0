// Package authz holds the authorization predicates every gateway operation
// is checked against. Role permissions live in an embedded Casbin RBAC model;
// ownership is compared directly.
package authz

import (
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"

	"github.com/hypeshelf/hypeshelf/internal/metrics"
	"github.com/hypeshelf/hypeshelf/internal/model"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Objects and actions used in policy.csv.
const (
	objRecommendation = "recommendation"
	objUsers          = "users"

	actModifyOwn  = "modify_own"
	actModifyAny  = "modify_any"
	actFeature    = "feature"
	actAdminister = "administer"
)

type Policy struct {
	enforcer *casbin.SyncedEnforcer
	logger   *slog.Logger
}

// New builds a Policy from the embedded model and policy.
func New(logger *slog.Logger) (*Policy, error) {
	m, err := casbinmodel.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("authz: loading model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("authz: creating enforcer: %w", err)
	}

	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}

	return &Policy{enforcer: enforcer, logger: logger}, nil
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("authz: adding policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("authz: adding grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("authz: malformed policy line %q", line)
		}
	}
	return nil
}

// CanModify reports whether a caller may update or delete rec: admins always,
// everyone else only when they authored it.
func (p *Policy) CanModify(rec *model.Recommendation, callerSubject string, role model.Role) bool {
	if p.allowed(role, objRecommendation, actModifyAny) {
		return true
	}
	owner := callerSubject != "" && rec.AuthorID == callerSubject
	return owner && p.allowed(role, objRecommendation, actModifyOwn)
}

// CanFeature reports whether role may toggle a staff pick.
func (p *Policy) CanFeature(role model.Role) bool {
	return p.allowed(role, objRecommendation, actFeature)
}

// CanAdminister reports whether role may list users, change roles, and run
// user maintenance.
func (p *Policy) CanAdminister(role model.Role) bool {
	return p.allowed(role, objUsers, actAdminister)
}

// allowed denies unknown roles and enforcement errors.
func (p *Policy) allowed(role model.Role, obj, act string) bool {
	if !role.Valid() {
		metrics.AuthzDecisionsTotal.WithLabelValues("invalid", act, "deny").Inc()
		return false
	}
	ok, err := p.enforcer.Enforce(string(role), obj, act)
	metrics.AuthzDecisionsTotal.WithLabelValues(string(role), act, decision(ok, err)).Inc()
	if err != nil {
		p.logger.Error("authorization check failed",
			slog.String("role", string(role)),
			slog.String("object", obj),
			slog.String("action", act),
			slog.String("error", err.Error()),
		)
		return false
	}
	return ok
}

func decision(ok bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case ok:
		return "allow"
	default:
		return "deny"
	}
}
