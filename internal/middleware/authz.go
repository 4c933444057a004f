package middleware

import (
	"fmt"
	"net/http"

	"bizledger/pkg/response"

	"github.com/casbin/casbin/v2"
	casbinmodel "github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && (r.act == p.act || p.act == "*")
`

// Roles
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleClerk   = "clerk"
	RoleViewer  = "viewer"
)

// Objects
const (
	ObjectDocument = "document"
	ObjectPayment  = "payment"
	ObjectStock    = "stock"
	ObjectCatalog  = "catalog"
	ObjectAuditLog = "audit_log"
	ObjectSync     = "sync"
	ObjectEvents   = "events"
)

// Actions
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionManage = "manage"
)

// Role inheritance: admin > manager > clerk > viewer.
var roleLinks = [][]string{
	{RoleAdmin, RoleManager},
	{RoleManager, RoleClerk},
	{RoleClerk, RoleViewer},
}

var defaultPolicies = [][]string{
	{RoleViewer, ObjectDocument, ActionView},
	{RoleViewer, ObjectPayment, ActionView},
	{RoleViewer, ObjectStock, ActionView},
	{RoleViewer, ObjectCatalog, ActionView},
	{RoleViewer, ObjectEvents, ActionView},

	{RoleClerk, ObjectDocument, ActionCreate},
	{RoleClerk, ObjectDocument, ActionUpdate},
	{RoleClerk, ObjectPayment, ActionCreate},
	{RoleClerk, ObjectCatalog, ActionCreate},

	{RoleManager, ObjectDocument, ActionDelete},
	{RoleManager, ObjectStock, "*"},
	{RoleManager, ObjectAuditLog, ActionView},
	{RoleManager, ObjectSync, ActionView},

	{RoleAdmin, ObjectSync, "*"},
}

// Authorizer checks role permissions with an in-memory casbin enforcer.
type Authorizer struct {
	enforcer *casbin.SyncedEnforcer
}

func NewAuthorizer() (*Authorizer, error) {
	m, err := casbinmodel.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicies(defaultPolicies); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	if _, err := enforcer.AddGroupingPolicies(roleLinks); err != nil {
		return nil, fmt.Errorf("failed to load role links: %w", err)
	}
	return &Authorizer{enforcer: enforcer}, nil
}

// Allowed reports whether role may perform action on object.
func (a *Authorizer) Allowed(role, object, action string) (bool, error) {
	return a.enforcer.Enforce(role, object, action)
}

// Require must run after Authenticate.
func (a *Authorizer) Require(object, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		}

		allowed, err := a.Allowed(role, object, action)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+object+"."+action+"'"))
			return
		}
		c.Next()
	}
}
