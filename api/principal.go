/*
principal.go - Authenticated principal extraction

PURPOSE:
  Authentication is owned by an outer layer. The engine only needs to
  know WHO is calling: a master user or a specific influencer. The
  server takes a PrincipalFunc so any auth scheme can plug in; the
  default implementation reads trusted headers set by a fronting proxy
  in development.

ROLES:
  master      full access: validation, close, imports, registries
  influencer  scoped to their own plans, dashboard and scripts
*/
package api

import (
	"net/http"
	"strconv"

	"github.com/hidrapink/cycle-engine/cycle"
)

// Role classifies a principal.
type Role string

const (
	RoleMaster     Role = "master"
	RoleInfluencer Role = "influencer"
)

// Principal is the authenticated caller.
type Principal struct {
	Role         Role
	InfluencerID int64
}

// PrincipalFunc extracts the principal from a request. Returning an
// error rejects the request with 403.
type PrincipalFunc func(r *http.Request) (Principal, error)

// HeaderPrincipal reads X-Role and X-Influencer-Id, the contract used
// by the development proxy. Unknown or missing roles are rejected.
func HeaderPrincipal(r *http.Request) (Principal, error) {
	switch Role(r.Header.Get("X-Role")) {
	case RoleMaster:
		return Principal{Role: RoleMaster}, nil
	case RoleInfluencer:
		id, err := strconv.ParseInt(r.Header.Get("X-Influencer-Id"), 10, 64)
		if err != nil || id <= 0 {
			return Principal{}, cycle.ErrPermission
		}
		return Principal{Role: RoleInfluencer, InfluencerID: id}, nil
	default:
		return Principal{}, cycle.ErrPermission
	}
}

// canActFor reports whether the principal may operate on the given
// influencer's records.
func (p Principal) canActFor(influencerID int64) bool {
	return p.Role == RoleMaster || p.InfluencerID == influencerID
}
