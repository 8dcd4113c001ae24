package forum

import (
	"fmt"

	"github.com/burrowbb/burrow/store"
)

// ActorRole is resolved once per operation and consulted for every
// capability decision inside it, rather than re-derived ad hoc.
type ActorRole int

const (
	RoleGuest ActorRole = iota
	RoleUser
	RoleModerator
	RoleAdministrator
)

func (r ActorRole) String() string {
	switch r {
	case RoleGuest:
		return "guest"
	case RoleUser:
		return "user"
	case RoleModerator:
		return "moderator"
	case RoleAdministrator:
		return "administrator"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func roleFromString(s string) ActorRole {
	switch s {
	case "guest":
		return RoleGuest
	case "moderator":
		return RoleModerator
	case "administrator":
		return RoleAdministrator
	default:
		return RoleUser
	}
}

// Named capabilities checked by the orchestrators.
const (
	PrivTopicsCreate     = "topics:create"
	PrivTopicsReply      = "topics:reply"
	PrivTopicsTag        = "topics:tag"
	PrivTopicsSchedule   = "topics:schedule"
	PrivPostsEdit        = "posts:edit"
	PrivPostsViewDeleted = "posts:view_deleted"
)

// Minimum role per capability when the category carries no override.
var defaultThresholds = map[string]ActorRole{
	PrivTopicsCreate:     RoleUser,
	PrivTopicsReply:      RoleUser,
	PrivTopicsTag:        RoleUser,
	PrivTopicsSchedule:   RoleModerator,
	PrivPostsEdit:        RoleUser,
	PrivPostsViewDeleted: RoleModerator,
}

// Privileges answers capability checks keyed by (action, resource, actor)
// against the store. Administrators hold every capability; moderators are
// per-category.
type Privileges struct {
	store store.Store
}

// NewPrivileges creates the capability service.
func NewPrivileges(s store.Store) *Privileges {
	return &Privileges{store: s}
}

// RoleOf resolves the actor's role within a category.
func (p *Privileges) RoleOf(uid, cid int64) (ActorRole, error) {
	if uid == 0 {
		return RoleGuest, nil
	}
	user, err := p.store.GetObjectFields(userKey(uid), []string{"role"})
	if err != nil {
		return RoleGuest, err
	}
	role := roleFromString(toString(user["role"]))
	if role == RoleAdministrator {
		return RoleAdministrator, nil
	}
	if cid != 0 {
		isMod, err := p.store.IsSortedSetMember("cid:"+formatInt(cid)+":moderators", formatInt(uid))
		if err != nil {
			return role, err
		}
		if isMod {
			return RoleModerator, nil
		}
	}
	return role, nil
}

// IsAdministrator reports whether the user holds the global administrator role.
func (p *Privileges) IsAdministrator(uid int64) (bool, error) {
	if uid == 0 {
		return false, nil
	}
	user, err := p.store.GetObjectFields(userKey(uid), []string{"role"})
	if err != nil {
		return false, err
	}
	return roleFromString(toString(user["role"])) == RoleAdministrator, nil
}

// IsAdminOrMod reports whether the user moderates the category or is an
// administrator.
func (p *Privileges) IsAdminOrMod(cid, uid int64) (bool, error) {
	role, err := p.RoleOf(uid, cid)
	if err != nil {
		return false, err
	}
	return role >= RoleModerator, nil
}

// Can checks a named capability for uid within category cid. Category
// records may override the default role threshold via a
// "priv:{capability}" field holding the minimum role name.
func (p *Privileges) Can(privilege string, cid, uid int64) (bool, error) {
	role, err := p.RoleOf(uid, cid)
	if err != nil {
		return false, err
	}
	if role == RoleAdministrator {
		return true, nil
	}

	threshold, ok := defaultThresholds[privilege]
	if !ok {
		threshold = RoleUser
	}
	if cid != 0 {
		category, err := p.store.GetObjectFields(categoryKey(cid), []string{"priv:" + privilege})
		if err != nil {
			return false, err
		}
		if override := toString(category["priv:"+privilege]); override != "" {
			threshold = roleFromString(override)
		}
	}
	return role >= threshold, nil
}

// EditCheck is the result of an edit-capability probe.
type EditCheck struct {
	Allowed bool
	Message string
}

// CanEditPost reports whether uid may edit the post. Moderators and
// administrators always may; authors may edit their own posts when the
// category grants posts:edit.
func (p *Privileges) CanEditPost(post *Post, uid int64) (EditCheck, error) {
	if post == nil {
		return EditCheck{Allowed: false, Message: ErrNoPost.Message}, nil
	}
	role, err := p.RoleOf(uid, post.CID)
	if err != nil {
		return EditCheck{}, err
	}
	if role >= RoleModerator {
		return EditCheck{Allowed: true}, nil
	}
	if uid != 0 && uid == post.UID {
		can, err := p.Can(PrivPostsEdit, post.CID, uid)
		if err != nil {
			return EditCheck{}, err
		}
		if can {
			return EditCheck{Allowed: true}, nil
		}
	}
	return EditCheck{Allowed: false, Message: ErrNoPrivileges.Message}, nil
}
