package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hradmin/internal/domain/modules"
)

func TestParseAction(t *testing.T) {
	for _, raw := range []string{"read", "WRITE", " update ", "delete", "approve", "export", "any"} {
		_, err := ParseAction(raw)
		assert.NoError(t, err, raw)
	}
	_, err := ParseAction("canRead")
	assert.Error(t, err)
}

func TestPermissionAllows(t *testing.T) {
	perm := Permission{ModuleCode: modules.Leave, CanApprove: true}
	assert.True(t, perm.Allows(ActionApprove))
	assert.True(t, perm.Allows(ActionAny))
	assert.False(t, perm.Allows(ActionRead))
	assert.False(t, perm.Allows(Action("bogus")))
	assert.False(t, Permission{}.Allows(ActionAny))
}

func TestSupportModeStripsDeleteAndExport(t *testing.T) {
	perm := FullPermission(modules.Employees).SupportMode()
	for _, action := range Actions {
		assert.Equal(t, !RestrictedInSupportMode(action), perm.Allows(action), action)
	}
}

func TestProfileCacheInvalidation(t *testing.T) {
	cache := NewProfileCache(8, time.Minute)
	a := Profile{Key: ProfileKey{OrganizationID: "o1", UserID: "u1", RoleID: "r1"}}
	b := Profile{Key: ProfileKey{OrganizationID: "o1", UserID: "u2", RoleID: "r2"}}
	c := Profile{Key: ProfileKey{OrganizationID: "o2", UserID: "u3", RoleID: "r1"}}
	for _, p := range []Profile{a, b, c} {
		cache.Add(p)
	}
	require.Equal(t, 3, cache.Len())

	assert.Equal(t, 2, cache.InvalidateRole("r1"))
	_, ok := cache.Get(b.Key)
	assert.True(t, ok)

	cache.Add(a)
	assert.Equal(t, 2, cache.InvalidateOrganization("o1"))
	assert.Equal(t, 0, cache.Len())

	cache.Add(c)
	assert.Equal(t, 1, cache.InvalidateUser("u3"))
}

func TestForgetUserEvictsOnlyThatUser(t *testing.T) {
	cache := NewProfileCache(8, time.Minute)
	svc := NewService(nil, modules.Default(), WithProfileCache(cache))
	cache.Add(Profile{Key: ProfileKey{OrganizationID: "o1", UserID: "u1", RoleID: "r1"}})
	cache.Add(Profile{Key: ProfileKey{OrganizationID: "o1", UserID: "u2", RoleID: "r1"}})

	svc.ForgetUser("u1")
	assert.Equal(t, 1, cache.Len())
	NewService(nil, modules.Default()).ForgetUser("u2")
}

func TestProfileGranting(t *testing.T) {
	profile := Profile{Permissions: []Permission{
		{ModuleCode: modules.Leave, CanRead: true, CanApprove: true},
		{ModuleCode: modules.Employees, CanRead: true},
	}}
	granting := profile.Granting(ActionApprove)
	require.Len(t, granting, 1)
	assert.Equal(t, modules.Leave, granting[0].ModuleCode)
	assert.Len(t, profile.Granting(ActionRead), 2)
	assert.Empty(t, profile.Granting(ActionDelete))
	assert.NotNil(t, profile.Granting(ActionDelete))
}

func TestProfileCacheExpires(t *testing.T) {
	cache := NewProfileCache(8, 20*time.Millisecond)
	key := ProfileKey{UserID: "u1", IsSuperAdmin: true}
	cache.Add(Profile{Key: key})
	_, ok := cache.Get(key)
	require.True(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.Get(key)
	assert.False(t, ok)
}

func TestNilProfileCacheIsInert(t *testing.T) {
	var cache *ProfileCache
	cache.Add(Profile{})
	_, ok := cache.Get(ProfileKey{})
	assert.False(t, ok)
	assert.Equal(t, 0, cache.InvalidateRole("r"))
	assert.Equal(t, 0, cache.Len())
}

func TestProfileKeyDistinguishesSupportMode(t *testing.T) {
	plain := ProfileKey{OrganizationID: "o", UserID: "u", RoleID: "r", IsSuperAdmin: true}
	support := plain
	support.Impersonating = true
	assert.NotEqual(t, plain.String(), support.String())
}
