package access

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type ProfileKey struct {
	OrganizationID string
	UserID         string
	RoleID         string
	IsSuperAdmin   bool
	Impersonating  bool
}

func (k ProfileKey) String() string {
	flags := "-"
	if k.IsSuperAdmin {
		flags = "sa"
	}
	if k.Impersonating {
		flags += "+imp"
	}
	return k.OrganizationID + "|" + k.UserID + "|" + k.RoleID + "|" + flags
}

// ProfileCache is a TTL read-through cache for permission profiles. Role and
// module mutations evict the affected entries so the console never waits a
// full TTL to see them.
type ProfileCache struct {
	lru *expirable.LRU[string, Profile]
}

func NewProfileCache(size int, ttl time.Duration) *ProfileCache {
	if size <= 0 {
		size = 1024
	}
	return &ProfileCache{lru: expirable.NewLRU[string, Profile](size, nil, ttl)}
}

func (c *ProfileCache) Get(key ProfileKey) (Profile, bool) {
	if c == nil {
		return Profile{}, false
	}
	return c.lru.Get(key.String())
}

func (c *ProfileCache) Add(profile Profile) {
	if c == nil {
		return
	}
	c.lru.Add(profile.Key.String(), profile)
}

func (c *ProfileCache) InvalidateRole(roleID string) int {
	return c.evict(func(k ProfileKey) bool { return k.RoleID == roleID })
}

func (c *ProfileCache) InvalidateOrganization(organizationID string) int {
	return c.evict(func(k ProfileKey) bool { return k.OrganizationID == organizationID })
}

func (c *ProfileCache) InvalidateUser(userID string) int {
	return c.evict(func(k ProfileKey) bool { return k.UserID == userID })
}

func (c *ProfileCache) Purge() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *ProfileCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func (c *ProfileCache) evict(match func(ProfileKey) bool) int {
	if c == nil {
		return 0
	}
	removed := 0
	for _, k := range c.lru.Keys() {
		profile, ok := c.lru.Peek(k)
		if ok && match(profile.Key) && c.lru.Remove(k) {
			removed++
		}
	}
	return removed
}
