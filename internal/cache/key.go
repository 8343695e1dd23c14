package cache

import "strings"

// Key carries an optional namespace segment so multi-tenant scoping is
// explicit at call sites (tenant:<id>:…, user:<id>:…, session:<id>:…).
type Key struct {
	Namespace string
	Name      string
}

// String renders the key's wire form, "<namespace>:<name>" when a
// namespace is set, or bare "<name>" otherwise.
func (k Key) String() string {
	if k.Namespace == "" {
		return k.Name
	}
	return k.Namespace + ":" + k.Name
}

// TenantKey builds a key scoped to a tenant.
func TenantKey(tenantID, name string) Key {
	return Key{Namespace: "tenant:" + tenantID, Name: name}
}

// UserKey builds a key scoped to a user.
func UserKey(userID, name string) Key {
	return Key{Namespace: "user:" + userID, Name: name}
}

// SessionKey builds a key scoped to a session.
func SessionKey(sessionID, name string) Key {
	return Key{Namespace: "session:" + sessionID, Name: name}
}

func withPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + ":" + key
}

func tagMarkerKey(prefix, tag, valueKey string) string {
	return withPrefix(prefix, "tag:"+tag+":"+valueKey)
}

func tagPattern(prefix, tag string) string {
	return withPrefix(prefix, "tag:"+tag+":*")
}

// primaryKeyFromMarker recovers the primary key encoded in a marker's own
// key, per spec §4.2's "encode the primary key in the marker's key for
// cheap recovery" strategy. The tag is taken to end at its first ':', so
// for a tag that itself contains ':' (e.g. "author:7") the result is not
// the primary key; Facade does not call it.
func primaryKeyFromMarker(prefix, marker string) (string, bool) {
	marker = strings.TrimPrefix(marker, prefix+":")
	const p = "tag:"
	if !strings.HasPrefix(marker, p) {
		return "", false
	}
	rest := marker[len(p):]
	idx := strings.Index(rest, ":")
	if idx < 0 {
		return "", false
	}
	return rest[idx+1:], true
}
