package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which logical keyspace a Key belongs to.
// Index records, version slots and metadata live in separate kinds so two
// conceptually different records can never collide on a shared string.
type Kind uint8

const (
	// KindPlain is a regular cache entry addressed by its raw key.
	KindPlain Kind = iota

	// KindTag holds the member-key list of a named tag.
	KindTag

	// KindChildren holds the ordered child-key list of a parent key.
	KindChildren

	// KindDependents holds the reverse dependency list of a key.
	KindDependents

	// KindVersion addresses one stored version of a base key.
	KindVersion

	// KindVersionPtr holds the "latest version" pointer of a base key.
	KindVersionPtr

	// KindVersionSet holds the explicit set of stored versions of a base key.
	KindVersionSet

	// KindMetadata holds the per-key metadata record.
	KindMetadata

	// KindMarker addresses a durable scheduler marker.
	KindMarker
)

var kindPrefixes = map[Kind]string{
	KindPlain:      "k",
	KindTag:        "tag",
	KindChildren:   "children",
	KindDependents: "deps",
	KindVersion:    "v",
	KindVersionPtr: "vptr",
	KindVersionSet: "vset",
	KindMetadata:   "meta",
	KindMarker:     "marker",
}

// Key is a typed cache key. The zero value is not valid; use the
// constructors below.
type Key struct {
	Kind    Kind
	Name    string
	Version int
}

// Plain returns a key addressing a regular cache entry.
func Plain(name string) Key { return Key{Kind: KindPlain, Name: name} }

// TagKey returns the key holding the member list of a tag.
func TagKey(tag string) Key { return Key{Kind: KindTag, Name: tag} }

// ChildrenKey returns the key holding the child list of a parent.
func ChildrenKey(parent string) Key { return Key{Kind: KindChildren, Name: parent} }

// DependentsKey returns the key holding the dependents of a key.
func DependentsKey(key string) Key { return Key{Kind: KindDependents, Name: key} }

// VersionKey returns the key addressing one version of a base key.
func VersionKey(base string, version int) Key {
	return Key{Kind: KindVersion, Name: base, Version: version}
}

// VersionPtrKey returns the key holding the latest-version pointer.
func VersionPtrKey(base string) Key { return Key{Kind: KindVersionPtr, Name: base} }

// VersionSetKey returns the key holding the explicit version set.
func VersionSetKey(base string) Key { return Key{Kind: KindVersionSet, Name: base} }

// MetadataKey returns the key holding the metadata record of a key.
func MetadataKey(key string) Key { return Key{Kind: KindMetadata, Name: key} }

// MarkerKey returns the key addressing a durable scheduler marker.
func MarkerKey(key string) Key { return Key{Kind: KindMarker, Name: key} }

// String renders the key in its physical form for string-keyed backends.
// Names are length-prefixed so a name containing the separator cannot be
// confused with another keyspace.
func (k Key) String() string {
	prefix, ok := kindPrefixes[k.Kind]
	if !ok {
		prefix = "k"
	}
	if k.Kind == KindVersion {
		return fmt.Sprintf("cachespec:%s:%d:%s:%d", prefix, len(k.Name), k.Name, k.Version)
	}
	return fmt.Sprintf("cachespec:%s:%d:%s", prefix, len(k.Name), k.Name)
}

// ParseKey parses the physical form produced by String.
func ParseKey(s string) (Key, error) {
	rest, ok := strings.CutPrefix(s, "cachespec:")
	if !ok {
		return Key{}, fmt.Errorf("not a cachespec key: %q", s)
	}

	sep := strings.Index(rest, ":")
	if sep < 0 {
		return Key{}, fmt.Errorf("malformed key: %q", s)
	}
	prefix := rest[:sep]
	rest = rest[sep+1:]

	var kind Kind
	found := false
	for kd, p := range kindPrefixes {
		if p == prefix {
			kind = kd
			found = true
			break
		}
	}
	if !found {
		return Key{}, fmt.Errorf("unknown keyspace prefix %q in %q", prefix, s)
	}

	sep = strings.Index(rest, ":")
	if sep < 0 {
		return Key{}, fmt.Errorf("malformed key: %q", s)
	}
	nameLen, err := strconv.Atoi(rest[:sep])
	if err != nil || nameLen < 0 {
		return Key{}, fmt.Errorf("malformed name length in %q", s)
	}
	rest = rest[sep+1:]
	if len(rest) < nameLen {
		return Key{}, fmt.Errorf("truncated key: %q", s)
	}

	key := Key{Kind: kind, Name: rest[:nameLen]}
	rest = rest[nameLen:]

	if kind == KindVersion {
		if !strings.HasPrefix(rest, ":") {
			return Key{}, fmt.Errorf("version key missing version: %q", s)
		}
		version, err := strconv.Atoi(rest[1:])
		if err != nil {
			return Key{}, fmt.Errorf("malformed version in %q", s)
		}
		key.Version = version
	} else if rest != "" {
		return Key{}, fmt.Errorf("trailing data in key: %q", s)
	}

	return key, nil
}
