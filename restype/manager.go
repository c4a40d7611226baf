// Copyright (C) 2016 The Resource Authors.

package restype

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// HashAlgorithm identifies one of the (possibly several, simultaneously
// registered) hash functions HERF-style archives use to encode a
// lowercase "name.ext" string as a 64-bit directory key.
type HashAlgorithm int

const (
	// HashXXHash64 uses github.com/cespare/xxhash/v2, a fast
	// non-cryptographic 64-bit hash already present in the pack's
	// dependency graph.
	HashXXHash64 HashAlgorithm = iota
	// HashFNV1a64 uses a locally implemented 64-bit FNV-1a, kept as a second
	// algorithm so FileTypeManager genuinely supports more than one at
	// once, per spec.md §4.3.
	HashFNV1a64
)

func hashExtension(algo HashAlgorithm, ext string) uint64 {
	ext = strings.ToLower(ext)
	switch algo {
	case HashXXHash64:
		return xxhash.Sum64String(ext)
	case HashFNV1a64:
		return fnv1a64(ext)
	default:
		return 0
	}
}

func fnv1a64(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

// Manager is the process-independent FileType registry: lookups by path
// extension, by FileType, and by hashed extension, plus a per-game alias
// overlay for colliding numeric IDs. Unlike the xoreos original, callers
// construct their own Manager instead of reaching for a global singleton
// (see SPEC_FULL.md §2 "Configuration").
type Manager struct {
	mu sync.RWMutex

	aliases map[FileType]FileType

	// hashCaches holds, per algorithm, the hash->FileType map built
	// lazily on first HashedExtension query for that algorithm.
	hashCaches map[HashAlgorithm]map[uint64]FileType
}

// NewManager returns a Manager with no aliases registered.
func NewManager() *Manager {
	return &Manager{
		aliases:    make(map[FileType]FileType),
		hashCaches: make(map[HashAlgorithm]map[uint64]FileType),
	}
}

// GetFileType returns the FileType whose canonical extension matches the
// text after the last '.' in path, lowercased. It returns None if path
// has no recognized extension.
func (m *Manager) GetFileType(path string) FileType {
	ext := extensionOf(path)
	if ext == "" {
		return None
	}
	return m.typeForExtension(ext)
}

func extensionOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || i == len(path)-1 {
		return ""
	}
	return strings.ToLower(path[i+1:])
}

var extensionToType = buildExtensionIndex()

func buildExtensionIndex() map[string]FileType {
	idx := make(map[string]FileType, len(extensions))
	for t, e := range extensions {
		// No two entries in extensions share an extension today, but
		// range order over a map is unspecified, so ties (should one
		// ever be introduced) resolve deterministically by preferring
		// the lower-valued FileType rather than whichever the runtime
		// happens to visit last.
		if existing, ok := idx[e]; !ok || t < existing {
			idx[e] = t
		}
	}
	return idx
}

func (m *Manager) typeForExtension(ext string) FileType {
	if t, ok := extensionToType[ext]; ok {
		return m.resolveAlias(t)
	}
	return None
}

// resolveAlias follows a single alias hop: callers register aliases
// as "from overlays onto to", so a lookup that lands on an aliased type
// returns the alias target instead.
func (m *Manager) resolveAlias(t FileType) FileType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if to, ok := m.aliases[t]; ok {
		return to
	}
	return t
}

// ResolveType applies any alias registered for t, the public counterpart
// of resolveAlias for callers that already have a numeric FileType in
// hand (e.g. one read directly out of an archive's resource table,
// rather than derived from a path extension).
func (m *Manager) ResolveType(t FileType) FileType {
	return m.resolveAlias(t)
}

// GetExtension returns the canonical extension for t, with a leading
// dot, or "" if t is unknown.
func (m *Manager) GetExtension(t FileType) string {
	ext, ok := extensions[t]
	if !ok {
		return ""
	}
	return "." + ext
}

// SetFileType replaces path's extension (or appends one, if path has
// none) with t's canonical extension.
func (m *Manager) SetFileType(path string, t FileType) string {
	ext := m.GetExtension(t)
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		path = path[:i]
	}
	return path + ext
}

// AddFileType appends t's canonical extension to path unconditionally.
func (m *Manager) AddFileType(path string, t FileType) string {
	return path + m.GetExtension(t)
}

// AddTypeAlias makes every subsequent lookup that would resolve to from
// return to instead. Used at game-init time to resolve ID collisions
// between games sharing this Manager (spec.md §4.3).
func (m *Manager) AddTypeAlias(from, to FileType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[from] = to
}

// HashedExtension returns the FileType whose lowercase extension hashes
// to hash under algo. The hash->type map for algo is built lazily (and
// idempotently, even under racing readers) on first use.
func (m *Manager) HashedExtension(algo HashAlgorithm, hash uint64) FileType {
	cache := m.hashCacheFor(algo)
	if t, ok := cache[hash]; ok {
		return m.resolveAlias(t)
	}
	return None
}

func (m *Manager) hashCacheFor(algo HashAlgorithm) map[uint64]FileType {
	m.mu.RLock()
	if cache, ok := m.hashCaches[algo]; ok {
		m.mu.RUnlock()
		return cache
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	// Double-check: another writer may have built it while we waited
	// for the exclusive lock.
	if cache, ok := m.hashCaches[algo]; ok {
		return cache
	}
	cache := make(map[uint64]FileType, len(extensions))
	for t, ext := range extensions {
		cache[hashExtension(algo, ext)] = t
	}
	m.hashCaches[algo] = cache
	return cache
}
