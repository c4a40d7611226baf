// Copyright (C) 2016 The Resource Authors.

// Package resource implements the ResourceManager: a single registry
// that unifies a prioritized stack of archives and loose directories
// into one (ResRef, FileType) lookup, per spec.md §4.7.
package resource

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"

	"github.com/xeos/aurora-res/archive"
	"github.com/xeos/aurora-res/archive/erf"
	"github.com/xeos/aurora-res/archive/herf"
	"github.com/xeos/aurora-res/archive/keybif"
	"github.com/xeos/aurora-res/archive/obb"
	"github.com/xeos/aurora-res/archive/rim"
	"github.com/xeos/aurora-res/archive/tws"
	"github.com/xeos/aurora-res/reserr"
	"github.com/xeos/aurora-res/restype"
	"github.com/xeos/aurora-res/stream"
)

// ArchiveKind selects which container-format parser IndexArchive uses to
// open a path.
type ArchiveKind int

const (
	KindKEY ArchiveKind = iota
	KindERF
	KindRIM
	KindOBB
	KindTWS
	KindHERF
)

// ChangeID identifies the set of resources one IndexDirectory/IndexArchive
// call added, so a later Deindex call can undo exactly that registration.
type ChangeID uint64

type sourceKind int

const (
	sourceLooseFile sourceKind = iota
	sourceArchiveEntry
)

// entry is one registered (name, type) -> bytes mapping, carrying enough
// to either read a loose file straight off disk or delegate to the
// owning archive.
type entry struct {
	name     string
	typ      restype.FileType
	priority uint32
	changeID ChangeID

	kind sourceKind

	path string // sourceLooseFile
	size int64  // sourceLooseFile

	arc   archive.Archive // sourceArchiveEntry
	index uint32          // sourceArchiveEntry
}

type key struct {
	name string
	typ  restype.FileType
}

// Manager is the ResourceManager: registration (IndexDirectory,
// IndexArchive, Deindex, Clear) takes the exclusive lock; lookups
// (HasResource, GetResource, GetResourceSize) take the shared one, per
// spec.md §5's reader/writer policy.
type Manager struct {
	mu sync.RWMutex

	types *restype.Manager

	table      map[key][]*entry
	namesIndex map[string]map[restype.FileType]struct{}
	byChange   map[ChangeID][]key
	archives   map[ChangeID]archive.Archive

	nextChange uint64
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{
		types:      restype.NewManager(),
		table:      make(map[key][]*entry),
		namesIndex: make(map[string]map[restype.FileType]struct{}),
		byChange:   make(map[ChangeID][]key),
		archives:   make(map[ChangeID]archive.Archive),
	}
}

// AddTypeAlias makes every subsequent type resolution that would land on
// from resolve to to instead (spec.md §4.3).
func (m *Manager) AddTypeAlias(from, to restype.FileType) {
	m.types.AddTypeAlias(from, to)
}

func (m *Manager) allocChangeID() ChangeID {
	return ChangeID(atomic.AddUint64(&m.nextChange, 1))
}

// IndexDirectory scans path and registers every file found as a loose
// resource keyed by its stem and extension-derived FileType.
// recurseDepth = 0 means no recursion into subdirectories; a negative
// value means unlimited recursion.
func (m *Manager) IndexDirectory(path string, recurseDepth int, priority uint32) (ChangeID, error) {
	return m.IndexDirectoryFiltered(path, recurseDepth, priority, "")
}

// IndexDirectoryFiltered is IndexDirectory with an additional glob
// pattern (gobwas/glob syntax) of paths, relative to path, to skip —
// e.g. "*.bak" or "**/.git/**". An empty pattern matches nothing, i.e.
// behaves exactly like IndexDirectory.
func (m *Manager) IndexDirectoryFiltered(path string, recurseDepth int, priority uint32, exclude string) (ChangeID, error) {
	var excludeGlob glob.Glob
	if exclude != "" {
		g, err := glob.Compile(exclude, '/')
		if err != nil {
			return 0, reserr.Wrap(reserr.UnsupportedVariant, "invalid exclude pattern", err)
		}
		excludeGlob = g
	}

	changeID := m.allocChangeID()
	var entries []*entry

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == path {
			return nil
		}
		rel, relErr := filepath.Rel(path, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if excludeGlob != nil && excludeGlob.Match(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		depth := strings.Count(rel, "/")
		if d.IsDir() {
			if recurseDepth >= 0 && depth >= recurseDepth {
				return fs.SkipDir
			}
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		stem := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		typ := m.types.ResolveType(m.types.GetFileType(d.Name()))
		entries = append(entries, &entry{
			name:     strings.ToLower(stem),
			typ:      typ,
			priority: priority,
			changeID: changeID,
			kind:     sourceLooseFile,
			path:     p,
			size:     info.Size(),
		})
		return nil
	})
	if err != nil {
		return 0, reserr.Wrap(reserr.TruncatedInput, "failed scanning directory", err).WithPath(path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(entries, changeID)
	return changeID, nil
}

// IndexArchive opens the archive at path with the given kind and
// registers each of its entries. The Manager owns the opened archive
// from this point on; Deindex closes it.
func (m *Manager) IndexArchive(kind ArchiveKind, path string, priority uint32) (ChangeID, error) {
	a, err := openArchive(kind, path)
	if err != nil {
		return 0, err
	}

	changeID := m.allocChangeID()
	list := a.ResourceList()
	entries := make([]*entry, 0, len(list))
	for _, r := range list {
		entries = append(entries, &entry{
			name:     strings.ToLower(r.Name),
			typ:      m.types.ResolveType(r.Type),
			priority: priority,
			changeID: changeID,
			kind:     sourceArchiveEntry,
			arc:      a,
			index:    r.Index,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.register(entries, changeID)
	m.archives[changeID] = a
	return changeID, nil
}

func openArchive(kind ArchiveKind, path string) (archive.Archive, error) {
	if kind == KindKEY {
		a, err := keybif.Open(path, filepath.Dir(path))
		if err != nil {
			return nil, err
		}
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, reserr.Wrap(reserr.FormatMismatch, "cannot read archive file", err).WithPath(path)
	}

	switch kind {
	case KindERF:
		a, err := erf.Open(data)
		if err != nil {
			return nil, err
		}
		return a, nil
	case KindRIM:
		a, err := rim.Open(data)
		if err != nil {
			return nil, err
		}
		return a, nil
	case KindOBB:
		a, err := obb.Open(data)
		if err != nil {
			return nil, err
		}
		return a, nil
	case KindTWS:
		a, err := tws.Open(data)
		if err != nil {
			return nil, err
		}
		return a, nil
	case KindHERF:
		a, err := herf.Open(data, restype.HashXXHash64)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, reserr.New(reserr.UnsupportedVariant, "unknown archive kind")
	}
}

// register adds entries to the table and the change/name indexes. The
// caller must hold m.mu for writing.
func (m *Manager) register(entries []*entry, changeID ChangeID) {
	var keys []key
	for _, e := range entries {
		k := key{name: e.name, typ: e.typ}
		m.table[k] = append(m.table[k], e)
		if m.namesIndex[k.name] == nil {
			m.namesIndex[k.name] = make(map[restype.FileType]struct{})
		}
		m.namesIndex[k.name][k.typ] = struct{}{}
		keys = append(keys, k)
	}
	m.byChange[changeID] = append(m.byChange[changeID], keys...)
}

// highestPriority returns the last-registered entry with the highest
// priority under k, or nil if k has no entries. The caller must hold
// m.mu for reading.
func (m *Manager) highestPriority(k key) *entry {
	list := m.table[k]
	if len(list) == 0 {
		return nil
	}
	best := list[0]
	for _, e := range list[1:] {
		// >= keeps the later registration on a priority tie, per
		// spec.md §5's ordering guarantee.
		if e.priority >= best.priority {
			best = e
		}
	}
	return best
}

// resolve looks up name against types in order, returning the first
// match's entry and the FileType it matched under. With no types given,
// every type registered under name is a candidate, and the
// highest-priority match across all of them wins. The caller must hold
// m.mu for reading.
func (m *Manager) resolve(name string, types []restype.FileType) (*entry, restype.FileType) {
	name = strings.ToLower(name)

	if len(types) == 0 {
		var best *entry
		var bestType restype.FileType
		for t := range m.namesIndex[name] {
			e := m.highestPriority(key{name: name, typ: t})
			if e == nil {
				continue
			}
			if best == nil || e.priority > best.priority {
				best, bestType = e, t
			}
		}
		return best, bestType
	}

	for _, t := range types {
		if e := m.highestPriority(key{name: name, typ: t}); e != nil {
			return e, t
		}
	}
	return nil, restype.None
}

// HasResource reports whether name resolves under any of types (or,
// with no types given, under any registered type at all).
func (m *Manager) HasResource(name string, types ...restype.FileType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, _ := m.resolve(name, types)
	return e != nil
}

// GetResource resolves name to its highest-priority matching entry among
// types (or, with no types given, the highest-priority entry of any
// type) and returns a fresh stream of its bytes along with the FileType
// it resolved to.
func (m *Manager) GetResource(name string, types ...restype.FileType) (stream.ReadStream, restype.FileType, error) {
	m.mu.RLock()
	e, typ := m.resolve(name, types)
	m.mu.RUnlock()

	if e == nil {
		return nil, restype.None, reserr.New(reserr.MissingResource, "no resource registered").WithResRef(name)
	}
	rs, err := m.fetch(e)
	if err != nil {
		return nil, typ, err
	}
	return rs, typ, nil
}

// GetResourceSize returns the exact uncompressed size of name's typ
// entry, without materializing its bytes.
func (m *Manager) GetResourceSize(name string, typ restype.FileType) (int64, error) {
	m.mu.RLock()
	e, _ := m.resolve(name, []restype.FileType{typ})
	m.mu.RUnlock()

	if e == nil {
		return 0, reserr.New(reserr.MissingResource, "no resource registered").WithResRef(name)
	}
	if e.kind == sourceLooseFile {
		return e.size, nil
	}
	return e.arc.ResourceSize(e.index)
}

func (m *Manager) fetch(e *entry) (stream.ReadStream, error) {
	if e.kind == sourceLooseFile {
		data, err := os.ReadFile(e.path)
		if err != nil {
			return nil, reserr.Wrap(reserr.TruncatedInput, "failed reading loose file", err).WithPath(e.path)
		}
		return stream.NewMemStream(data), nil
	}
	return e.arc.GetResource(e.index, true)
}

// Deindex removes every entry added under id. If id came from
// IndexArchive, the underlying archive is closed afterward.
func (m *Manager) Deindex(id ChangeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys, ok := m.byChange[id]
	if !ok {
		return reserr.New(reserr.MissingResource, "unknown ChangeID")
	}

	for _, k := range keys {
		list := m.table[k]
		filtered := list[:0]
		for _, e := range list {
			if e.changeID != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(m.table, k)
			if types := m.namesIndex[k.name]; types != nil {
				delete(types, k.typ)
				if len(types) == 0 {
					delete(m.namesIndex, k.name)
				}
			}
		} else {
			m.table[k] = filtered
		}
	}
	delete(m.byChange, id)

	if a, ok := m.archives[id]; ok {
		delete(m.archives, id)
		return a.Close()
	}
	return nil
}

// Clear removes every registered entry and closes every archive the
// Manager owns.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, a := range m.archives {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	m.table = make(map[key][]*entry)
	m.namesIndex = make(map[string]map[restype.FileType]struct{})
	m.byChange = make(map[ChangeID][]key)
	m.archives = make(map[ChangeID]archive.Archive)
	return firstErr
}
