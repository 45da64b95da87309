package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/netscope-io/netscope/pkg/tree"
)

// Memory is the in-process Store used by tests and one-shot CLI runs.
// A single RWMutex serializes writers, so per-device batches are trivially
// atomic and version conflicts cannot occur here; the badger store is where
// optimistic concurrency actually bites.
type Memory struct {
	mu     sync.RWMutex
	closed bool
	now    func() time.Time

	identities map[Key]Identity
	chains     map[Key][]State // oldest first; current is the last element
	edges      map[string][]StructuralEdge

	// valueIndex: schema path -> scalar value -> identities whose current
	// state holds it. Maintained incrementally as current states roll over.
	valueIndex map[string]map[string]map[Key]struct{}
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		now:        time.Now,
		identities: make(map[Key]Identity),
		chains:     make(map[Key][]State),
		edges:      make(map[string][]StructuralEdge),
		valueIndex: make(map[string]map[string]map[Key]struct{}),
	}
}

func (s *Memory) UpsertBatch(ctx context.Context, device string, upserts []StateUpsert) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return BatchResult{}, ErrClosed
	}
	for _, u := range upserts {
		if err := validateUpsert(device, u); err != nil {
			return BatchResult{}, err
		}
	}

	res := BatchResult{Device: device, Versions: make(map[string]uint64, len(upserts))}
	ts := s.now().UTC()

	for _, u := range upserts {
		key := internKey(u.Key)
		if _, ok := s.identities[key]; !ok {
			s.identities[key] = Identity{Key: key, CreatedAt: ts}
			res.Created++
		}

		fp := u.FingerprintContent()
		chain := s.chains[key]
		if n := len(chain); n > 0 && chain[n-1].Fingerprint == fp {
			res.Unchanged++
			res.Versions[key.String()] = chain[n-1].Version
			continue
		}

		next := State{
			Version:     uint64(len(chain)) + 1,
			Timestamp:   ts,
			Fingerprint: fp,
			Fields:      internFields(u.Fields),
			Doc:         cloneTree(u.Doc),
			Section:     u.Section,
			Ordinal:     u.Ordinal,
		}
		if len(chain) > 0 {
			s.unindex(key, chain[len(chain)-1].Fields)
		}
		s.chains[key] = append(chain, next)
		s.index(key, next.Fields)
		res.Changed++
		res.Versions[key.String()] = next.Version
	}
	return res, nil
}

func (s *Memory) ReplaceDeviceEdges(ctx context.Context, device string, edges []StructuralEdge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	replacement := make([]StructuralEdge, 0, len(edges))
	for _, e := range edges {
		if e.From.IsZero() || e.To.IsZero() || e.Type == "" {
			return ErrMalformed
		}
		e.From, e.To = internKey(e.From), internKey(e.To)
		e.OwnerDevice = device
		replacement = append(replacement, e)
	}
	s.edges[device] = replacement
	return nil
}

func (s *Memory) Identity(ctx context.Context, key Key) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Identity{}, ErrClosed
	}
	id, ok := s.identities[key]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

func (s *Memory) CurrentState(ctx context.Context, key Key) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return State{}, ErrClosed
	}
	chain := s.chains[key]
	if len(chain) == 0 {
		return State{}, ErrNotFound
	}
	return chain[len(chain)-1], nil
}

func (s *Memory) StateChain(ctx context.Context, key Key) ([]State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	chain := s.chains[key]
	if len(chain) == 0 {
		return nil, ErrNotFound
	}
	return append([]State(nil), chain...), nil
}

func (s *Memory) CurrentTree(ctx context.Context, device string) (tree.Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	root := s.chains[DeviceKey(device)]
	if len(root) == 0 {
		return nil, ErrNotFound
	}

	var children []State
	for key, chain := range s.chains {
		if key.Device != device || key.Kind == KindDevice {
			continue
		}
		cur := chain[len(chain)-1]
		if cur.Doc != nil && cur.Section != "" {
			children = append(children, cur)
		}
	}
	return reassemble(root[len(root)-1], children), nil
}

func (s *Memory) LookupValue(ctx context.Context, schemaPath, value string) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []Key
	for key := range s.valueIndex[schemaPath][value] {
		out = append(out, key)
	}
	sortKeys(out)
	return out, nil
}

func (s *Memory) IdentitiesOf(ctx context.Context, device string) ([]Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []Key
	for key := range s.identities {
		if key.Device == device {
			out = append(out, key)
		}
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	sortKeys(out)
	return out, nil
}

func (s *Memory) EdgesFrom(ctx context.Context, key Key) ([]StructuralEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []StructuralEdge
	for _, owned := range s.edges {
		for _, e := range owned {
			if e.From == key {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (s *Memory) CascadeQuery(ctx context.Context, start Key, maxHops int) ([]Reach, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	var all []StructuralEdge
	for _, owned := range s.edges {
		all = append(all, owned...)
	}
	s.mu.RUnlock()
	return bfsCascade(start, maxHops, undirectedNeighbors(all)), nil
}

func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Memory) index(key Key, fields map[string][]string) {
	for path, values := range fields {
		byValue := s.valueIndex[path]
		if byValue == nil {
			byValue = make(map[string]map[Key]struct{})
			s.valueIndex[path] = byValue
		}
		for _, v := range values {
			keys := byValue[v]
			if keys == nil {
				keys = make(map[Key]struct{})
				byValue[v] = keys
			}
			keys[key] = struct{}{}
		}
	}
}

func (s *Memory) unindex(key Key, fields map[string][]string) {
	for path, values := range fields {
		for _, v := range values {
			if keys := s.valueIndex[path][v]; keys != nil {
				delete(keys, key)
			}
		}
	}
}

// reassemble rebuilds a device's canonical tree: the device state's residue
// document plus each owned subtree appended back at its section path in
// ingestion order.
func reassemble(device State, children []State) tree.Tree {
	root := cloneTree(device.Doc)
	if root == nil {
		root = make(tree.Tree)
	}
	sort.Slice(children, func(i, j int) bool {
		if children[i].Section != children[j].Section {
			return children[i].Section < children[j].Section
		}
		return children[i].Ordinal < children[j].Ordinal
	})
	for _, c := range children {
		appendAt(root, c.Section, cloneTree(c.Doc))
	}
	return root
}

// appendAt appends elem to the list at sectionPath, creating intermediate
// containers and the list itself as needed.
func appendAt(root tree.Tree, sectionPath string, elem any) {
	parts := tree.SplitPath(sectionPath)
	if len(parts) == 0 {
		return
	}
	container := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := container[part].(map[string]any)
		if !ok {
			child = make(tree.Tree)
			container[part] = child
		}
		container = child
	}
	listName := parts[len(parts)-1]
	list, _ := container[listName].([]any)
	container[listName] = append(list, elem)
}

func cloneTree(t tree.Tree) tree.Tree {
	if t == nil {
		return nil
	}
	return tree.Clone(t).(tree.Tree)
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}
