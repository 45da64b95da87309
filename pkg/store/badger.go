package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/netscope-io/netscope/pkg/tree"
)

// Key layout inside badger. Everything about one identity hangs off its
// Key.String() form; value-index entries carry the match in the key itself
// so lookups are pure prefix scans.
//
//	id/<keystr>                       identity record (JSON)
//	cur/<keystr>                      current version pointer (uint64 BE)
//	st/<keystr>/<version %012d>       state record (JSON)
//	edge/<device>                     device's structural edge set (JSON)
//	vi/<schemaPath>\x00<value>\x00<keystr>   current-value index entry
const (
	prefixIdentity = "id/"
	prefixCurrent  = "cur/"
	prefixState    = "st/"
	prefixEdges    = "edge/"
	prefixValue    = "vi/"
)

// Badger is the persistent Store. Concurrent batches for the same device
// collide on the cur/ pointers; badger's optimistic transactions detect
// that at commit and the whole batch surfaces as ErrVersionConflict.
type Badger struct {
	db  *badger.DB
	now func() time.Time
	log *slog.Logger
}

// OpenBadger opens (or creates) a store at path. An empty path opens an
// in-memory instance, used by tests.
func OpenBadger(path string, log *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Badger{db: db, now: time.Now, log: log}, nil
}

func (s *Badger) UpsertBatch(ctx context.Context, device string, upserts []StateUpsert) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}
	for _, u := range upserts {
		if err := validateUpsert(device, u); err != nil {
			return BatchResult{}, err
		}
	}

	res := BatchResult{Device: device, Versions: make(map[string]uint64, len(upserts))}
	ts := s.now().UTC()

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, u := range upserts {
			key := internKey(u.Key)
			keystr := key.String()

			if _, err := txn.Get([]byte(prefixIdentity + keystr)); errors.Is(err, badger.ErrKeyNotFound) {
				raw, merr := json.Marshal(Identity{Key: key, CreatedAt: ts})
				if merr != nil {
					return merr
				}
				if err := txn.Set([]byte(prefixIdentity+keystr), raw); err != nil {
					return err
				}
				res.Created++
			} else if err != nil {
				return err
			}

			fp := u.FingerprintContent()
			curVersion, err := readVersion(txn, keystr)
			if err != nil {
				return err
			}
			if curVersion > 0 {
				cur, err := readState(txn, keystr, curVersion)
				if err != nil {
					return err
				}
				if cur.Fingerprint == fp {
					res.Unchanged++
					res.Versions[keystr] = curVersion
					continue
				}
				unindexTxn(txn, keystr, cur.Fields)
			}

			next := State{
				Version:     curVersion + 1,
				Timestamp:   ts,
				Fingerprint: fp,
				Fields:      internFields(u.Fields),
				Doc:         u.Doc,
				Section:     u.Section,
				Ordinal:     u.Ordinal,
			}
			raw, err := json.Marshal(next)
			if err != nil {
				return err
			}
			if err := txn.Set(stateKey(keystr, next.Version), raw); err != nil {
				return err
			}
			var buf [8]byte
			binary.BigEndian.PutUint64(buf[:], next.Version)
			if err := txn.Set([]byte(prefixCurrent+keystr), buf[:]); err != nil {
				return err
			}
			if err := indexTxn(txn, keystr, next.Fields); err != nil {
				return err
			}
			res.Changed++
			res.Versions[keystr] = next.Version
		}
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return BatchResult{}, fmt.Errorf("%w: batch for %s", ErrVersionConflict, device)
	}
	if err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

func (s *Badger) ReplaceDeviceEdges(ctx context.Context, device string, edges []StructuralEdge) error {
	if err := ctx.Err(); err != nil {
		return err
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
	raw, err := json.Marshal(replacement)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixEdges+device), raw)
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: edges for %s", ErrVersionConflict, device)
	}
	return err
}

func (s *Badger) Identity(ctx context.Context, key Key) (Identity, error) {
	var id Identity
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixIdentity + key.String()))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(raw []byte) error { return json.Unmarshal(raw, &id) })
	})
	return id, err
}

func (s *Badger) CurrentState(ctx context.Context, key Key) (State, error) {
	var state State
	err := s.db.View(func(txn *badger.Txn) error {
		keystr := key.String()
		version, err := readVersion(txn, keystr)
		if err != nil {
			return err
		}
		if version == 0 {
			return ErrNotFound
		}
		state, err = readState(txn, keystr, version)
		return err
	})
	return state, err
}

func (s *Badger) StateChain(ctx context.Context, key Key) ([]State, error) {
	var chain []State
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixState + key.String() + "/")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 32})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var st State
			if err := it.Item().Value(func(raw []byte) error { return decodeState(raw, &st) }); err != nil {
				return err
			}
			chain = append(chain, st)
		}
		if len(chain) == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Zero-padded version segments keep iteration in version order already;
	// the sort documents the contract rather than trusting key layout.
	sort.Slice(chain, func(i, j int) bool { return chain[i].Version < chain[j].Version })
	return chain, nil
}

func (s *Badger) CurrentTree(ctx context.Context, device string) (tree.Tree, error) {
	var deviceState State
	var children []State
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixCurrent + device + "/")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 64})
		defer it.Close()
		found := false
		for it.Rewind(); it.Valid(); it.Next() {
			keystr := strings.TrimPrefix(string(it.Item().Key()), prefixCurrent)
			var version uint64
			if err := it.Item().Value(func(raw []byte) error {
				version = binary.BigEndian.Uint64(raw)
				return nil
			}); err != nil {
				return err
			}
			st, err := readState(txn, keystr, version)
			if err != nil {
				return err
			}
			key, err := parseKeyString(keystr)
			if err != nil {
				return err
			}
			if key.Kind == KindDevice {
				deviceState = st
				found = true
			} else if st.Doc != nil && st.Section != "" {
				children = append(children, st)
			}
		}
		if !found {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reassemble(deviceState, children), nil
}

func (s *Badger) LookupValue(ctx context.Context, schemaPath, value string) ([]Key, error) {
	var out []Key
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(valueIndexPrefix(schemaPath, value))
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keystr := string(bytes.TrimPrefix(it.Item().Key(), prefix))
			key, err := parseKeyString(keystr)
			if err != nil {
				return err
			}
			out = append(out, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortKeys(out)
	return out, nil
}

func (s *Badger) IdentitiesOf(ctx context.Context, device string) ([]Key, error) {
	var out []Key
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(prefixIdentity + device + "/")
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keystr := strings.TrimPrefix(string(it.Item().Key()), prefixIdentity)
			key, err := parseKeyString(keystr)
			if err != nil {
				return err
			}
			out = append(out, key)
		}
		if len(out) == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortKeys(out)
	return out, nil
}

func (s *Badger) EdgesFrom(ctx context.Context, key Key) ([]StructuralEdge, error) {
	all, err := s.allEdges()
	if err != nil {
		return nil, err
	}
	var out []StructuralEdge
	for _, e := range all {
		if e.From == key {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Badger) CascadeQuery(ctx context.Context, start Key, maxHops int) ([]Reach, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := s.allEdges()
	if err != nil {
		return nil, err
	}
	return bfsCascade(start, maxHops, undirectedNeighbors(all)), nil
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func (s *Badger) allEdges() ([]StructuralEdge, error) {
	var all []StructuralEdge
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: []byte(prefixEdges), PrefetchValues: true, PrefetchSize: 16})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var owned []StructuralEdge
			if err := it.Item().Value(func(raw []byte) error { return json.Unmarshal(raw, &owned) }); err != nil {
				return err
			}
			all = append(all, owned...)
		}
		return nil
	})
	return all, err
}

func stateKey(keystr string, version uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%012d", prefixState, keystr, version))
}

func valueIndexPrefix(schemaPath, value string) string {
	return prefixValue + schemaPath + "\x00" + value + "\x00"
}

func readVersion(txn *badger.Txn, keystr string) (uint64, error) {
	item, err := txn.Get([]byte(prefixCurrent + keystr))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version uint64
	err = item.Value(func(raw []byte) error {
		version = binary.BigEndian.Uint64(raw)
		return nil
	})
	return version, err
}

func readState(txn *badger.Txn, keystr string, version uint64) (State, error) {
	item, err := txn.Get(stateKey(keystr, version))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}
	var st State
	err = item.Value(func(raw []byte) error { return decodeState(raw, &st) })
	return st, err
}

func indexTxn(txn *badger.Txn, keystr string, fields map[string][]string) error {
	for path, values := range fields {
		for _, v := range values {
			if err := txn.Set([]byte(valueIndexPrefix(path, v)+keystr), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func unindexTxn(txn *badger.Txn, keystr string, fields map[string][]string) {
	for path, values := range fields {
		for _, v := range values {
			_ = txn.Delete([]byte(valueIndexPrefix(path, v) + keystr))
		}
	}
}

// decodeState unmarshals a stored state and restores the numeric types the
// loaders produce. Plain json.Unmarshal would widen every stored int64 to
// float64, and diffs against freshly loaded trees compare representations
// exactly.
func decodeState(raw []byte, st *State) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(st); err != nil {
		return err
	}
	st.Doc, _ = restoreNumbers(st.Doc).(tree.Tree)
	return nil
}

func restoreNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			val[k] = restoreNumbers(child)
		}
		return val
	case []any:
		for i, child := range val {
			val[i] = restoreNumbers(child)
		}
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}

func parseKeyString(keystr string) (Key, error) {
	slash := strings.IndexByte(keystr, '/')
	if slash < 0 {
		return Key{}, fmt.Errorf("%w: bad key %q", ErrMalformed, keystr)
	}
	rest := keystr[slash+1:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return Key{}, fmt.Errorf("%w: bad key %q", ErrMalformed, keystr)
	}
	return internKey(Key{Device: keystr[:slash], Kind: rest[:colon], Name: rest[colon+1:]}), nil
}
