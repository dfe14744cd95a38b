package unistore

import (
	"sort"
	"time"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/events"
	"github.com/rzpsarthak13/unistore/internal/key"
)

func keyTypeOf(t string) key.Type {
	return key.Type(t)
}

// KeyRange is the public form of a half-open or closed key interval. Nil
// bounds are unbounded.
type KeyRange struct {
	Lower     interface{}
	Upper     interface{}
	LowerOpen bool
	UpperOpen bool
}

// Bound builds a range with both bounds.
func Bound(lower, upper interface{}, lowerOpen, upperOpen bool) KeyRange {
	return KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
}

// LowerBound builds a range bounded from below.
func LowerBound(lower interface{}, open bool) KeyRange {
	return KeyRange{Lower: lower, LowerOpen: open}
}

// UpperBound builds a range bounded from above.
func UpperBound(upper interface{}, open bool) KeyRange {
	return KeyRange{Upper: upper, UpperOpen: open}
}

// Only builds the range containing exactly v.
func Only(v interface{}) KeyRange {
	return KeyRange{Lower: v, Upper: v}
}

func (r KeyRange) internal() (key.Range, error) {
	var out key.Range
	if r.Lower != nil {
		k, err := key.FromValue(r.Lower)
		if err != nil {
			return key.Range{}, err
		}
		out.Lower = &k
		out.LowerOpen = r.LowerOpen
	}
	if r.Upper != nil {
		k, err := key.FromValue(r.Upper)
		if err != nil {
			return key.Range{}, err
		}
		out.Upper = &k
		out.UpperOpen = r.UpperOpen
	}
	return out, nil
}

// Put upserts one record and resolves with its primary key.
func (s *Storage) Put(store string, rec Record) *Request {
	return s.putKeyed(store, rec, nil)
}

// PutWithKey upserts one record under an explicit out-of-line key.
func (s *Storage) PutWithKey(store string, rec Record, outOfLineKey interface{}) *Request {
	return s.putKeyed(store, rec, outOfLineKey)
}

func (s *Storage) putKeyed(store string, rec Record, explicit interface{}) *Request {
	k, err := optionalKey(explicit)
	if err != nil {
		return core.Rejected(err)
	}
	var evts []Event
	return s.withTx([]string{store}, core.ModeReadWrite, func(tx backend.Tx) (interface{}, error) {
		pk, err := tx.Put(store, rec, k)
		if err != nil {
			return nil, err
		}
		evts = append(evts, changeEvent(core.EventUpdated, store, pk, rec))
		return pk.Value(), nil
	}, &evts)
}

// PutAll upserts a batch of records, with optional parallel out-of-line
// keys, inside one transaction. Resolves with the assigned keys in order.
func (s *Storage) PutAll(store string, recs []Record, outOfLineKeys ...interface{}) *Request {
	if len(outOfLineKeys) > 0 && len(outOfLineKeys) != len(recs) {
		return core.Rejected(core.NewError(core.KindArgument,
			"got %d keys for %d records", len(outOfLineKeys), len(recs)))
	}
	var evts []Event
	return s.withTx([]string{store}, core.ModeReadWrite, func(tx backend.Tx) (interface{}, error) {
		keys := make([]interface{}, 0, len(recs))
		for i, rec := range recs {
			var k key.Key
			if len(outOfLineKeys) > 0 {
				var err error
				k, err = key.FromValue(outOfLineKeys[i])
				if err != nil {
					return nil, err
				}
			}
			pk, err := tx.Put(store, rec, k)
			if err != nil {
				return nil, err
			}
			evts = append(evts, changeEvent(core.EventUpdated, store, pk, rec))
			keys = append(keys, pk.Value())
		}
		return keys, nil
	}, &evts)
}

// Add inserts one record, failing with ConstraintError when its key
// already exists; the prior value is unchanged.
func (s *Storage) Add(store string, rec Record) *Request {
	var evts []Event
	return s.withTx([]string{store}, core.ModeReadWrite, func(tx backend.Tx) (interface{}, error) {
		pk, err := tx.Add(store, rec, key.Key{})
		if err != nil {
			return nil, err
		}
		evts = append(evts, changeEvent(core.EventCreated, store, pk, rec))
		return pk.Value(), nil
	}, &evts)
}

// Get resolves with the record under k, or nil when absent; a missing key
// is not an error.
func (s *Storage) Get(store string, k interface{}) *Request {
	pk, err := key.FromValue(k)
	if err != nil {
		return core.Rejected(err)
	}
	return s.withTx([]string{store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
		rec, err := tx.Get(store, pk)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		return rec, nil
	}, nil)
}

// List resolves with the records for the given keys, or for a KeyRange, in
// key order.
func (s *Storage) List(store string, selector interface{}) *Request {
	switch sel := selector.(type) {
	case KeyRange:
		rng, err := sel.internal()
		if err != nil {
			return core.Rejected(err)
		}
		return s.withTx([]string{store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
			recs, err := tx.List(store, rng)
			return recs, err
		}, nil)
	case []interface{}:
		keys := make([]key.Key, 0, len(sel))
		for _, v := range sel {
			k, err := key.FromValue(v)
			if err != nil {
				return core.Rejected(err)
			}
			keys = append(keys, k)
		}
		sortKeys(keys)
		return s.withTx([]string{store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
			out := make([]Record, 0, len(keys))
			for _, k := range keys {
				rec, err := tx.Get(store, k)
				if err != nil {
					return nil, err
				}
				if rec != nil {
					out = append(out, rec)
				}
			}
			return out, nil
		}, nil)
	case nil:
		return s.List(store, KeyRange{})
	default:
		return core.Rejected(core.NewError(core.KindArgument, "list selector must be a KeyRange or a key slice, got %T", selector))
	}
}

// Count resolves with the number of records in the store, optionally
// restricted to a range.
func (s *Storage) Count(store string, rng ...KeyRange) *Request {
	r := KeyRange{}
	if len(rng) > 0 {
		r = rng[0]
	}
	internal, err := r.internal()
	if err != nil {
		return core.Rejected(err)
	}
	return s.withTx([]string{store}, core.ModeReadOnly, func(tx backend.Tx) (interface{}, error) {
		n, err := tx.Count(store, internal)
		return n, err
	}, nil)
}

// Clear empties the named stores, or every store when called without
// arguments. Resolves with the number of stores affected.
func (s *Storage) Clear(stores ...string) *Request {
	if len(stores) == 0 {
		stores = s.storeNames()
	}
	var evts []Event
	return s.withTx(stores, core.ModeReadWrite, func(tx backend.Tx) (interface{}, error) {
		for _, st := range stores {
			if err := tx.Clear(st); err != nil {
				return nil, err
			}
			evts = append(evts, changeEvent(core.EventCleared, st, key.Key{}, nil))
		}
		return len(stores), nil
	}, &evts)
}

// Remove deletes by key or KeyRange and resolves with the count removed.
func (s *Storage) Remove(store string, selector interface{}) *Request {
	var rng key.Range
	switch sel := selector.(type) {
	case KeyRange:
		var err error
		rng, err = sel.internal()
		if err != nil {
			return core.Rejected(err)
		}
	default:
		k, err := key.FromValue(selector)
		if err != nil {
			return core.Rejected(err)
		}
		rng = key.Only(k)
	}
	var evts []Event
	return s.withTx([]string{store}, core.ModeReadWrite, func(tx backend.Tx) (interface{}, error) {
		n, err := tx.Remove(store, rng)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			evts = append(evts, changeEvent(core.EventDeleted, store, key.Key{}, nil))
		}
		return n, nil
	}, &evts)
}

func optionalKey(v interface{}) (key.Key, error) {
	if v == nil {
		return key.Key{}, nil
	}
	return key.FromValue(v)
}

func sortKeys(keys []key.Key) {
	sort.Slice(keys, func(i, j int) bool { return key.Cmp(keys[i], keys[j]) < 0 })
}

func changeEvent(typ core.EventType, store string, k key.Key, rec Record) Event {
	return events.Event{
		Type:   typ,
		Store:  store,
		Key:    k.Value(),
		Record: rec,
		Time:   time.Now(),
	}
}
