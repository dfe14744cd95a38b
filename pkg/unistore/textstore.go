package unistore

import (
	"time"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

// The default text store is a reserved key-value convenience layer over
// the storage API: string keys, string values, optional expiry. Enabled by
// the UseTextStore option.

// SetItem stores a text value under a string key. A positive expirationMs
// makes the entry invisible after that many milliseconds.
func (s *Storage) SetItem(k, value string, expirationMs ...int64) *Request {
	if err := s.requireTextStore(); err != nil {
		return core.Rejected(err)
	}
	rec := Record{"id": k, "value": value}
	if len(expirationMs) > 0 && expirationMs[0] > 0 {
		rec["expires"] = float64(time.Now().UnixMilli() + expirationMs[0])
	}
	return s.Put(TextStoreName, rec)
}

// GetItem resolves with the stored text value, or nil when absent or
// expired. Expired entries are removed lazily on read.
func (s *Storage) GetItem(k string) *Request {
	if err := s.requireTextStore(); err != nil {
		return core.Rejected(err)
	}
	return s.withTx([]string{TextStoreName}, core.ModeReadWrite, func(tx backend.Tx) (interface{}, error) {
		pk := key.String(k)
		rec, err := tx.Get(TextStoreName, pk)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		if exp, ok := rec["expires"].(float64); ok && exp > 0 {
			if float64(time.Now().UnixMilli()) >= exp {
				if _, err := tx.Remove(TextStoreName, key.Only(pk)); err != nil {
					return nil, err
				}
				return nil, nil
			}
		}
		return rec["value"], nil
	}, nil)
}

// RemoveItem deletes the entry under k.
func (s *Storage) RemoveItem(k string) *Request {
	if err := s.requireTextStore(); err != nil {
		return core.Rejected(err)
	}
	return s.Remove(TextStoreName, k)
}

func (s *Storage) requireTextStore() error {
	if s.schemaDB().Store(TextStoreName) == nil {
		return core.NewError(core.KindInvalidState, "text store is not enabled; pass WithTextStore()")
	}
	return nil
}
