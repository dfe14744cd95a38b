package unistore

import (
	"encoding/json"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/schema"
)

// IndexSchema declares one secondary index. KeyPath is a dotted path string
// or a slice of them for tuple indexes; empty means the index name itself
// is the indexed field.
type IndexSchema struct {
	Name       string      `json:"name"`
	KeyPath    interface{} `json:"keyPath,omitempty"`
	Type       string      `json:"type,omitempty"`
	Unique     bool        `json:"unique,omitempty"`
	MultiEntry bool        `json:"multiEntry,omitempty"`
}

// StoreSchema declares one record store. KeyPath locates the in-record
// primary key; Type is one of "number", "string", "date" (a tuple key path
// implies a tuple type).
type StoreSchema struct {
	Name          string        `json:"name"`
	KeyPath       interface{}   `json:"keyPath,omitempty"`
	Type          string        `json:"type,omitempty"`
	AutoIncrement bool          `json:"autoIncrement,omitempty"`
	Indexes       []IndexSchema `json:"indexes,omitempty"`
}

// Schema declares a database: its stores plus versioning policy. With
// AutoSchema set, stores may be added at runtime and the version is derived
// from the schema content.
type Schema struct {
	Version    uint32        `json:"version,omitempty"`
	AutoSchema bool          `json:"autoSchema,omitempty"`
	Stores     []StoreSchema `json:"stores"`
}

// TextStoreName is the reserved store injected by the UseTextStore option.
const TextStoreName = "_default_text_store"

// resolveSchema accepts the schema in any of its declared forms: nil (an
// editable empty schema), *Schema, JSON bytes or string, or an already
// internal database.
func resolveSchema(src interface{}, opts *Options) (*schema.Database, error) {
	var db *schema.Database
	switch s := src.(type) {
	case nil:
		db = schema.NewEditable()
	case *schema.Database:
		db = s
	case *Schema:
		raw, err := json.Marshal(s)
		if err != nil {
			return nil, core.WrapError(core.KindArgument, err, "invalid schema")
		}
		db, err = schema.FromJSON(raw)
		if err != nil {
			return nil, err
		}
	case Schema:
		return resolveSchema(&s, opts)
	case []byte:
		var err error
		db, err = schema.FromJSON(s)
		if err != nil {
			return nil, err
		}
	case string:
		var err error
		db, err = schema.FromJSON([]byte(s))
		if err != nil {
			return nil, err
		}
	default:
		return nil, core.NewError(core.KindArgument, "unsupported schema declaration %T", src)
	}
	if opts.AutoSchema && !db.Editable() && db.Version == 0 {
		db = schema.NewEditable(db.Stores...)
	}
	if opts.UseTextStore && db.Store(TextStoreName) == nil {
		db.Stores = append(db.Stores, textStoreSchema())
	}
	return db, nil
}

func textStoreSchema() *schema.Store {
	return &schema.Store{
		Name:    TextStoreName,
		KeyPath: schema.MustKeyPath("id"),
		Type:    "string",
	}
}

// declOf converts the internal schema back to its public declaration.
func declOf(db *schema.Database) (*Schema, error) {
	raw, err := db.ToJSON()
	if err != nil {
		return nil, err
	}
	var out Schema
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, core.WrapError(core.KindInternal, err, "cannot decode schema")
	}
	return &out, nil
}
