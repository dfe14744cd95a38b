package schema

import (
	"encoding/json"
	"hash/fnv"

	"gopkg.in/yaml.v3"

	"github.com/rzpsarthak13/unistore/internal/core"
	"github.com/rzpsarthak13/unistore/internal/key"
)

// Wire form of the schema. Field order is fixed by the struct declarations,
// which keeps the serialized form stable for hashing and round-trips.
type indexDecl struct {
	Name       string      `json:"name" yaml:"name"`
	KeyPath    interface{} `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	Type       string      `json:"type,omitempty" yaml:"type,omitempty"`
	Unique     bool        `json:"unique,omitempty" yaml:"unique,omitempty"`
	MultiEntry bool        `json:"multiEntry,omitempty" yaml:"multiEntry,omitempty"`
}

type storeDecl struct {
	Name          string      `json:"name" yaml:"name"`
	KeyPath       interface{} `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	Type          string      `json:"type,omitempty" yaml:"type,omitempty"`
	AutoIncrement bool        `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	Indexes       []indexDecl `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

type databaseDecl struct {
	Version    uint32      `json:"version,omitempty" yaml:"version,omitempty"`
	AutoSchema bool        `json:"autoSchema,omitempty" yaml:"autoSchema,omitempty"`
	Stores     []storeDecl `json:"stores" yaml:"stores"`
}

func (s *Store) decl() storeDecl {
	d := storeDecl{
		Name:          s.Name,
		KeyPath:       s.KeyPath.Declaration(),
		Type:          string(s.Type),
		AutoIncrement: s.AutoIncrement,
	}
	for _, ix := range s.Indexes {
		d.Indexes = append(d.Indexes, indexDecl{
			Name:       ix.Name,
			KeyPath:    ix.KeyPath.Declaration(),
			Type:       string(ix.Type),
			Unique:     ix.Unique,
			MultiEntry: ix.MultiEntry,
		})
	}
	return d
}

func storeFromDecl(d storeDecl) (*Store, error) {
	if d.Name == "" {
		return nil, core.NewError(core.KindArgument, "store declaration missing name")
	}
	kp, err := NewKeyPath(d.KeyPath)
	if err != nil {
		return nil, err
	}
	s := &Store{
		Name:          d.Name,
		KeyPath:       kp,
		Type:          key.Type(d.Type),
		AutoIncrement: d.AutoIncrement,
	}
	for _, ixd := range d.Indexes {
		ixp, err := NewKeyPath(ixd.KeyPath)
		if err != nil {
			return nil, err
		}
		if ixd.Name == "" {
			return nil, core.NewError(core.KindArgument, "index declaration in store %q missing name", d.Name)
		}
		if ixp.Empty() {
			// An index named after a field indexes that field.
			ixp = MustKeyPath(ixd.Name)
		}
		s.Indexes = append(s.Indexes, &Index{
			Name:       ixd.Name,
			KeyPath:    ixp,
			Type:       key.Type(ixd.Type),
			Unique:     ixd.Unique,
			MultiEntry: ixd.MultiEntry,
		})
	}
	return s, nil
}

// ToJSON serializes the schema with stable field order.
func (db *Database) ToJSON() ([]byte, error) {
	d := databaseDecl{Version: db.Version, AutoSchema: db.editable}
	d.Stores = make([]storeDecl, 0, len(db.Stores))
	for _, s := range db.Stores {
		d.Stores = append(d.Stores, s.decl())
	}
	return json.Marshal(d)
}

// FromJSON parses a schema from its JSON form.
func FromJSON(data []byte) (*Database, error) {
	var d databaseDecl
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, core.WrapError(core.KindArgument, err, "invalid schema JSON")
	}
	return fromDecl(d)
}

// FromYAML parses a schema from its YAML form.
func FromYAML(data []byte) (*Database, error) {
	var d databaseDecl
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, core.WrapError(core.KindArgument, err, "invalid schema YAML")
	}
	return fromDecl(d)
}

func fromDecl(d databaseDecl) (*Database, error) {
	stores := make([]*Store, 0, len(d.Stores))
	for _, sd := range d.Stores {
		s, err := storeFromDecl(sd)
		if err != nil {
			return nil, err
		}
		stores = append(stores, s)
	}
	if d.AutoSchema {
		return NewEditable(stores...), nil
	}
	version := d.Version
	if version == 0 {
		version = 1
	}
	return NewFixed(version, stores...), nil
}

// Hash derives a stable 32-bit digest of the schema content. Auto-version
// databases use it as their version number so any non-similar change forces
// an upgrade.
func (db *Database) Hash() uint32 {
	data, err := db.ToJSON()
	if err != nil {
		return 0
	}
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}

// EffectiveVersion is the declared version, or the schema hash when the
// database is auto-versioned. Never zero.
func (db *Database) EffectiveVersion() uint32 {
	if db.autoVer {
		v := db.Hash()
		if v == 0 {
			v = 1
		}
		return v
	}
	if db.Version == 0 {
		return 1
	}
	return db.Version
}
