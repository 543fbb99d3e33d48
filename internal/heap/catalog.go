package heap

import (
	"os"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"pagedb/internal/errkind"
	"pagedb/pkg/types"
)

// TableMeta is one entry of catalog.json: {num_records, num_pages,
// schema|null, index_type}. Schema is nil until a CREATE TABLE or the
// first LOAD establishes it (spec §9: CreateTableUsing records only the
// index type).
type TableMeta struct {
	NumRecords int                 `json:"num_records"`
	NumPages   int                 `json:"num_pages"`
	Schema     *types.TableSchema  `json:"schema"`
	IndexType  string              `json:"index_type"`
	extra      map[string]json.RawMessage
}

// MarshalJSON re-emits any unrecognized keys alongside the known
// fields, so that catalog documents written by a newer/older version
// of this code round-trip without losing data (Invariant 6).
func (m TableMeta) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(m.extra)+4)
	for k, v := range m.extra {
		out[k] = v
	}
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		out[key] = b
		return nil
	}
	if err := put("num_records", m.NumRecords); err != nil {
		return nil, err
	}
	if err := put("num_pages", m.NumPages); err != nil {
		return nil, err
	}
	if err := put("schema", m.Schema); err != nil {
		return nil, err
	}
	if err := put("index_type", m.IndexType); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (m *TableMeta) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["num_records"]; ok {
		json.Unmarshal(v, &m.NumRecords)
		delete(raw, "num_records")
	}
	if v, ok := raw["num_pages"]; ok {
		json.Unmarshal(v, &m.NumPages)
		delete(raw, "num_pages")
	}
	if v, ok := raw["schema"]; ok {
		json.Unmarshal(v, &m.Schema)
		delete(raw, "schema")
	}
	if v, ok := raw["index_type"]; ok {
		json.Unmarshal(v, &m.IndexType)
		delete(raw, "index_type")
	}
	m.extra = raw
	return nil
}

// Catalog is the persistent catalog.json document: table name -> meta.
// It is the ground truth for table existence (Invariant 6); Set and
// Delete persist the whole document after every mutation.
type Catalog struct {
	mu      sync.Mutex
	path    string
	entries map[string]TableMeta
}

// OpenCatalog loads path if it exists, or starts empty.
func OpenCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path, entries: make(map[string]TableMeta)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, errors.Wrapf(err, "catalog: reading %s", path)
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c.entries); err != nil {
		return nil, errors.Wrapf(errkind.ErrCorruptIndex, "catalog: parsing %s: %v", path, err)
	}
	return c, nil
}

// Get returns a copy of the table's metadata, if present.
func (c *Catalog) Get(table string) (TableMeta, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.entries[table]
	return m, ok
}

// Set installs meta for table and persists the catalog.
func (c *Catalog) Set(table string, meta TableMeta) error {
	c.mu.Lock()
	c.entries[table] = meta
	c.mu.Unlock()
	return c.save()
}

// Delete removes table's entry and persists the catalog.
func (c *Catalog) Delete(table string) error {
	c.mu.Lock()
	delete(c.entries, table)
	c.mu.Unlock()
	return c.save()
}

// Names returns every table name currently registered.
func (c *Catalog) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	return names
}

func (c *Catalog) save() error {
	c.mu.Lock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.Unlock()
	if err != nil {
		return errors.Wrap(errkind.ErrPersistenceFailure, err.Error())
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return errors.Wrapf(errkind.ErrPersistenceFailure, "catalog: writing %s: %v", c.path, err)
	}
	return nil
}
