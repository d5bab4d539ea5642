package capturer

// TableCache maps the table ids of one connection to qualified table names.
// Ids are only meaningful within the connection that announced them, so the
// cache is cleared before every connection attempt.
type TableCache struct {
	tables map[uint64]string
}

func NewTableCache() *TableCache {
	return &TableCache{tables: make(map[uint64]string)}
}

func (c *TableCache) Put(id uint64, name string) {
	c.tables[id] = name
}

func (c *TableCache) Get(id uint64) (string, bool) {
	name, ok := c.tables[id]
	return name, ok
}

func (c *TableCache) Contains(id uint64) bool {
	_, ok := c.tables[id]
	return ok
}

func (c *TableCache) Len() int {
	return len(c.tables)
}

func (c *TableCache) Reset() {
	clear(c.tables)
}
