package mining

import (
	"fmt"
	"slices"
	"sort"
)

// Source maps a public data-source label to its table and column whitelist.
type Source struct {
	Label   string
	Table   Table
	Columns []Column
}

func (s Source) Allows(col Column) bool {
	return slices.Contains(s.Columns, col)
}

type Catalog struct {
	byLabel map[string]Source
	byTable map[Table]Source
}

func NewCatalog(sources ...Source) *Catalog {
	c := &Catalog{
		byLabel: make(map[string]Source, len(sources)),
		byTable: make(map[Table]Source, len(sources)),
	}
	for _, s := range sources {
		s.Columns = slices.Clone(s.Columns)
		c.byLabel[s.Label] = s
		c.byTable[s.Table] = s
	}
	return c
}

var vehicleColumns = []Column{
	"id",
	"timestamp",
	"bty_t_vol",
	"bty_t_curr",
	"battery_soc",
	"byt_ma_sys_state",
	"met_spd",
	"max_t_s_b_num",
	"min_t_s_b_num",
	"max_s_b_t",
	"min_s_b_t",
	"s_b_max_vol",
	"s_b_min_vol",
}

func DefaultCatalog() *Catalog {
	return NewCatalog(
		Source{Label: "yutong-vehicle", Table: "yutong_vehicle", Columns: vehicleColumns},
		Source{Label: "beiqi-vehicle", Table: "beiqi_vehicle", Columns: vehicleColumns},
	)
}

func (c *Catalog) Lookup(label string) (Source, error) {
	s, ok := c.byLabel[label]
	if !ok {
		return Source{}, fmt.Errorf("%w: %q", ErrUnknownSource, label)
	}
	return s, nil
}

// Columns checks want against the whitelist of table and returns a copy of it.
func (c *Catalog) Columns(table Table, want []Column) ([]Column, error) {
	s, ok := c.byTable[table]
	if !ok {
		return nil, fmt.Errorf("%w: table %q", ErrUnknownSource, table)
	}
	for _, col := range want {
		if !s.Allows(col) {
			return nil, fmt.Errorf("%w: %q in %q", ErrColumnNotAllowed, col, table)
		}
	}
	return slices.Clone(want), nil
}

// Sources returns the catalog entries sorted by label.
func (c *Catalog) Sources() []Source {
	out := make([]Source, 0, len(c.byLabel))
	for _, s := range c.byLabel {
		s.Columns = slices.Clone(s.Columns)
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}
