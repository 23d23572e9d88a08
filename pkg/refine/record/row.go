package record

// Row is a tabular record: a fixed list of named columns and their values,
// as produced by CSV readers and dataset rows.
type Row struct {
	columns []string
	values  []any
}

// NewRow creates a row. Values beyond the column count are dropped and
// missing values are nil.
func NewRow(columns []string, values []any) *Row {
	r := &Row{
		columns: make([]string, len(columns)),
		values:  make([]any, len(columns)),
	}
	copy(r.columns, columns)
	copy(r.values, values)
	return r
}

// RowOf builds a row from string cells, the common CSV case.
func RowOf(columns []string, cells []string) *Row {
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	return NewRow(columns, values)
}

func (r *Row) index(field string) int {
	if r == nil {
		return -1
	}
	for i, c := range r.columns {
		if c == field {
			return i
		}
	}
	return -1
}

// Get implements Record.
func (r *Row) Get(field string) (any, bool) {
	i := r.index(field)
	if i < 0 {
		return nil, false
	}
	return r.values[i], true
}

// Has implements Record.
func (r *Row) Has(field string) bool {
	return r.index(field) >= 0
}

// Set implements Record. A new column is appended when field is absent.
func (r *Row) Set(field string, value any) Record {
	c := r.clone()
	if i := c.index(field); i >= 0 {
		c.values[i] = value
		return c
	}
	c.columns = append(c.columns, field)
	c.values = append(c.values, value)
	return c
}

// Delete implements Record.
func (r *Row) Delete(field string) Record {
	c := r.clone()
	i := c.index(field)
	if i < 0 {
		return c
	}
	c.columns = append(c.columns[:i], c.columns[i+1:]...)
	c.values = append(c.values[:i], c.values[i+1:]...)
	return c
}

// Fields implements Record.
func (r *Row) Fields() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Values returns a copy of the row's values in column order.
func (r *Row) Values() []any {
	if r == nil {
		return nil
	}
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

func (r *Row) clone() *Row {
	if r == nil {
		return &Row{}
	}
	return NewRow(r.columns, r.values)
}

// MarshalJSON writes the row as a JSON object in column order.
func (r *Row) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return marshalOrdered(r.columns, func(k string) any {
		v, _ := r.Get(k)
		return v
	})
}
