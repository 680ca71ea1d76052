package tabular

// NotAvailable is reported for counts of an empty table.
const NotAvailable = "N/A"

// Statistics summarizes a table. Counts hold an int or NotAvailable.
type Statistics struct {
	NumColumns      any               `json:"num_columns"`
	NumObservations any               `json:"num_observations"`
	MissingValues   any               `json:"missing_values"`
	VariableTypes   map[string]string `json:"variable_types"`
}

// Stats computes the statistics of t.
func Stats(t *Table) Statistics {
	s := Statistics{
		NumColumns:      NotAvailable,
		NumObservations: NotAvailable,
		MissingValues:   NotAvailable,
		VariableTypes:   make(map[string]string, len(t.Columns)),
	}
	if len(t.Columns) > 0 {
		s.NumColumns = len(t.Columns)
	}
	if len(t.Rows) > 0 {
		s.NumObservations = len(t.Rows)
	}
	if len(t.Columns) > 0 && len(t.Rows) > 0 {
		missing := 0
		for _, row := range t.Rows {
			for _, cell := range row {
				if cell == nil {
					missing++
				}
			}
		}
		s.MissingValues = missing
	}
	for i, name := range t.Columns {
		s.VariableTypes[name] = t.Kinds[i]
	}
	return s
}
