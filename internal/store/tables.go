package store

import (
	"fmt"
	"strings"
)

// TableSpec describes one reconciliation target: the table name, the
// columns written for each row, and the natural-key columns used for
// conflict detection. An empty KeyColumns marks the table append-only.
type TableSpec struct {
	Name       string
	Columns    []string
	KeyColumns []string
}

// The fixed set of reconciliation targets. Surrogate ids (cities.city_id)
// are generated by the database and never appear in the insert columns.
var (
	Cities = TableSpec{
		Name:       "cities",
		Columns:    []string{"city_name", "country_code", "latitude", "longitude"},
		KeyColumns: []string{"city_name"},
	}

	Airports = TableSpec{
		Name:       "airports",
		Columns:    []string{"airport_iata", "airport_name"},
		KeyColumns: []string{"airport_iata"},
	}

	// Every column is part of the key, so a conflicting row carries no new
	// information and the conflict resolves to a no-op.
	CityAirports = TableSpec{
		Name:       "cities_airports",
		Columns:    []string{"city_id", "airport_iata"},
		KeyColumns: []string{"city_id", "airport_iata"},
	}

	Populations = TableSpec{
		Name:       "populations",
		Columns:    []string{"city_id", "population", "timestamp_population"},
		KeyColumns: []string{"city_id"},
	}

	CityWeather = TableSpec{
		Name: "city_weather",
		Columns: []string{
			"city_id", "temperature", "main_forecast", "description",
			"wind_speed", "date_time", "chance_of_precipitation", "rain_amount",
		},
	}

	Flights = TableSpec{
		Name:    "flights",
		Columns: []string{"arrival_iata", "flight_num", "arrival_time_scheduled"},
	}
)

// AppendOnly reports whether the table accepts duplicate rows across runs.
func (s TableSpec) AppendOnly() bool {
	return len(s.KeyColumns) == 0
}

// KeyIndexes returns the positions of the key columns within Columns.
func (s TableSpec) KeyIndexes() []int {
	idx := make([]int, 0, len(s.KeyColumns))
	for _, key := range s.KeyColumns {
		for i, col := range s.Columns {
			if col == key {
				idx = append(idx, i)
				break
			}
		}
	}
	return idx
}

func (s TableSpec) nonKeyColumns() []string {
	keys := make(map[string]bool, len(s.KeyColumns))
	for _, k := range s.KeyColumns {
		keys[k] = true
	}
	var cols []string
	for _, c := range s.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// collapseByKey drops repeated natural keys within one batch. Postgres
// rejects a multi-row ON CONFLICT DO UPDATE that touches the same key
// twice, and independent fetches (two nearby cities sharing an airport)
// legitimately produce such repeats. First-seen order is kept; when the
// table has non-key columns the last values win, matching the row-by-row
// overwrite semantics.
func collapseByKey(spec TableSpec, rows [][]any) [][]any {
	if spec.AppendOnly() {
		return rows
	}

	keyIdx := spec.KeyIndexes()
	overwrite := len(spec.KeyColumns) < len(spec.Columns)

	out := make([][]any, 0, len(rows))
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		var key strings.Builder
		for _, i := range keyIdx {
			fmt.Fprintf(&key, "%v\x00", row[i])
		}
		if pos, ok := seen[key.String()]; ok {
			if overwrite {
				out[pos] = row
			}
			continue
		}
		seen[key.String()] = len(out)
		out = append(out, row)
	}
	return out
}

// buildUpsertSQL renders one multi-row INSERT for rowCount rows. Keyed
// tables get an ON CONFLICT clause: DO UPDATE overwriting the non-key
// columns from EXCLUDED, or DO NOTHING when the key spans every column.
func buildUpsertSQL(spec TableSpec, rowCount int) string {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(spec.Name)
	b.WriteString(" (")
	b.WriteString(strings.Join(spec.Columns, ", "))
	b.WriteString(") VALUES ")

	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for col := range spec.Columns {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteString(")")
	}

	if spec.AppendOnly() {
		return b.String()
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(strings.Join(spec.KeyColumns, ", "))
	b.WriteString(")")

	nonKey := spec.nonKeyColumns()
	if len(nonKey) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}

	b.WriteString(" DO UPDATE SET ")
	for i, col := range nonKey {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
		b.WriteString(" = EXCLUDED.")
		b.WriteString(col)
	}
	return b.String()
}
