package shared

// ListFilters carries common list query options for master data endpoints.
type ListFilters struct {
	Search  string
	SortBy  string
	SortDir string
	Page    int
	Limit   int
}

// Offset converts page/limit into a SQL offset, clamped at zero.
func (f ListFilters) Offset() int {
	offset := (f.Page - 1) * f.Limit
	if offset < 0 {
		return 0
	}
	return offset
}

// SortOrder returns a safe ORDER BY clause from a whitelist of columns.
func SortOrder(sortBy, sortDir string, allowed map[string]string, fallback string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	if col, ok := allowed[sortBy]; ok {
		return col + " " + dir
	}
	return fallback
}
