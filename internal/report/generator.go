package report

type SectionStats struct {
	Name string
	Rows int
}

type Stats struct {
	Total    int
	Sections []SectionStats
}

// Statistics counts rows per section, in section order.
func (r *Report) Statistics() Stats {
	var stats Stats
	for _, s := range r.sections {
		stats.Total += len(s.Rows)
		stats.Sections = append(stats.Sections, SectionStats{
			Name: s.Name(),
			Rows: len(s.Rows),
		})
	}
	return stats
}
