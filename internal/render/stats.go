package render

import "strings"

// Stats summarizes a converted document.
type Stats struct {
	TotalPages int `json:"total_pages"`
	TextBlocks int `json:"text_blocks"`
	Tables     int `json:"tables"`
	Formulas   int `json:"formulas"`
}

// ComputeStats derives block, table and formula counts from Markdown.
// Counts are heuristics over the Markdown text, not the engine's layout model.
func ComputeStats(md string, pages int) Stats {
	if pages < 1 {
		pages = 1
	}
	s := Stats{TotalPages: pages}

	for _, p := range strings.Split(md, "\n\n") {
		if strings.TrimSpace(p) != "" {
			s.TextBlocks++
		}
	}

	if strings.Contains(md, "|") {
		s.Tables = strings.Count(md, "|---")
		if s.Tables == 0 {
			s.Tables = 1
		}
	}
	// MinerU writes tables as HTML.
	s.Tables += strings.Count(strings.ToLower(md), "<table")

	s.Formulas = strings.Count(md, "$") / 2
	return s
}
