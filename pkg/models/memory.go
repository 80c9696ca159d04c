package models

import "strings"

// MemoryContext carries narrative summaries of a bot's trading history,
// spliced into the AI prompt. All fields empty means no closed trades.
type MemoryContext struct {
	Summary           string `json:"summary"`
	RecentPerformance string `json:"recent_performance"`
	BestConditions    string `json:"best_conditions"`
	WorstConditions   string `json:"worst_conditions"`
	TimingInsights    string `json:"timing_insights"`
	Recommendations   string `json:"recommendations"`
}

// IsEmpty reports whether no field carries any text.
func (m *MemoryContext) IsEmpty() bool {
	return m.Summary == "" &&
		m.RecentPerformance == "" &&
		m.BestConditions == "" &&
		m.WorstConditions == "" &&
		m.TimingInsights == "" &&
		m.Recommendations == ""
}

// ToPrompt renders the context as a prompt section. Empty fields are
// skipped; an empty context renders to "".
func (m *MemoryContext) ToPrompt() string {
	if m.IsEmpty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== TRADING MEMORY ===\n")
	writeLine := func(label, text string) {
		if text != "" {
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(text)
			b.WriteString("\n")
		}
	}
	writeLine("Overall", m.Summary)
	writeLine("Recent", m.RecentPerformance)
	writeLine("Works well", m.BestConditions)
	writeLine("Works poorly", m.WorstConditions)
	writeLine("Timing", m.TimingInsights)
	writeLine("Guidance", m.Recommendations)
	b.WriteString("======================\n")
	return b.String()
}
