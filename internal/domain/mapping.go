package domain

import (
	"sort"
	"strings"
)

// MappingEntry links a canonical variable to the model field(s) that
// represent it and the glob pattern that locates the model files.
type MappingEntry struct {
	Variable      string `json:"variable"`
	ModelVariable string `json:"model_variable"`
	Pattern       string `json:"pattern"`
}

// Constituents returns the model variable names of the expression.
func (m MappingEntry) Constituents() []string {
	parts := strings.Split(m.ModelVariable, "+")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsComposite reports whether the model expression sums several fields.
func (m MappingEntry) IsComposite() bool {
	return len(m.Constituents()) > 1
}

// ResolvedVariable is a catalogue variable with its single mapping.
type ResolvedVariable struct {
	Spec  VariableSpec
	Entry MappingEntry
}

// ResolveMappings validates the mapping table against the requested
// variables. Rows without a model expression are ignored and variables
// without rows are skipped. A variable mapped to more than one distinct
// pattern is a ConfigError. The result is sorted by variable name.
func ResolveMappings(table []MappingEntry, requested []string) ([]ResolvedVariable, error) {
	rows := make(map[string][]MappingEntry)
	for _, e := range table {
		if strings.TrimSpace(e.ModelVariable) == "" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(e.Variable))
		rows[name] = append(rows[name], e)
	}

	wanted := make(map[string]bool, len(requested))
	for _, r := range requested {
		wanted[strings.ToLower(strings.TrimSpace(r))] = true
	}

	var resolved []ResolvedVariable
	for _, name := range VariableNames() {
		if !wanted[name] {
			continue
		}
		entries := rows[name]
		if len(entries) == 0 {
			continue
		}

		patterns := make(map[string]struct{})
		for _, e := range entries {
			patterns[e.Pattern] = struct{}{}
		}
		if len(patterns) > 1 {
			distinct := make([]string, 0, len(patterns))
			for p := range patterns {
				distinct = append(distinct, p)
			}
			sort.Strings(distinct)
			return nil, NewConfigError(name, "model fields are spread over %d file patterns (%s)", len(distinct), strings.Join(distinct, ", "))
		}

		spec, _ := LookupVariable(name)
		entry := entries[0]
		entry.Variable = name
		entry.ModelVariable = strings.TrimSpace(entry.ModelVariable)
		resolved = append(resolved, ResolvedVariable{Spec: spec, Entry: entry})
	}
	return resolved, nil
}
