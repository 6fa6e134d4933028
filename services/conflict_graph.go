package services

import (
	"strings"
	"sync"

	"bioguard/models"
)

// ConflictGraph holds directed ingredient → condition edges.
// Reads are concurrent; writes after startup are allowed but rare.
type ConflictGraph struct {
	mu  sync.RWMutex
	out map[string][]*graphEdge // folded ingredient -> edges in insertion order
	seq []*graphEdge            // every edge in insertion order
}

type graphEdge struct {
	ingredient   string // stored key: lowercased, trimmed
	condition    string
	condFold     string
	relationship models.Relationship
	severity     models.Severity
}

func NewConflictGraph() *ConflictGraph {
	return &ConflictGraph{out: make(map[string][]*graphEdge)}
}

// AddRelationship inserts or overwrites the edge for (ingredient, condition).
// Overwriting keeps the edge's original position.
func (g *ConflictGraph) AddRelationship(ingredient, condition string, rel models.Relationship, sev models.Severity) {
	ing := normalizeKey(ingredient)
	cond := normalizeKey(condition)
	if ing == "" || cond == "" {
		return
	}
	from := foldLabel(ing)
	condFold := foldLabel(cond)

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.out[from] {
		if e.condFold == condFold {
			e.relationship = rel
			e.severity = sev
			return
		}
	}
	e := &graphEdge{ingredient: ing, condition: cond, condFold: condFold, relationship: rel, severity: sev}
	g.out[from] = append(g.out[from], e)
	g.seq = append(g.seq, e)
}

// AddEdge is AddRelationship for a ConflictEdge value.
func (g *ConflictGraph) AddEdge(e models.ConflictEdge) {
	g.AddRelationship(e.Ingredient, e.Condition, e.Relationship, e.Severity)
}

// FindConflicts returns one match per (ingredient, edge) whose condition label is
// a substring of a caller condition or the other way round. Results follow the
// ingredient order, then edge insertion order.
func (g *ConflictGraph) FindConflicts(ingredients, conditions []string) []models.ConflictMatch {
	matches := []models.ConflictMatch{}
	conds := make([]string, 0, len(conditions))
	for _, c := range conditions {
		if f := foldLabel(normalizeKey(c)); f != "" {
			conds = append(conds, f)
		}
	}
	if len(conds) == 0 {
		return matches
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, ing := range ingredients {
		key := foldLabel(normalizeKey(ing))
		if key == "" {
			continue
		}
		for _, e := range g.out[key] {
			if !matchesAny(e.condFold, conds) {
				continue
			}
			matches = append(matches, models.ConflictMatch{
				Ingredient:      ing,
				HealthCondition: e.condition,
				Relationship:    string(e.relationship),
				Severity:        string(e.severity),
			})
		}
	}
	return matches
}

// Edges returns a copy of every edge in insertion order.
func (g *ConflictGraph) Edges() []models.ConflictEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.ConflictEdge, 0, len(g.seq))
	for _, e := range g.seq {
		out = append(out, models.ConflictEdge{
			Ingredient:   e.ingredient,
			Condition:    e.condition,
			Relationship: e.relationship,
			Severity:     e.severity,
		})
	}
	return out
}

func (g *ConflictGraph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.seq)
}

// Substring either way. Known false positives ("diabetes" vs "diabetes insipidus")
// are accepted to bridge user-entered and seeded vocabularies.
func matchesAny(edgeCond string, conds []string) bool {
	for _, c := range conds {
		if strings.Contains(c, edgeCond) || strings.Contains(edgeCond, c) {
			return true
		}
	}
	return false
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// foldLabel treats '_' and '-' as spaces and collapses whitespace so that
// "blood_pressure" compares equal to "blood pressure".
func foldLabel(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
