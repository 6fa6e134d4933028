package models

// Relationship describes how an ingredient affects a health condition.
type Relationship string

const (
	IncreasesRisk Relationship = "increases_risk"
	Increases     Relationship = "increases"
	Causes        Relationship = "causes"
	Harms         Relationship = "harms"
	MayTrigger    Relationship = "may_trigger"
	Triggers      Relationship = "triggers"
)

// Severity of a conflict edge.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (r Relationship) Valid() bool {
	switch r {
	case IncreasesRisk, Increases, Causes, Harms, MayTrigger, Triggers:
		return true
	}
	return false
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ConflictEdge is a directed ingredient → condition relationship.
type ConflictEdge struct {
	Ingredient   string       `json:"ingredient" yaml:"ingredient"`
	Condition    string       `json:"condition" yaml:"condition"`
	Relationship Relationship `json:"relationship" yaml:"relationship"`
	Severity     Severity     `json:"severity" yaml:"severity"`
}

// ConflictMatch is produced per analysis and embedded in the scan result.
type ConflictMatch struct {
	Ingredient      string `json:"ingredient"`
	HealthCondition string `json:"health_condition"`
	Relationship    string `json:"relationship"`
	Severity        string `json:"severity"`
}
