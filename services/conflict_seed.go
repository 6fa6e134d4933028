package services

import (
	"fmt"
	"os"

	"bioguard/models"

	"gopkg.in/yaml.v3"
)

// DefaultConflictEdges is the startup seed. Not clinical guidance.
var DefaultConflictEdges = []models.ConflictEdge{
	{Ingredient: "sodium", Condition: "hypertension", Relationship: models.IncreasesRisk, Severity: models.SeverityHigh},
	{Ingredient: "sodium", Condition: "blood_pressure", Relationship: models.Increases, Severity: models.SeverityHigh},
	{Ingredient: "sugar", Condition: "diabetes", Relationship: models.IncreasesRisk, Severity: models.SeverityHigh},
	{Ingredient: "sugar", Condition: "glucose_spike", Relationship: models.Causes, Severity: models.SeverityHigh},
	{Ingredient: "saturated_fat", Condition: "cholesterol", Relationship: models.Increases, Severity: models.SeverityHigh},
	{Ingredient: "preservatives", Condition: "digestive_health", Relationship: models.Harms, Severity: models.SeverityMedium},
	{Ingredient: "artificial_colors", Condition: "hyperactivity", Relationship: models.MayTrigger, Severity: models.SeverityLow},
	{Ingredient: "gluten", Condition: "celiac_disease", Relationship: models.Triggers, Severity: models.SeverityHigh},
	{Ingredient: "lactose", Condition: "lactose_intolerance", Relationship: models.Triggers, Severity: models.SeverityHigh},
	{Ingredient: "peanuts", Condition: "peanut_allergy", Relationship: models.Triggers, Severity: models.SeverityHigh},
	{Ingredient: "trans_fat", Condition: "heart_disease", Relationship: models.IncreasesRisk, Severity: models.SeverityHigh},

	// label spellings that show up in OCR / oracle ingredient lists
	{Ingredient: "salt", Condition: "hypertension", Relationship: models.IncreasesRisk, Severity: models.SeverityHigh},
	{Ingredient: "glucose_syrup", Condition: "diabetes", Relationship: models.IncreasesRisk, Severity: models.SeverityHigh},
	{Ingredient: "high_fructose_corn_syrup", Condition: "diabetes", Relationship: models.IncreasesRisk, Severity: models.SeverityHigh},
	{Ingredient: "wheat_flour", Condition: "celiac_disease", Relationship: models.Triggers, Severity: models.SeverityHigh},
	{Ingredient: "milk", Condition: "lactose_intolerance", Relationship: models.Triggers, Severity: models.SeverityMedium},
	{Ingredient: "peanut", Condition: "peanut_allergy", Relationship: models.Triggers, Severity: models.SeverityHigh},
	{Ingredient: "palm_oil", Condition: "cholesterol", Relationship: models.Increases, Severity: models.SeverityMedium},
}

// SeedConflictGraph loads the fixed startup edges.
func SeedConflictGraph(g *ConflictGraph) {
	for _, e := range DefaultConflictEdges {
		g.AddEdge(e)
	}
}

type seedFile struct {
	Edges []models.ConflictEdge `yaml:"edges"`
}

// LoadConflictSeedFile adds edges from a YAML file of the form
//
//	edges:
//	  - {ingredient: msg, condition: migraine, relationship: may_trigger, severity: low}
//
// Entries with an unknown relationship or severity are rejected.
func LoadConflictSeedFile(g *ConflictGraph, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read conflict seed: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("parse conflict seed: %w", err)
	}
	for i, e := range f.Edges {
		if !e.Relationship.Valid() || !e.Severity.Valid() {
			return 0, fmt.Errorf("conflict seed entry %d: invalid relationship %q or severity %q", i, e.Relationship, e.Severity)
		}
	}
	for _, e := range f.Edges {
		g.AddEdge(e)
	}
	return len(f.Edges), nil
}
