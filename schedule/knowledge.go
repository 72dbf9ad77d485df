package schedule

import (
	"context"
	"strings"
)

// InteractionSource is the read-only medication-knowledge collaborator. It
// supplies the interaction lists the detector consumes; the knowledge base
// itself lives outside this module.
type InteractionSource interface {
	// Interactions returns the medication names known to interact with the
	// named medication. An unknown medication yields an empty list.
	Interactions(ctx context.Context, medication string) ([]string, error)
}

// StaticInteractionSource is an InteractionSource backed by a fixed map,
// keyed by lowercase medication name. Useful for tests and seed data.
type StaticInteractionSource map[string][]string

var _ InteractionSource = (StaticInteractionSource)(nil)

func (s StaticInteractionSource) Interactions(ctx context.Context, medication string) ([]string, error) {
	return s[strings.ToLower(medication)], nil
}

// EnrichMedication fills a medication's interaction list from the knowledge
// source when the medication does not already carry one. Errors from the
// source propagate so callers can decide whether to proceed unenriched.
func EnrichMedication(ctx context.Context, source InteractionSource, med Medication) (Medication, error) {
	if source == nil || len(med.Interactions) > 0 {
		return med, nil
	}
	interactions, err := source.Interactions(ctx, med.Name)
	if err != nil {
		return med, err
	}
	med.Interactions = interactions
	return med, nil
}
