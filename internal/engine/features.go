package engine

import (
	"github.com/xkilldash9x/cohortgraph/internal/cohort"
)

// femaleLiteral is the only sex value encoded as 1. The comparison is case-sensitive.
const femaleLiteral = "Female"

// patientFeatures derives [age, sex, education_years, genetic_risk_count] from the
// baseline row.
func patientFeatures(baseline cohort.Row) ([]float64, error) {
	age, err := baseline.Float(cohort.FieldAge)
	if err != nil {
		return nil, err
	}
	education, err := baseline.Float(cohort.FieldEducationYears)
	if err != nil {
		return nil, err
	}
	risk, err := baseline.Float(cohort.FieldGeneticRiskCount)
	if err != nil {
		return nil, err
	}

	sex := 0.0
	if baseline.Raw(cohort.FieldSex) == femaleLiteral {
		sex = 1.0
	}
	return []float64{age, sex, education, risk}, nil
}

// visitFeatures derives the six ICV-normalized volumes followed by the two cognitive
// scores and the two biomarkers. A non-positive ICV leaves the volumes unscaled.
func visitFeatures(row cohort.Row) ([]float64, error) {
	icv, err := row.Float(cohort.FieldIntracranialVol)
	if err != nil {
		return nil, err
	}
	divisor := icv
	if icv <= 0 {
		divisor = 1.0
	}

	out := make([]float64, 0, len(cohort.VolumeFields)+4)
	for _, f := range cohort.VolumeFields {
		v, err := row.Float(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v/divisor)
	}
	for _, f := range []cohort.Field{
		cohort.FieldCognitiveScoreA, cohort.FieldCognitiveScoreB,
		cohort.FieldBiomarkerFDG, cohort.FieldBiomarkerAV45,
	} {
		v, err := row.Float(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
