package cohort

import "fmt"

// Field is a logical column of the cleaned visit table. The physical CSV header it maps
// to is configurable; see ColumnMap.
type Field string

const (
	FieldPatientID         Field = "patient_id"
	FieldVisitTime         Field = "visit_time"
	FieldAge               Field = "age"
	FieldSex               Field = "sex"
	FieldEducationYears    Field = "education_years"
	FieldGeneticRiskCount  Field = "genetic_risk_count"
	FieldHippocampalVolume Field = "hippocampal_volume"
	FieldVentriclesVolume  Field = "ventricles_volume"
	FieldWholeBrainVolume  Field = "whole_brain_volume"
	FieldEntorhinalVolume  Field = "entorhinal_volume"
	FieldFusiformVolume    Field = "fusiform_volume"
	FieldMidTemporalVolume Field = "mid_temporal_volume"
	FieldIntracranialVol   Field = "intracranial_volume"
	FieldCognitiveScoreA   Field = "cognitive_score_a"
	FieldCognitiveScoreB   Field = "cognitive_score_b"
	FieldBiomarkerFDG      Field = "biomarker_fdg"
	FieldBiomarkerAV45     Field = "biomarker_av45"
	FieldLabel             Field = "label"
)

// RequiredFields lists every column the table must carry, in a stable order.
var RequiredFields = []Field{
	FieldPatientID, FieldVisitTime,
	FieldAge, FieldSex, FieldEducationYears, FieldGeneticRiskCount,
	FieldHippocampalVolume, FieldVentriclesVolume, FieldWholeBrainVolume,
	FieldEntorhinalVolume, FieldFusiformVolume, FieldMidTemporalVolume,
	FieldIntracranialVol,
	FieldCognitiveScoreA, FieldCognitiveScoreB,
	FieldBiomarkerFDG, FieldBiomarkerAV45,
	FieldLabel,
}

// VolumeFields are the six regional brain volumes, in feature-vector order.
var VolumeFields = []Field{
	FieldHippocampalVolume, FieldVentriclesVolume, FieldWholeBrainVolume,
	FieldEntorhinalVolume, FieldFusiformVolume, FieldMidTemporalVolume,
}

// numericFields are the fields a bridge rule may read.
var numericFields = map[Field]bool{
	FieldVisitTime: true, FieldAge: true, FieldEducationYears: true, FieldGeneticRiskCount: true,
	FieldHippocampalVolume: true, FieldVentriclesVolume: true, FieldWholeBrainVolume: true,
	FieldEntorhinalVolume: true, FieldFusiformVolume: true, FieldMidTemporalVolume: true,
	FieldIntracranialVol: true, FieldCognitiveScoreA: true, FieldCognitiveScoreB: true,
	FieldBiomarkerFDG: true, FieldBiomarkerAV45: true,
}

// IsNumeric reports whether f holds a numeric measurement.
func IsNumeric(f Field) bool {
	return numericFields[f]
}

// ColumnMap maps logical fields to CSV headers.
type ColumnMap map[Field]string

// DefaultColumns is the header layout produced by the TADPOLE preprocessing stage.
func DefaultColumns() ColumnMap {
	return ColumnMap{
		FieldPatientID:         "RID",
		FieldVisitTime:         "Month",
		FieldAge:               "AGE",
		FieldSex:               "PTGENDER",
		FieldEducationYears:    "PTEDUCAT",
		FieldGeneticRiskCount:  "APOE4",
		FieldHippocampalVolume: "Hippocampus",
		FieldVentriclesVolume:  "Ventricles",
		FieldWholeBrainVolume:  "WholeBrain",
		FieldEntorhinalVolume:  "Entorhinal",
		FieldFusiformVolume:    "Fusiform",
		FieldMidTemporalVolume: "MidTemp",
		FieldIntracranialVol:   "ICV",
		FieldCognitiveScoreA:   "MMSE",
		FieldCognitiveScoreB:   "ADAS13",
		FieldBiomarkerFDG:      "FDG",
		FieldBiomarkerAV45:     "AV45",
		FieldLabel:             "Label",
	}
}

// ColumnsFromConfig overlays configured header names on top of the defaults.
// Unknown logical names are rejected so that a typo does not silently fall back.
func ColumnsFromConfig(overrides map[string]string) (ColumnMap, error) {
	cols := DefaultColumns()
	for name, header := range overrides {
		f := Field(name)
		if _, ok := cols[f]; !ok {
			return nil, fmt.Errorf("unknown input column field %q", name)
		}
		if header == "" {
			return nil, fmt.Errorf("empty header for input column field %q", name)
		}
		cols[f] = header
	}
	return cols, nil
}
