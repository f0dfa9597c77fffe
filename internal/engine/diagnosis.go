package engine

import (
	"math"
	"strconv"
	"strings"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

// dxVocabulary maps diagnosis text, as produced upstream from the DX column, to classes.
var dxVocabulary = map[string]schemas.Diagnosis{
	"CN":       schemas.DiagnosisCN,
	"NL":       schemas.DiagnosisCN,
	"MCI":      schemas.DiagnosisMCI,
	"EMCI":     schemas.DiagnosisMCI,
	"LMCI":     schemas.DiagnosisMCI,
	"DEMENTIA": schemas.DiagnosisDementia,
	"AD":       schemas.DiagnosisDementia,
}

// ParseDiagnosis resolves a label cell. Numeric codes must be integral and in 0..2;
// text is matched case-insensitively against the DX vocabulary.
func ParseDiagnosis(raw string) (schemas.Diagnosis, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
			return 0, false
		}
		d := schemas.Diagnosis(int(f))
		return d, d.Valid()
	}
	d, ok := dxVocabulary[strings.ToUpper(raw)]
	return d, ok
}
