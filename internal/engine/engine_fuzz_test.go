// internal/engine/engine_fuzz_test.go
package engine

import (
	"strconv"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

// fuzzVisit is the compact shape the fuzzer fills; it is expanded into a full row.
type fuzzVisit struct {
	Patient uint8
	Month   uint8
	Hippo   uint16
	MMSE    uint8
	AV45    uint8
	APOE4   uint8
	Label   uint8
	ICV     int16
	Female  bool
}

func (fv fuzzVisit) row() visitRow {
	r := healthyVisit(strconv.Itoa(int(fv.Patient%7)), strconv.Itoa(int(fv.Month%60)), "")
	r.Hippo = strconv.Itoa(int(fv.Hippo))
	r.MMSE = strconv.Itoa(int(fv.MMSE % 31))
	r.AV45 = strconv.FormatFloat(float64(fv.AV45)/100, 'g', -1, 64)
	r.APOE4 = strconv.Itoa(int(fv.APOE4 % 3))
	r.ICV = strconv.Itoa(int(fv.ICV))
	if fv.Female {
		r.Sex = "Female"
	}
	// One code in four is a missing label.
	if code := fv.Label % 4; code < 3 {
		r.Label = strconv.Itoa(int(code))
	}
	return r
}

// FuzzBuild_Structured checks the structural invariants of the graph over arbitrary cohorts.
func FuzzBuild_Structured(f *testing.F) {
	f.Add([]byte("seed-cohort-0123456789abcdef"))
	f.Add([]byte{0x04, 0x01, 0x02, 0x03, 0x10, 0x20, 0x30, 0x40, 0x50, 0x60, 0x70})

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var visits []fuzzVisit
		if err := consumer.GenerateStruct(&visits); err != nil {
			return
		}
		if len(visits) > 256 {
			visits = visits[:256]
		}

		rows := make([]visitRow, len(visits))
		for i, v := range visits {
			rows[i] = v.row()
		}
		table := tableOf(t, rows...)

		for _, opts := range []Options{{}, {BridgeLabelGaps: true}} {
			g, err := newTestEngine(opts).Build(table)
			require.NoError(t, err)
			require.NoError(t, g.Verify())

			// One patient per distinct id, one visit per labelled row.
			assert.Len(t, g.Patients, len(table.Patients()))
			assert.Equal(t, table.Len(), len(g.Visits)+len(g.Dropped))

			hv := edges(t, g, schemas.HasVisitKey)
			require.Equal(t, len(g.Visits), hv.Len())
			perPatient := make(map[int]int)
			for j := range hv.Src {
				assert.Equal(t, g.Visits[hv.Dst[j]].PatientIndex, hv.Src[j])
				perPatient[hv.Src[j]]++
			}

			nv := edges(t, g, schemas.NextVisitKey)
			chains := make(map[int]int)
			for j := range nv.Src {
				src, dst := g.Visits[nv.Src[j]], g.Visits[nv.Dst[j]]
				assert.Equal(t, src.PatientIndex, dst.PatientIndex)
				assert.Less(t, src.Index, dst.Index)
				assert.LessOrEqual(t, src.VisitTime, dst.VisitTime)
				chains[src.PatientIndex]++
			}
			for p, n := range chains {
				assert.LessOrEqual(t, n, perPatient[p]-1)
				if opts.BridgeLabelGaps {
					assert.Equal(t, perPatient[p]-1, n)
				}
			}

			assert.Len(t, g.Concepts, 4)
		}
	})
}
