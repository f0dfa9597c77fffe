package cohort

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// defaultHeader renders the TADPOLE header line in RequiredFields order.
func defaultHeader() string {
	cols := DefaultColumns()
	names := make([]string, len(RequiredFields))
	for i, f := range RequiredFields {
		names[i] = cols[f]
	}
	return strings.Join(names, ",")
}

// visitLine renders a data line with the given patient, month, hippocampus and label.
func visitLine(rid, month, hippo, label string) string {
	// RID,Month,AGE,PTGENDER,PTEDUCAT,APOE4,Hippocampus,Ventricles,WholeBrain,Entorhinal,Fusiform,MidTemp,ICV,MMSE,ADAS13,FDG,AV45,Label
	return strings.Join([]string{
		rid, month, "74.3", "Male", "16", "1",
		hippo, "30000", "1000000", "3500", "16000", "19000", "1500000",
		"28", "10.5", "1.2", "1.05", label,
	}, ",")
}

func TestRead(t *testing.T) {
	t.Run("partitions rows by patient in first appearance order", func(t *testing.T) {
		data := strings.Join([]string{
			defaultHeader(),
			visitLine("11", "12", "6000", "0"),
			visitLine("3", "0", "6100", "1"),
			visitLine("11", "0", "6050", "0"),
			visitLine("3", "6", "6010", "1"),
			visitLine("7", "0", "5900", "2"),
		}, "\n")

		table, err := Read(strings.NewReader(data), "inline", nil, 0)
		require.NoError(t, err)

		assert.Equal(t, 5, table.Len())
		patients := table.Patients()
		require.Len(t, patients, 3)
		assert.Equal(t, "11", patients[0].ID)
		assert.Equal(t, "3", patients[1].ID)
		assert.Equal(t, "7", patients[2].ID)

		require.Len(t, patients[0].Rows, 2)
		assert.Equal(t, 1, patients[0].Rows[0].Number)
		assert.Equal(t, 3, patients[0].Rows[1].Number)
		assert.Equal(t, "inline", table.Source())
	})

	t.Run("exposes typed row access", func(t *testing.T) {
		data := defaultHeader() + "\n" + visitLine(" 42 ", "6", "5500.5", "1") + "\n"
		table, err := Read(strings.NewReader(data), "inline", nil, ',')
		require.NoError(t, err)

		row := table.Rows()[0]
		assert.Equal(t, "42", row.PatientID())
		assert.Equal(t, "Male", row.Raw(FieldSex))

		v, err := row.Float(FieldHippocampalVolume)
		require.NoError(t, err)
		assert.Equal(t, 5500.5, v)

		month, err := row.VisitTime()
		require.NoError(t, err)
		assert.Equal(t, 6.0, month)
	})

	t.Run("honours a custom delimiter and column mapping", func(t *testing.T) {
		cols, err := ColumnsFromConfig(map[string]string{"patient_id": "PTID"})
		require.NoError(t, err)

		header := strings.Replace(defaultHeader(), "RID", "PTID", 1)
		data := strings.ReplaceAll(header+"\n"+visitLine("5", "0", "6000", "0"), ",", ";")

		table, err := Read(strings.NewReader(data), "inline", cols, ';')
		require.NoError(t, err)
		assert.Equal(t, "5", table.Rows()[0].PatientID())
	})

	t.Run("tolerates a byte order mark and extra columns", func(t *testing.T) {
		data := "\ufeff" + defaultHeader() + ",Extra\n" + visitLine("1", "0", "6000", "0") + ",x\n"
		table, err := Read(strings.NewReader(data), "inline", nil, ',')
		require.NoError(t, err)
		assert.Equal(t, "1", table.Rows()[0].PatientID())
	})

	t.Run("header only yields an empty table", func(t *testing.T) {
		table, err := Read(strings.NewReader(defaultHeader()+"\n"), "inline", nil, ',')
		require.NoError(t, err)
		assert.Zero(t, table.Len())
		assert.Empty(t, table.Patients())
	})
}

func TestRead_SchemaError(t *testing.T) {
	header := strings.Replace(defaultHeader(), ",ICV,", ",IntracranialVolume,", 1)
	header = strings.Replace(header, ",AV45,", ",AV1451,", 1)

	_, err := Read(strings.NewReader(header+"\n"), "inline", nil, ',')
	require.Error(t, err)

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr), "expected SchemaError, got %T", err)
	assert.Equal(t, []Field{FieldIntracranialVol, FieldBiomarkerAV45}, schemaErr.Missing)
	assert.Equal(t, []string{"ICV", "AV45"}, schemaErr.Headers)
	assert.Contains(t, err.Error(), "intracranial_volume")
}

func TestRead_EmptyInput(t *testing.T) {
	_, err := Read(strings.NewReader(""), "inline", nil, ',')

	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Len(t, schemaErr.Missing, len(RequiredFields))
}

func TestRead_MissingPatientID(t *testing.T) {
	data := defaultHeader() + "\n" + visitLine("", "0", "6000", "0")
	_, err := Read(strings.NewReader(data), "inline", nil, ',')

	var derivErr *FeatureDerivationError
	require.True(t, errors.As(err, &derivErr))
	assert.Equal(t, FieldPatientID, derivErr.Field)
	assert.Equal(t, 1, derivErr.Row)
	assert.ErrorIs(t, err, ErrMissingValue)
}

func TestRead_MalformedRecord(t *testing.T) {
	data := defaultHeader() + "\n" + "1,0,\"unterminated\n"
	_, err := Read(strings.NewReader(data), "inline", nil, ',')

	var unavailable *DataUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "inline", unavailable.Path)
}

func TestRowFloat(t *testing.T) {
	cases := []struct {
		name    string
		hippo   string
		want    float64
		wantErr error
	}{
		{name: "integer", hippo: "6000", want: 6000},
		{name: "scientific", hippo: "5.6e3", want: 5600},
		{name: "padded", hippo: " 5000 ", want: 5000},
		{name: "empty", hippo: "", wantErr: ErrMissingValue},
		{name: "nan", hippo: "NaN", wantErr: ErrNotFinite},
		{name: "inf", hippo: "+Inf", wantErr: ErrNotFinite},
		{name: "text", hippo: "n/a"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := defaultHeader() + "\n" + visitLine("9", "0", tc.hippo, "0")
			table, err := Read(strings.NewReader(data), "inline", nil, ',')
			require.NoError(t, err)

			got, err := table.Rows()[0].Float(FieldHippocampalVolume)
			if tc.name == "text" {
				var derivErr *FeatureDerivationError
				require.True(t, errors.As(err, &derivErr))
				assert.Equal(t, "n/a", derivErr.Value)
				return
			}
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				var derivErr *FeatureDerivationError
				require.True(t, errors.As(err, &derivErr))
				assert.Equal(t, "9", derivErr.PatientID)
				assert.Equal(t, FieldHippocampalVolume, derivErr.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOpen(t *testing.T) {
	t.Run("reads a file from disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "clean.csv")
		data := defaultHeader() + "\n" + visitLine("1", "0", "6000", "0") + "\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		table, err := Open(path, nil, ',')
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		assert.Equal(t, path, table.Source())
	})

	t.Run("missing path is DataUnavailableError", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "absent.csv")
		_, err := Open(path, nil, ',')

		var unavailable *DataUnavailableError
		require.True(t, errors.As(err, &unavailable))
		assert.Equal(t, path, unavailable.Path)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestColumnsFromConfig(t *testing.T) {
	t.Run("overlays defaults", func(t *testing.T) {
		cols, err := ColumnsFromConfig(map[string]string{"label": "DX_code"})
		require.NoError(t, err)
		assert.Equal(t, "DX_code", cols[FieldLabel])
		assert.Equal(t, "RID", cols[FieldPatientID])
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		_, err := ColumnsFromConfig(map[string]string{"weight": "W"})
		assert.Error(t, err)
	})

	t.Run("rejects empty headers", func(t *testing.T) {
		_, err := ColumnsFromConfig(map[string]string{"label": ""})
		assert.Error(t, err)
	})
}

func TestIsNumeric(t *testing.T) {
	assert.True(t, IsNumeric(FieldHippocampalVolume))
	assert.True(t, IsNumeric(FieldGeneticRiskCount))
	assert.False(t, IsNumeric(FieldSex))
	assert.False(t, IsNumeric(FieldLabel))
	assert.False(t, IsNumeric(FieldPatientID))
}
