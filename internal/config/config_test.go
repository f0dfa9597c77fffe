// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "cohortgraph", cfg.Logger().ServiceName)
	assert.Equal(t, ",", cfg.Input().Delimiter)
	assert.Equal(t, "tadpole", cfg.Graph().Name)
	assert.False(t, cfg.Graph().BridgeLabelGaps)
	assert.Equal(t, "graph.json", cfg.Export().TensorFile)
	assert.False(t, cfg.Postgres().Enabled)
	assert.Equal(t, 1000, cfg.Neo4j().BatchSize)
	assert.Equal(t, "cohortgraph.graph.built", cfg.Events().Subject)
}

func TestDefaultCatalogRoundTripsThroughViper(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, DefaultConcepts(), cfg.Concepts())
	assert.Equal(t, DefaultRules(), cfg.Rules())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate(), "A default config should be valid")

		missingInput := *cfg
		missingInput.InputCfg.Path = "  "
		err := missingInput.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input.path is a required configuration field")

		badDelimiter := *cfg
		badDelimiter.InputCfg.Delimiter = ";;"
		err = badDelimiter.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input.delimiter must be a single character")
	})

	t.Run("Export Validation", func(t *testing.T) {
		valid := ExportConfig{Dir: "out", TensorFile: "g.json", NodesFile: "n.csv", EdgesFile: "e.csv"}
		assert.NoError(t, valid.Validate())

		noDir := valid
		noDir.Dir = ""
		assert.ErrorContains(t, noDir.Validate(), "dir is required")

		clash := valid
		clash.EdgesFile = clash.NodesFile
		assert.ErrorContains(t, clash.Validate(), "output file names must be distinct")
	})

	t.Run("Postgres Validation", func(t *testing.T) {
		disabled := PostgresConfig{}
		assert.NoError(t, disabled.Validate(), "disabled sink should always be valid")

		missingURL := PostgresConfig{Enabled: true}
		assert.ErrorContains(t, missingURL.Validate(), "COHORTGRAPH_PG_URL")
	})

	t.Run("Neo4j Validation", func(t *testing.T) {
		valid := Neo4jConfig{Enabled: true, URI: "neo4j://db:7687", BatchSize: 10, TimeoutSeconds: 5}
		assert.NoError(t, valid.Validate())

		badBatch := valid
		badBatch.BatchSize = 0
		assert.ErrorContains(t, badBatch.Validate(), "batch_size must be a positive integer")

		badTimeout := valid
		badTimeout.TimeoutSeconds = -1
		assert.ErrorContains(t, badTimeout.Validate(), "timeout_seconds must be a positive integer")
	})

	t.Run("S3 Validation", func(t *testing.T) {
		missingBucket := S3Config{Enabled: true, Region: "eu-west-1"}
		assert.ErrorContains(t, missingBucket.Validate(), "bucket and region are required")
	})

	t.Run("Events Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.EventsCfg.Enabled = true
		cfg.EventsCfg.URL = ""
		assert.ErrorContains(t, cfg.Validate(), "events.url and events.subject are required")
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("should apply file overrides on top of defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")

		yamlConfig := []byte(`
input:
  path: /data/cohort.csv
  columns:
    patient_id: PTID
graph:
  bridge_label_gaps: true
rules:
  - name: atrophy
    source: visit
    field: hippocampal_volume
    op: "<"
    threshold: 6100
    concept: Brain_Atrophy
    relation: shows_signs_of
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "/data/cohort.csv", cfg.Input().Path)
		assert.Equal(t, "PTID", cfg.Input().Columns["patient_id"])
		assert.True(t, cfg.Graph().BridgeLabelGaps)
		require.Len(t, cfg.Rules(), 1)
		assert.Equal(t, 6100.0, cfg.Rules()[0].Threshold)
		// Concepts were not overridden and keep the reference catalog.
		assert.Equal(t, DefaultConcepts(), cfg.Concepts())
	})

	t.Run("should pick up the postgres url from the environment", func(t *testing.T) {
		t.Setenv("COHORTGRAPH_PG_URL", "postgres://u:p@localhost/cg")
		v := viper.New()
		SetDefaults(v)
		v.Set("postgres.enabled", true)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "postgres://u:p@localhost/cg", cfg.Postgres().URL)
	})

	t.Run("should fail validation for an enabled sink without credentials", func(t *testing.T) {
		t.Setenv("COHORTGRAPH_PG_URL", "")
		v := viper.New()
		SetDefaults(v)
		v.Set("postgres.enabled", true)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()

	cfg.SetInputPath("in.csv")
	cfg.SetExportDir("out")
	cfg.SetExportCompress(true)
	cfg.SetCatalog([]ConceptConfig{{ID: 0, Name: "X"}}, nil)

	assert.Equal(t, "in.csv", cfg.Input().Path)
	assert.Equal(t, "out", cfg.Export().Dir)
	assert.True(t, cfg.Export().Compress)
	assert.Equal(t, []ConceptConfig{{ID: 0, Name: "X"}}, cfg.Concepts())
	assert.Nil(t, cfg.Rules())
}
