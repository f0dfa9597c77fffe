package export

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
	"github.com/xkilldash9x/cohortgraph/internal/cohort"
	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/engine"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
	"github.com/xkilldash9x/cohortgraph/internal/rules"
)

// RID,Month,AGE,PTGENDER,PTEDUCAT,APOE4,Hippocampus,Ventricles,WholeBrain,Entorhinal,Fusiform,MidTemp,ICV,MMSE,ADAS13,FDG,AV45,Label
const cohortCSV = `RID,Month,AGE,PTGENDER,PTEDUCAT,APOE4,Hippocampus,Ventricles,WholeBrain,Entorhinal,Fusiform,MidTemp,ICV,MMSE,ADAS13,FDG,AV45,Label
2,0,74.3,Male,16,0,7000,30000,1000000,3500,16000,19000,1500000,29,8,1.3,1.0,CN
2,6,74.8,Male,16,0,6900,30500,995000,3450,15900,18900,1500000,28,9,1.25,1.05,0
5,0,81.3,Female,18,1,5000,45000,900000,2800,14000,17000,0,22,30,1.0,1.4,2
5,12,82.3,Female,18,1,4900,46000,890000,2700,13900,16800,0,,31,0.98,1.45,
5,24,83.3,Female,18,1,4800,47000,880000,2650,13800,16700,0,20,33,0.95,1.5,Dementia
`

func buildTestGraph(t *testing.T) *knowledgegraph.Graph {
	t.Helper()
	table, err := cohort.Read(strings.NewReader(cohortCSV), "test", nil, ',')
	require.NoError(t, err)
	g, err := engine.New(rules.Default(), engine.Options{}, zap.NewNop()).Build(table)
	require.NoError(t, err)
	return g
}

func emptyGraph(t *testing.T) *knowledgegraph.Graph {
	t.Helper()
	header := strings.SplitN(cohortCSV, "\n", 2)[0] + "\n"
	table, err := cohort.Read(strings.NewReader(header), "test", nil, ',')
	require.NoError(t, err)
	g, err := engine.New(rules.Default(), engine.Options{}, nil).Build(table)
	require.NoError(t, err)
	return g
}

func testExportConfig(dir string) config.ExportConfig {
	return config.ExportConfig{Dir: dir, TensorFile: "graph.json", NodesFile: "nodes.csv", EdgesFile: "edges.csv"}
}

func TestBuildTensor(t *testing.T) {
	tg := BuildTensor(buildTestGraph(t))

	patients, ok := tg.Node(schemas.NodePatient)
	require.True(t, ok)
	r, c := patients.X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)
	row, err := patients.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{81.3, 1, 18, 1}, row)
	assert.Nil(t, patients.Y)

	visits, ok := tg.Node(schemas.NodeVisit)
	require.True(t, ok)
	assert.Equal(t, 4, visits.Count)
	assert.Equal(t, []int64{0, 0, 2, 2}, visits.Y)
	r, c = visits.X.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 10, c)
	assert.Equal(t, 5000.0, visits.X.At(2, 0), "ICV of zero leaves the volume unscaled")

	concepts, ok := tg.Node(schemas.NodeConcept)
	require.True(t, ok)
	assert.True(t, mat.Equal(concepts.X, identity(4)), "concept features are one-hot")
	assert.Equal(t, []string{"Brain_Atrophy", "Cognitive_Decline", "Genetic_Risk_APOE4", "Amyloid_Positive"}, concepts.FeatureNames)

	hv, ok := tg.Edge(schemas.HasVisitKey)
	require.True(t, ok)
	assert.Equal(t, []int64{0, 0, 1, 1}, hv.Src)
	assert.Equal(t, []int64{0, 1, 2, 3}, hv.Dst)

	nv, ok := tg.Edge(schemas.NextVisitKey)
	require.True(t, ok)
	assert.Equal(t, []int64{0}, nv.Src, "the dropped month-12 row breaks patient 5's chain")
	assert.Equal(t, []int64{1}, nv.Dst)
	assert.Len(t, tg.Edges, 4)

	_, err = patients.Row(2)
	assert.Error(t, err)
}

// assertTensorEqual compares two tensor forms, allowing for float parsing differences
// in the last ulp.
func assertTensorEqual(t *testing.T, want, got *TensorGraph) {
	t.Helper()
	require.Len(t, got.Nodes, len(want.Nodes))
	for i := range want.Nodes {
		w, g := want.Nodes[i], got.Nodes[i]
		assert.Equal(t, w.Type, g.Type)
		assert.Equal(t, w.Count, g.Count)
		assert.Equal(t, w.FeatureNames, g.FeatureNames)
		assert.Equal(t, w.Y, g.Y)
		if w.X == nil {
			assert.Nil(t, g.X)
			continue
		}
		require.NotNil(t, g.X)
		assert.True(t, mat.EqualApprox(w.X, g.X, 1e-12), "%s features differ", w.Type)
	}
	assert.Equal(t, want.Edges, got.Edges)
	assert.Equal(t, want.Concepts, got.Concepts)
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func TestBuildTensor_EmptyGraph(t *testing.T) {
	tg := BuildTensor(emptyGraph(t))

	patients, _ := tg.Node(schemas.NodePatient)
	assert.Zero(t, patients.Count)
	assert.Nil(t, patients.X)

	visits, _ := tg.Node(schemas.NodeVisit)
	assert.NotNil(t, visits.Y)
	assert.Empty(t, visits.Y)

	concepts, _ := tg.Node(schemas.NodeConcept)
	assert.Equal(t, 4, concepts.Count)

	var buf bytes.Buffer
	require.NoError(t, EncodeTensor(&buf, tg, false))
	decoded, err := DecodeTensor(&buf, false)
	require.NoError(t, err)
	assertTensorEqual(t, tg, decoded)
}

func TestTensorContainer_RoundTrip(t *testing.T) {
	tg := BuildTensor(buildTestGraph(t))

	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, EncodeTensor(&buf, tg, compress))
		if !compress {
			assert.Contains(t, buf.String(), `"format":"cohortgraph.hetero/v1"`)
			assert.Contains(t, buf.String(), `"edge_index":[[0,0,1,1],[0,1,2,3]]`)
		}

		decoded, err := DecodeTensor(&buf, compress)
		require.NoError(t, err)
		assertTensorEqual(t, tg, decoded)
	}
}

func TestDecodeTensor_Rejects(t *testing.T) {
	cases := map[string]string{
		"wrong format":  `{"format":"other/v9"}`,
		"bad shape":     `{"format":"cohortgraph.hetero/v1","node_types":[{"type":"patient","num_nodes":2,"x":{"rows":2,"cols":4,"data":[1]}}]}`,
		"unbalanced":    `{"format":"cohortgraph.hetero/v1","edge_types":[{"src":"patient","relation":"has_visit","dst":"visit","edge_index":[[0],[]]}]}`,
		"not json":      `<graph/>`,
		"rows mismatch": `{"format":"cohortgraph.hetero/v1","node_types":[{"type":"patient","num_nodes":3,"x":{"rows":2,"cols":1,"data":[1,2]}}]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeTensor(strings.NewReader(doc), false)
			assert.Error(t, err)
		})
	}
}

func TestBuildTabular(t *testing.T) {
	tab := BuildTabular(buildTestGraph(t))

	require.Len(t, tab.Nodes, 2+4+4)
	assert.Equal(t, schemas.NodeRecord{
		ID: "Patient_1", Type: schemas.NodePatient, Name: "Patient 1 (RID 5, F)", Features: "[81.3,1,18,1]",
	}, tab.Nodes[1])
	assert.Equal(t, "Visit_3", tab.Nodes[5].ID)
	assert.Equal(t, "Visit 3 [AD]", tab.Nodes[5].Name)
	assert.Equal(t, schemas.NodeRecord{
		ID: "Concept_2", Type: schemas.NodeConcept, Name: "Genetic_Risk_APOE4", Features: "[0,0,1,0]",
	}, tab.Nodes[8])

	assert.Contains(t, tab.Edges, schemas.EdgeRecord{Src: "Patient_0", Dst: "Visit_1", Type: schemas.RelationHasVisit})
	assert.Contains(t, tab.Edges, schemas.EdgeRecord{Src: "Visit_0", Dst: "Visit_1", Type: schemas.RelationNextVisit})
	assert.Contains(t, tab.Edges, schemas.EdgeRecord{Src: "Patient_1", Dst: "Concept_2", Type: schemas.RelationHasRisk})
	assert.Contains(t, tab.Edges, schemas.EdgeRecord{Src: "Visit_3", Dst: "Concept_0", Type: schemas.RelationShowsSignsOf})
}

func TestCSVRoundTrip(t *testing.T) {
	tab := BuildTabular(buildTestGraph(t))

	var nodes, edges bytes.Buffer
	require.NoError(t, WriteNodes(&nodes, tab.Nodes))
	require.NoError(t, WriteEdges(&edges, tab.Edges))
	assert.True(t, strings.HasPrefix(nodes.String(), "id,type,name,features\n"))
	assert.Contains(t, nodes.String(), `Patient_0,patient,"Patient 0 (RID 2, M)","[74.3,0,16,0]"`)
	assert.True(t, strings.HasPrefix(edges.String(), "src,dst,type\n"))

	gotNodes, err := ReadNodes(&nodes)
	require.NoError(t, err)
	assert.Equal(t, tab.Nodes, gotNodes)

	gotEdges, err := ReadEdges(&edges)
	require.NoError(t, err)
	assert.Equal(t, tab.Edges, gotEdges)

	_, err = ReadEdges(strings.NewReader("a,b,c\n"))
	assert.Error(t, err)
	_, err = ReadNodes(strings.NewReader(""))
	assert.Error(t, err)
}

func TestCheckConsistency(t *testing.T) {
	g := buildTestGraph(t)

	t.Run("forms derived from one graph agree", func(t *testing.T) {
		assert.NoError(t, CheckConsistency(BuildTensor(g), BuildTabular(g)))
	})

	mutations := map[string]func(tg *TensorGraph, tab *Tabular){
		"missing tabular edge": func(_ *TensorGraph, tab *Tabular) { tab.Edges = tab.Edges[1:] },
		"extra tabular edge": func(_ *TensorGraph, tab *Tabular) {
			tab.Edges = append(tab.Edges, schemas.EdgeRecord{Src: "Visit_0", Dst: "Visit_3", Type: schemas.RelationNextVisit})
		},
		"relabelled edge": func(_ *TensorGraph, tab *Tabular) { tab.Edges[0].Type = schemas.RelationHasRisk },
		"node count":      func(_ *TensorGraph, tab *Tabular) { tab.Nodes = tab.Nodes[:len(tab.Nodes)-1] },
		"unknown node type": func(_ *TensorGraph, tab *Tabular) {
			tab.Nodes = append(tab.Nodes, schemas.NodeRecord{ID: "Drug_0", Type: "drug"})
		},
		"tensor edge moved": func(tg *TensorGraph, _ *Tabular) { tg.Edges[0].Dst[0] = 3 },
		"duplicate node id": func(_ *TensorGraph, tab *Tabular) { tab.Nodes[1].ID = tab.Nodes[0].ID },
		"node id under wrong type": func(_ *TensorGraph, tab *Tabular) {
			tab.Nodes[0].Type = schemas.NodeVisit
		},
		"node id out of range": func(_ *TensorGraph, tab *Tabular) {
			last := len(tab.Nodes) - 1
			tab.Nodes[last].ID = schemas.NodeRecordID(tab.Nodes[last].Type, 99)
		},
		"tensor node count grown": func(tg *TensorGraph, _ *Tabular) { tg.Nodes[0].Count++ },
	}
	for name, mutate := range mutations {
		t.Run("detects "+name, func(t *testing.T) {
			tg, tab := BuildTensor(g), BuildTabular(g)
			mutate(tg, tab)
			err := CheckConsistency(tg, tab)
			var integrityErr *knowledgegraph.IntegrityError
			assert.True(t, errors.As(err, &integrityErr), "expected IntegrityError, got %v", err)
		})
	}
}

func TestExport(t *testing.T) {
	g := buildTestGraph(t)

	t.Run("writes all forms and no temporaries", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "out")
		manifest, err := NewExporter(testExportConfig(dir), nil).Export(g)
		require.NoError(t, err)

		require.Len(t, manifest.Files, 3)
		assert.Equal(t, []string{"graph.json", "nodes.csv", "edges.csv"},
			[]string{manifest.Files[0].Name, manifest.Files[1].Name, manifest.Files[2].Name})
		for _, f := range manifest.Files {
			info, err := os.Stat(f.Path)
			require.NoError(t, err)
			assert.Equal(t, info.Size(), f.Bytes)
			assert.Len(t, f.SHA256, 64)
		}
		assert.Equal(t, 2, manifest.Summary.Patients)
		assert.Equal(t, 1, manifest.Summary.Dropped)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 3)

		f, err := os.Open(filepath.Join(dir, "graph.json"))
		require.NoError(t, err)
		defer f.Close()
		decoded, err := DecodeTensor(f, false)
		require.NoError(t, err)
		assertTensorEqual(t, manifest.Tensor, decoded)
	})

	t.Run("output is byte identical across runs", func(t *testing.T) {
		dirA, dirB := t.TempDir(), t.TempDir()
		a, err := NewExporter(testExportConfig(dirA), nil).Export(buildTestGraph(t))
		require.NoError(t, err)
		b, err := NewExporter(testExportConfig(dirB), nil).Export(buildTestGraph(t))
		require.NoError(t, err)

		for i := range a.Files {
			assert.Equal(t, a.Files[i].SHA256, b.Files[i].SHA256, a.Files[i].Name)
			dataA, err := os.ReadFile(a.Files[i].Path)
			require.NoError(t, err)
			dataB, err := os.ReadFile(b.Files[i].Path)
			require.NoError(t, err)
			assert.Equal(t, dataA, dataB)
		}
	})

	t.Run("compressed container", func(t *testing.T) {
		cfg := testExportConfig(t.TempDir())
		cfg.Compress = true
		x := NewExporter(cfg, nil)
		assert.Equal(t, "graph.json.br", x.TensorFileName())

		manifest, err := x.Export(g)
		require.NoError(t, err)

		f, err := os.Open(filepath.Join(cfg.Dir, "graph.json.br"))
		require.NoError(t, err)
		defer f.Close()
		decoded, err := DecodeTensor(f, true)
		require.NoError(t, err)
		assertTensorEqual(t, manifest.Tensor, decoded)
	})

	t.Run("failure leaves no partial output", func(t *testing.T) {
		dir := t.TempDir()
		cfg := testExportConfig(dir)
		cfg.EdgesFile = filepath.Join("missing", "edges.csv")

		_, err := NewExporter(cfg, nil).Export(g)
		require.Error(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("unusable directory", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

		_, err := NewExporter(testExportConfig(blocker), nil).Export(g)
		assert.Error(t, err)
	})
}
