package knowledgegraph

import (
	"fmt"
	"io"
	"strconv"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/cohortgraph/api/schemas"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

// graphMLKeys declares the data attributes used by timeline documents.
var graphMLKeys = []struct{ id, target, typ string }{
	{"type", "node", "string"},
	{"label", "node", "string"},
	{"source_id", "node", "string"},
	{"visit_time", "node", "double"},
	{"diagnosis", "node", "string"},
	{"features", "node", "string"},
	{"relation", "edge", "string"},
}

// GraphMLDocument renders the timeline as a GraphML document. Node ids are the
// tabular ids (Patient_i, Visit_i, Concept_i) of the full graph.
func (tl *Timeline) GraphMLDocument() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("graphml")
	root.CreateAttr("xmlns", graphMLNamespace)
	for _, k := range graphMLKeys {
		key := root.CreateElement("key")
		key.CreateAttr("id", k.id)
		key.CreateAttr("for", k.target)
		key.CreateAttr("attr.name", k.id)
		key.CreateAttr("attr.type", k.typ)
	}

	graph := root.CreateElement("graph")
	graph.CreateAttr("id", fmt.Sprintf("patient_%d", tl.Patient.Index))
	graph.CreateAttr("edgedefault", "directed")

	patientID := schemas.NodeRecordID(schemas.NodePatient, tl.Patient.Index)
	n := addNode(graph, patientID)
	addData(n, "type", string(schemas.NodePatient))
	addData(n, "label", fmt.Sprintf("Patient %d", tl.Patient.Index))
	addData(n, "source_id", tl.Patient.PatientID)
	addData(n, "features", FormatFeatures(tl.Patient.Features))

	for _, v := range tl.Visits {
		n := addNode(graph, schemas.NodeRecordID(schemas.NodeVisit, v.Index))
		addData(n, "type", string(schemas.NodeVisit))
		addData(n, "label", fmt.Sprintf("Visit %d", v.Index))
		addData(n, "visit_time", strconv.FormatFloat(v.VisitTime, 'g', -1, 64))
		addData(n, "diagnosis", v.Label.String())
		addData(n, "features", FormatFeatures(v.Features))
	}
	for _, c := range tl.Concepts {
		n := addNode(graph, schemas.NodeRecordID(schemas.NodeConcept, int(c.ID)))
		addData(n, "type", string(schemas.NodeConcept))
		addData(n, "label", c.Name)
	}

	for _, v := range tl.Visits {
		addEdge(graph, patientID, schemas.NodeRecordID(schemas.NodeVisit, v.Index), schemas.RelationHasVisit)
	}
	for _, pair := range tl.NextVisit {
		addEdge(graph,
			schemas.NodeRecordID(schemas.NodeVisit, pair[0]),
			schemas.NodeRecordID(schemas.NodeVisit, pair[1]),
			schemas.RelationNextVisit)
	}
	for _, l := range tl.Links {
		addEdge(graph,
			schemas.NodeRecordID(l.Source, l.SourceIndex),
			schemas.NodeRecordID(schemas.NodeConcept, int(l.Concept)),
			l.Relation)
	}

	doc.Indent(2)
	return doc
}

// WriteGraphML writes the timeline as GraphML to w.
func (tl *Timeline) WriteGraphML(w io.Writer) error {
	if _, err := tl.GraphMLDocument().WriteTo(w); err != nil {
		return fmt.Errorf("failed to write GraphML: %w", err)
	}
	return nil
}

func addNode(graph *etree.Element, id string) *etree.Element {
	n := graph.CreateElement("node")
	n.CreateAttr("id", id)
	return n
}

func addEdge(graph *etree.Element, src, dst string, rel schemas.RelationType) {
	e := graph.CreateElement("edge")
	e.CreateAttr("source", src)
	e.CreateAttr("target", dst)
	addData(e, "relation", string(rel))
}

func addData(parent *etree.Element, key, value string) {
	d := parent.CreateElement("data")
	d.CreateAttr("key", key)
	d.SetText(value)
}
