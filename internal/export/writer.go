package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/xkilldash9x/cohortgraph/internal/config"
	"github.com/xkilldash9x/cohortgraph/internal/knowledgegraph"
)

// ExportedFile describes one committed output file.
type ExportedFile struct {
	Name   string `json:"name"`
	Path   string `json:"-"`
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Manifest is the result of a successful export.
type Manifest struct {
	Dir     string
	Files   []ExportedFile
	Tensor  *TensorGraph
	Tabular *Tabular
	Summary knowledgegraph.Summary
}

// Exporter writes both graph forms into the export directory.
type Exporter struct {
	cfg    config.ExportConfig
	logger *zap.Logger
}

// NewExporter creates an Exporter for cfg.
func NewExporter(cfg config.ExportConfig, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{cfg: cfg, logger: logger.Named("exporter")}
}

// TensorFileName is the name of the tensor container, with ".br" when compressed.
func (x *Exporter) TensorFileName() string {
	if x.cfg.Compress {
		return x.cfg.TensorFile + ".br"
	}
	return x.cfg.TensorFile
}

// pendingFile is a fully written temporary file awaiting rename.
type pendingFile struct {
	tmp  string
	file ExportedFile
}

// Export derives both forms from g, checks them against each other and commits them.
// Files are staged under temporary names and renamed only once all are written, so a
// failed export leaves no partial output behind.
func (x *Exporter) Export(g *knowledgegraph.Graph) (*Manifest, error) {
	tensor := BuildTensor(g)
	tabular := BuildTabular(g)
	if err := CheckConsistency(tensor, tabular); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(x.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", x.cfg.Dir, err)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{x.TensorFileName(), func(w io.Writer) error { return EncodeTensor(w, tensor, x.cfg.Compress) }},
		{x.cfg.NodesFile, func(w io.Writer) error { return WriteNodes(w, tabular.Nodes) }},
		{x.cfg.EdgesFile, func(w io.Writer) error { return WriteEdges(w, tabular.Edges) }},
	}

	var staged []pendingFile
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p.tmp)
		}
	}
	for _, w := range writers {
		p, err := x.stage(w.name, w.write)
		if err != nil {
			cleanup()
			return nil, err
		}
		staged = append(staged, p)
	}

	manifest := &Manifest{Dir: x.cfg.Dir, Tensor: tensor, Tabular: tabular, Summary: g.Summary()}
	for i, p := range staged {
		if err := os.Rename(p.tmp, p.file.Path); err != nil {
			for _, done := range staged[:i] {
				_ = os.Remove(done.file.Path)
			}
			staged = staged[i:]
			cleanup()
			return nil, fmt.Errorf("failed to commit %s: %w", p.file.Name, err)
		}
		manifest.Files = append(manifest.Files, p.file)
	}

	for _, f := range manifest.Files {
		x.logger.Info("Export written.", zap.String("file", f.Path), zap.Int64("bytes", f.Bytes))
	}
	return manifest, nil
}

// stage writes one output under a temporary name in the export directory.
func (x *Exporter) stage(name string, write func(io.Writer) error) (pendingFile, error) {
	f, err := os.CreateTemp(x.cfg.Dir, "."+name+".tmp-*")
	if err != nil {
		return pendingFile{}, fmt.Errorf("failed to stage %s: %w", name, err)
	}
	tmp := f.Name()
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return pendingFile{}, fmt.Errorf("failed to stage %s: %w", name, err)
	}

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(f, hasher)}
	werr := write(counter)
	if werr == nil {
		werr = f.Sync()
	}
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(tmp)
		return pendingFile{}, fmt.Errorf("failed to write %s: %w", name, werr)
	}

	return pendingFile{
		tmp: tmp,
		file: ExportedFile{
			Name:   name,
			Path:   filepath.Join(x.cfg.Dir, name),
			Bytes:  counter.n,
			SHA256: hex.EncodeToString(hasher.Sum(nil)),
		},
	}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
