package graphdef

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warriorguo/graphflow/types"
)

type hclFile struct {
	Graphs []*hclGraph `hcl:"graph,block"`
}

type hclGraph struct {
	ID        string     `hcl:"id,label"`
	Name      string     `hcl:"name,optional"`
	StartNode string     `hcl:"start_node"`
	Nodes     []*NodeDef `hcl:"node,block"`
	Edges     []*EdgeDef `hcl:"edge,block"`
}

func (g *hclGraph) definition() (*Definition, error) {
	d := &Definition{
		ID:        g.ID,
		Name:      g.Name,
		StartNode: g.StartNode,
		Nodes:     make(map[string]*NodeDef, len(g.Nodes)),
		Edges:     g.Edges,
	}
	for _, node := range g.Nodes {
		if _, exists := d.Nodes[node.ID]; exists {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "graph %q: node %q defined twice", g.ID, node.ID)
		}
		d.Nodes[node.ID] = node
	}
	return d, nil
}

// DecodeHCL decodes the graph blocks of src; filename is only used in
// diagnostics.
func DecodeHCL(filename string, src []byte) ([]*types.Graph, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Annotatef(types.ErrInvalidGraph, "failed to parse HCL file %s: %s", filename, diags.Error())
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, errors.Annotatef(types.ErrInvalidGraph, "failed to decode HCL file %s: %s", filename, diags.Error())
	}

	defs := make([]*Definition, 0, len(parsed.Graphs))
	for _, g := range parsed.Graphs {
		def, err := g.definition()
		if err != nil {
			return nil, errors.Annotatef(err, "file %s", filename)
		}
		defs = append(defs, def)
	}
	graphs, err := buildGraphs(defs)
	if err != nil {
		return nil, errors.Annotatef(err, "file %s", filename)
	}
	return graphs, nil
}

// DecodeJSON decodes a single graph object or an array of them.
func DecodeJSON(src []byte) ([]*types.Graph, error) {
	var defs []*Definition

	trimmed := bytes.TrimSpace(src)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &defs); err != nil {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "decode JSON graphs: %v", err)
		}
	} else {
		def := &Definition{}
		if err := json.Unmarshal(trimmed, def); err != nil {
			return nil, errors.Annotatef(types.ErrInvalidGraph, "decode JSON graph: %v", err)
		}
		defs = append(defs, def)
	}
	return buildGraphs(defs)
}

// Decode picks the format from the extension of filename.
func Decode(filename string, src []byte) ([]*types.Graph, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".hcl":
		return DecodeHCL(filename, src)
	case ".json":
		graphs, err := DecodeJSON(src)
		if err != nil {
			return nil, errors.Annotatef(err, "file %s", filename)
		}
		return graphs, nil
	}
	return nil, errors.NotSupportedf("graph file %s", filename)
}

func LoadFile(path string) ([]*types.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "read graph file %s", path)
	}
	return Decode(path, src)
}

// LoadDir loads every .hcl and .json file directly under dir, in name
// order. A graph id may only be defined once across the directory.
func LoadDir(dir string) ([]*types.Graph, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Annotatef(err, "read graph dir %s", dir)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".hcl", ".json":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		log.WithField("path", dir).Warn("no graph files found")
		return nil, nil
	}

	var graphs []*types.Graph
	seen := make(map[string]string)
	for _, name := range names {
		path := filepath.Join(dir, name)
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, errors.Trace(err)
		}
		for _, g := range loaded {
			if prev, exists := seen[g.ID]; exists {
				return nil, errors.Annotatef(types.ErrInvalidGraph, "graph %q defined in %s and %s", g.ID, prev, path)
			}
			seen[g.ID] = path
		}
		log.WithField("path", path).Debugf("loaded %d graphs", len(loaded))
		graphs = append(graphs, loaded...)
	}
	return graphs, nil
}
