// Package preprocessing reads street networks exported by OSMnx and converts them into the
// compact gob form the service loads at startup.
package preprocessing

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/baronsmv/navi/network"
)

// JSONGraph is the node-link document written by networkx/OSMnx.
type JSONGraph struct {
	Metadata struct {
		GeneratedAt string `json:"generated_at"`
		Title       string `json:"title"`
		NodeCount   int    `json:"node_count"`
		EdgeCount   int    `json:"edge_count"`
	} `json:"metadata"`
	Graph struct {
		Directed   bool       `json:"directed"`
		Multigraph bool       `json:"multigraph"`
		Nodes      []JSONNode `json:"nodes"`
		Links      []JSONEdge `json:"links"`
	} `json:"graph"`
}

type JSONNode struct {
	Y   float64     `json:"y"`
	X   float64     `json:"x"`
	Lon float64     `json:"lon"`
	Lat float64     `json:"lat"`
	ID  interface{} `json:"id"` // Can be int64 or string
}

type JSONEdge struct {
	ID        interface{} `json:"id,omitempty"`
	Source    interface{} `json:"source"` // Can be int64 or string
	Target    interface{} `json:"target"` // Can be int64 or string
	Length    float64     `json:"length"`
	DistanceM float64     `json:"distance_m"`
	Geometry  interface{} `json:"geometry,omitempty"` // WKT string or [[lon, lat], ...]
	Key       int         `json:"key"`
}

func convertID(id interface{}) (int64, error) {
	switch v := id.(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	case json.Number:
		return v.Int64()
	default:
		return 0, fmt.Errorf("unsupported ID type: %T", id)
	}
}

func convertFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case json.Number:
		return n.Float64()
	default:
		return 0, fmt.Errorf("unsupported coordinate type: %T", v)
	}
}

func convertGeometry(g interface{}) (orb.LineString, error) {
	switch v := g.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		return wkt.UnmarshalLineString(v)
	case []interface{}:
		ls := make(orb.LineString, 0, len(v))
		for _, raw := range v {
			pair, ok := raw.([]interface{})
			if !ok || len(pair) < 2 {
				return nil, fmt.Errorf("geometry point %v is not a [lon, lat] pair", raw)
			}
			lon, err := convertFloat(pair[0])
			if err != nil {
				return nil, err
			}
			lat, err := convertFloat(pair[1])
			if err != nil {
				return nil, err
			}
			ls = append(ls, orb.Point{lon, lat})
		}
		return ls, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type: %T", g)
	}
}

// ParseNodeLink decodes an OSMnx node-link document into a raw network. Edges without an id are
// numbered by Build after the largest explicit id.
func ParseNodeLink(r io.Reader) (network.RawNetwork, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var jsonGraph JSONGraph
	if err := dec.Decode(&jsonGraph); err != nil {
		return network.RawNetwork{}, fmt.Errorf("failed to parse JSON: %w", err)
	}

	raw := network.RawNetwork{
		Nodes: make([]network.RawNode, 0, len(jsonGraph.Graph.Nodes)),
		Edges: make([]network.RawEdge, 0, len(jsonGraph.Graph.Links)),
	}
	for _, jsonNode := range jsonGraph.Graph.Nodes {
		nodeID, err := convertID(jsonNode.ID)
		if err != nil {
			return network.RawNetwork{}, fmt.Errorf("failed to convert node ID (%v): %w", jsonNode.ID, err)
		}

		lat := jsonNode.Lat
		lon := jsonNode.Lon
		if lat == 0 && lon == 0 {
			lat = jsonNode.Y
			lon = jsonNode.X
		}
		raw.Nodes = append(raw.Nodes, network.RawNode{ID: network.NodeID(nodeID), Lat: lat, Lon: lon})
	}

	for i, jsonEdge := range jsonGraph.Graph.Links {
		sourceID, err := convertID(jsonEdge.Source)
		if err != nil {
			return network.RawNetwork{}, fmt.Errorf("failed to convert source ID (%v): %w", jsonEdge.Source, err)
		}
		targetID, err := convertID(jsonEdge.Target)
		if err != nil {
			return network.RawNetwork{}, fmt.Errorf("failed to convert target ID (%v): %w", jsonEdge.Target, err)
		}
		var edgeID int64
		if jsonEdge.ID != nil {
			if edgeID, err = convertID(jsonEdge.ID); err != nil {
				return network.RawNetwork{}, fmt.Errorf("failed to convert edge ID (%v): %w", jsonEdge.ID, err)
			}
		}
		geom, err := convertGeometry(jsonEdge.Geometry)
		if err != nil {
			return network.RawNetwork{}, fmt.Errorf("link %d: %w", i, err)
		}

		length := jsonEdge.Length
		if length == 0 {
			length = jsonEdge.DistanceM
		}
		raw.Edges = append(raw.Edges, network.RawEdge{
			ID:       network.EdgeID(edgeID),
			From:     network.NodeID(sourceID),
			To:       network.NodeID(targetID),
			Length:   length,
			Geometry: geom,
		})
	}
	return raw, nil
}

// ReadGob decodes a network written by WriteGob.
func ReadGob(r io.Reader) (network.RawNetwork, error) {
	var raw network.RawNetwork
	if err := gob.NewDecoder(r).Decode(&raw); err != nil {
		return network.RawNetwork{}, fmt.Errorf("failed to decode GOB: %w", err)
	}
	return raw, nil
}

// WriteGob encodes a raw network.
func WriteGob(w io.Writer, raw network.RawNetwork) error {
	if err := gob.NewEncoder(w).Encode(raw); err != nil {
		return fmt.Errorf("failed to encode GOB: %w", err)
	}
	return nil
}

// FileSource loads a network from a .json node-link file or a .gob snapshot.
type FileSource struct {
	Path string
}

// Load reads and decodes the file. The format is chosen by extension.
func (s FileSource) Load(ctx context.Context) (network.RawNetwork, error) {
	if err := ctx.Err(); err != nil {
		return network.RawNetwork{}, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return network.RawNetwork{}, fmt.Errorf("could not open network file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".gob":
		return ReadGob(f)
	case ".json":
		return ParseNodeLink(f)
	default:
		return network.RawNetwork{}, fmt.Errorf("unsupported network file %s: want .json or .gob", s.Path)
	}
}

// ConvertStats summarises a conversion.
type ConvertStats struct {
	Nodes int
	Edges int
}

// ConvertJSONToGob reads a node-link file, checks that it builds into a graph, and writes it as
// gob to outputPath.
func ConvertJSONToGob(inputPath, outputPath string) (ConvertStats, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return ConvertStats{}, fmt.Errorf("failed to open JSON file %s: %w", inputPath, err)
	}
	defer f.Close()

	raw, err := ParseNodeLink(f)
	if err != nil {
		return ConvertStats{}, fmt.Errorf("%s: %w", inputPath, err)
	}
	if _, err := network.Build(raw, network.BuildOptions{}); err != nil {
		return ConvertStats{}, fmt.Errorf("%s: %w", inputPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return ConvertStats{}, fmt.Errorf("failed to create output directory for %s: %w", outputPath, err)
	}
	gobFile, err := os.Create(outputPath)
	if err != nil {
		return ConvertStats{}, fmt.Errorf("failed to create GOB file %s: %w", outputPath, err)
	}
	defer gobFile.Close()

	if err := WriteGob(gobFile, raw); err != nil {
		return ConvertStats{}, fmt.Errorf("%s: %w", outputPath, err)
	}
	return ConvertStats{Nodes: len(raw.Nodes), Edges: len(raw.Edges)}, nil
}

// DefaultGobPath returns inputPath with its extension replaced by .gob.
func DefaultGobPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), ext)
	return filepath.Join(filepath.Dir(inputPath), base+".gob")
}
