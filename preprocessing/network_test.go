package preprocessing

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/baronsmv/navi/network"
)

const nodeLink = `{
  "metadata": {"title": "test", "node_count": 3, "edge_count": 4},
  "graph": {
    "directed": true,
    "multigraph": true,
    "nodes": [
      {"id": 101, "y": 19.4326, "x": -99.1332},
      {"id": "102", "lat": 19.4330, "lon": -99.1332},
      {"id": 103, "y": 19.4330, "x": -99.1320}
    ],
    "links": [
      {"source": 101, "target": "102", "length": 44.5, "key": 0},
      {"source": 102, "target": 101, "length": 44.5, "key": 0},
      {"source": 102, "target": 103, "distance_m": 126, "geometry": "LINESTRING (-99.1332 19.4330, -99.1326 19.4331, -99.1320 19.4330)"},
      {"id": 77, "source": 103, "target": 102, "geometry": [[-99.1320, 19.4330], [-99.1326, 19.4331], [-99.1332, 19.4330]]}
    ]
  }
}`

func TestParseNodeLink(t *testing.T) {
	raw, err := ParseNodeLink(strings.NewReader(nodeLink))
	require.NoError(t, err)

	require.Len(t, raw.Nodes, 3)
	assert.Equal(t, network.RawNode{ID: 101, Lat: 19.4326, Lon: -99.1332}, raw.Nodes[0])
	assert.Equal(t, network.NodeID(102), raw.Nodes[1].ID)
	assert.Equal(t, 19.4330, raw.Nodes[1].Lat)

	require.Len(t, raw.Edges, 4)
	assert.Equal(t, network.NodeID(102), raw.Edges[0].To)
	assert.Equal(t, 126.0, raw.Edges[2].Length, "distance_m fills a missing length")
	assert.Len(t, raw.Edges[2].Geometry, 3)
	assert.Equal(t, orb.Point{-99.1326, 19.4331}, raw.Edges[2].Geometry[1])
	assert.Equal(t, network.EdgeID(77), raw.Edges[3].ID)
	assert.Len(t, raw.Edges[3].Geometry, 3)

	g, err := network.Build(raw, network.BuildOptions{})
	require.NoError(t, err)
	rev, ok := g.Reverse(77)
	require.True(t, ok)
	assert.Equal(t, network.EdgeID(80), rev, "unnamed links are numbered after the largest explicit id")
}

func TestParseNodeLinkErrors(t *testing.T) {
	_, err := ParseNodeLink(strings.NewReader(`{"graph": {"nodes": [{"id": true}]}}`))
	assert.ErrorContains(t, err, "failed to convert node ID")

	_, err = ParseNodeLink(strings.NewReader(`{"graph": {"nodes": [], "links": [{"source": 1, "target": 2, "geometry": "POINT (1 2)"}]}}`))
	assert.ErrorContains(t, err, "link 0")

	_, err = ParseNodeLink(strings.NewReader(`not json`))
	assert.ErrorContains(t, err, "failed to parse JSON")
}

func TestGobRoundTripThroughFileSource(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "city.json")
	require.NoError(t, os.WriteFile(in, []byte(nodeLink), 0o644))

	out := DefaultGobPath(in)
	assert.Equal(t, filepath.Join(dir, "city.gob"), out)

	stats, err := ConvertJSONToGob(in, out)
	require.NoError(t, err)
	assert.Equal(t, ConvertStats{Nodes: 3, Edges: 4}, stats)

	fromJSON, err := FileSource{Path: in}.Load(context.Background())
	require.NoError(t, err)
	fromGob, err := FileSource{Path: out}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fromJSON, fromGob)
}

func TestConvertRejectsBrokenNetwork(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "broken.json")
	doc := `{"graph": {"nodes": [{"id": 1, "lat": 1, "lon": 1}], "links": [{"source": 1, "target": 9, "length": 5}]}}`
	require.NoError(t, os.WriteFile(in, []byte(doc), 0o644))

	_, err := ConvertJSONToGob(in, filepath.Join(dir, "broken.gob"))
	var buildErr *network.GraphBuildError
	assert.ErrorAs(t, err, &buildErr)
	assert.NoFileExists(t, filepath.Join(dir, "broken.gob"))
}

func TestFileSourceRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "city.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := FileSource{Path: path}.Load(context.Background())
	assert.ErrorContains(t, err, "unsupported network file")
}

func TestWriteGob(t *testing.T) {
	raw := network.RawNetwork{Nodes: []network.RawNode{{ID: 1, Lat: 2, Lon: 3}}}
	var buf bytes.Buffer
	require.NoError(t, WriteGob(&buf, raw))

	back, err := ReadGob(&buf)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}
