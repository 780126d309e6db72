package graphdb

import (
	"context"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikipath/wikipath/internal/builder"
	"github.com/wikipath/wikipath/internal/dumpfetch"
	"github.com/wikipath/wikipath/internal/paths"
	"github.com/wikipath/wikipath/internal/vertexstore"
)

func writeGzipFixture(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

// buildTestDataset runs the real builder pipeline against a tiny three-page
// fixture (A -> B, C isolated) so the façade is exercised against an
// on-disk dataset rather than hand-crafted fakes.
func buildTestDataset(t *testing.T) paths.Root {
	t.Helper()
	dir := t.TempDir()
	root := paths.New(dir)

	pageSQL := `INSERT INTO page VALUES ` +
		`(1,0,'A','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),` +
		`(2,0,'B','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),` +
		`(3,0,'C','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL);` + "\n"
	linkTargetSQL := `INSERT INTO linktarget VALUES (200,0,'B');` + "\n"
	pageLinksSQL := `INSERT INTO pagelinks VALUES (1,0,200);` + "\n"

	dumps := dumpfetch.LocalDumpFiles{
		PagePath:       writeGzipFixture(t, dir, "page.sql.gz", pageSQL),
		RedirectPath:   writeGzipFixture(t, dir, "redirect.sql.gz", "\n"),
		LinkTargetPath: writeGzipFixture(t, dir, "linktarget.sql.gz", linkTargetSQL),
		PagelinksPath:  writeGzipFixture(t, dir, "pagelinks.sql.gz", pageLinksSQL),
		DumpDate:       "20240101",
	}

	b := builder.New(root, dumps)
	require.NoError(t, b.Build(context.Background()))
	return root
}

func TestOpenFindsVerticesAndRunsBFS(t *testing.T) {
	root := buildTestDataset(t)

	g, err := Open(root)
	require.NoError(t, err)
	defer g.Close()

	assert.Equal(t, "20240101", g.DumpDate())

	v, err := g.FindVertexByTitle("A")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v.ID)

	byID, err := g.FindVertexByID(2)
	require.NoError(t, err)
	assert.Equal(t, "B", byID.Title)

	_, err = g.FindVertexByTitle("does not exist")
	assert.ErrorIs(t, err, vertexstore.ErrNotFound)

	paths, err := g.BFS(1, 2, true)
	require.NoError(t, err)
	assert.Equal(t, [][]uint32{{1, 2}}, paths)

	paths, err = g.BFS(1, 3, false)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestBFSRecordsQueryLogOnlyWhenAsked(t *testing.T) {
	root := buildTestDataset(t)

	g, err := Open(root)
	require.NoError(t, err)
	defer g.Close()

	_, err = g.BFS(1, 2, true)
	require.NoError(t, err)
	_, err = g.BFS(1, 2, false)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", "file:"+root.MasterDB())
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM query_log").Scan(&count))
	assert.Equal(t, 1, count)

	var pathCount int
	var pathsJSON string
	require.NoError(t, db.QueryRow("SELECT path_count, paths FROM query_log").Scan(&pathCount, &pathsJSON))
	assert.Equal(t, 1, pathCount)

	var decoded [][]uint32
	require.NoError(t, json.Unmarshal([]byte(pathsJSON), &decoded))
	assert.Equal(t, [][]uint32{{1, 2}}, decoded)
}
