package builder

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wikipath/wikipath/internal/adjacency"
	"github.com/wikipath/wikipath/internal/dumpfetch"
	"github.com/wikipath/wikipath/internal/paths"
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

// buildFixtureDumps writes a small five-vertex graph:
//
//	1 "A", 2 "B", 3 "C", 4 "D", 5 "Old B" (redirect -> "B")
//
// with edges 1->B (direct), 1->"Old B" (one redirect hop), 3->B, plus one
// pagelinks row whose link-target id has no corresponding linktarget row
// (dropped at the join, before it ever becomes a Link).
func buildFixtureDumps(t *testing.T) dumpfetch.LocalDumpFiles {
	t.Helper()
	dir := t.TempDir()

	pageSQL := `INSERT INTO page VALUES ` +
		`(1,0,'A','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),` +
		`(2,0,'B','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),` +
		`(3,0,'C','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),` +
		`(4,0,'D','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),` +
		`(5,0,'Old_B','',1,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL);` + "\n"

	redirectSQL := `INSERT INTO redirect VALUES (5,0,'B','','');` + "\n"

	linkTargetSQL := `INSERT INTO linktarget VALUES (200,0,'B'),(201,0,'Old_B');` + "\n"

	pageLinksSQL := `INSERT INTO pagelinks VALUES (1,0,200),(1,0,201),(3,0,200),(1,0,999);` + "\n"

	return dumpfetch.LocalDumpFiles{
		PagePath:       writeGzipFixture(t, dir, "page.sql.gz", pageSQL),
		RedirectPath:   writeGzipFixture(t, dir, "redirect.sql.gz", redirectSQL),
		LinkTargetPath: writeGzipFixture(t, dir, "linktarget.sql.gz", linkTargetSQL),
		PagelinksPath:  writeGzipFixture(t, dir, "pagelinks.sql.gz", pageLinksSQL),
		DumpDate:       "20240101",
	}
}

func TestBuildProducesQueryableAdjacencyAndSwapsSymlink(t *testing.T) {
	root := paths.New(t.TempDir())
	dumps := buildFixtureDumps(t)

	// a stale sibling dataset that should be cleaned up once "current" moves
	// past it.
	stale := root.Dataset("20230101")
	require.NoError(t, os.MkdirAll(stale.Dir, 0755))

	b := New(root, dumps)
	require.NoError(t, b.Build(context.Background()))

	dataset, dumpDate, err := root.CurrentDataset()
	require.NoError(t, err)
	assert.Equal(t, "20240101", dumpDate)

	status, err := loadStatus(dataset.StatusFile())
	require.NoError(t, err)
	assert.True(t, status.BuildComplete)
	assert.True(t, status.VertexesLoaded)
	assert.True(t, status.RedirectsResolved)
	assert.True(t, status.EdgesResolved)
	assert.True(t, status.EdgesSorted)
	assert.True(t, status.AdjacencyWritten)
	assert.Equal(t, uint32(5), status.VertexCount)
	assert.Equal(t, uint32(3), status.EdgeCount)
	assert.Equal(t, uint32(5), status.MaxVertexID)

	db, err := adjacency.Open(dataset.AdjacencyFile(), dataset.AdjacencyIndex())
	require.NoError(t, err)
	defer db.Close()

	outgoing, _, err := db.ReadEdges(1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 2}, outgoing) // direct B, plus one redirect hop through "Old B"

	_, incoming, err := db.ReadEdges(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{1, 1, 3}, incoming)

	_, err = os.Stat(stale.Dir)
	assert.True(t, os.IsNotExist(err), "stale sibling dataset should have been removed")

	_, err = os.Stat(dataset.EdgeProcDir())
	assert.True(t, os.IsNotExist(err), "scratch edge-processing directory should have been removed")
}

func TestBuildSkipsCompletedPhasesOnRestart(t *testing.T) {
	root := paths.New(t.TempDir())
	dumps := buildFixtureDumps(t)

	b := New(root, dumps)
	require.NoError(t, b.Build(context.Background()))

	dataset, _, err := root.CurrentDataset()
	require.NoError(t, err)
	firstStatus, err := loadStatus(dataset.StatusFile())
	require.NoError(t, err)

	// Rebuilding with the same dump date should be a fast no-op: every phase
	// flag is already set, so Build only re-runs the symlink swap and cleanup.
	require.NoError(t, b.Build(context.Background()))

	secondStatus, err := loadStatus(dataset.StatusFile())
	require.NoError(t, err)
	assert.Equal(t, firstStatus, secondStatus)
}

