package sqldump

import (
	"bytes"
	"compress/gzip"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGzipFixture(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := dir + "/fixture.sql.gz"
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(contents))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

func drainPages(ch <-chan Page) []Page {
	var out []Page
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestParsePagesFiltersNamespaceAndCapturesRedirectFlag(t *testing.T) {
	sql := `INSERT INTO page VALUES (10,0,'Main_Page','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),(11,1,'Talk_Page','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL),(12,0,'Old_Name','',1,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL);
`
	path := writeGzipFixture(t, sql)

	ch, err := ParsePages(path)
	require.NoError(t, err)
	pages := drainPages(ch)

	require.Len(t, pages, 2)
	assert.Equal(t, Page{ID: 10, Title: "Main Page", IsRedirect: false}, pages[0])
	assert.Equal(t, Page{ID: 12, Title: "Old Name", IsRedirect: true}, pages[1])
}

func TestParseRedirectsSkipsNonInsertLines(t *testing.T) {
	sql := "-- dump comment, no tuples here\n" +
		"INSERT INTO redirect VALUES (5,0,'Target_Page','','');\n"
	path := writeGzipFixture(t, sql)

	ch, err := ParseRedirects(path)
	require.NoError(t, err)

	var redirects []Redirect
	for r := range ch {
		redirects = append(redirects, r)
	}
	require.Len(t, redirects, 1)
	assert.Equal(t, Redirect{Source: 5, DestTitle: "Target Page"}, redirects[0])
}

func TestParseLinkTargetsAndPageLinksJoinByID(t *testing.T) {
	ltSQL := `INSERT INTO linktarget VALUES (100,0,'Dest_Page'),(101,1,'Talk_Dest');
`
	plSQL := `INSERT INTO pagelinks VALUES (1,0,100),(2,0,101);
`
	ltPath := writeGzipFixture(t, ltSQL)
	plPath := writeGzipFixture(t, plSQL)

	ltCh, err := ParseLinkTargets(ltPath)
	require.NoError(t, err)
	var targets []LinkTarget
	for lt := range ltCh {
		targets = append(targets, lt)
	}
	require.Len(t, targets, 1)
	assert.Equal(t, LinkTarget{ID: 100, Title: "Dest Page"}, targets[0])

	plCh, err := ParsePageLinks(plPath)
	require.NoError(t, err)
	var links []PageLink
	for l := range plCh {
		links = append(links, l)
	}
	// Both rows are emitted: the namespace filter on pagelinks applies to the
	// source page's namespace (both are 0 here), not the link-target's.
	require.Len(t, links, 2)
	assert.Equal(t, PageLink{Source: 1, LinkTargetID: 100}, links[0])
	assert.Equal(t, PageLink{Source: 2, LinkTargetID: 101}, links[1])
}

func TestParseHandlesChunkBoundaryOverlap(t *testing.T) {
	var sb bytes.Buffer
	sb.WriteString("INSERT INTO page VALUES ")
	for i := 0; i < 5000; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(1,0,'Page_Zero','',0,0,0.5,'20200101000000',NULL,1,100,'wikitext',NULL)")
	}
	sb.WriteString(";\n")
	path := writeGzipFixture(t, sb.String())

	ch, err := ParsePages(path)
	require.NoError(t, err)
	pages := drainPages(ch)
	assert.Len(t, pages, 5000)
}
