// Package sqldump streams gzipped MediaWiki SQL dump files and extracts
// typed tuples from their INSERT statements, following the teacher's
// overlap-buffer regex-chunking approach in parse.go.
package sqldump

import (
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/wikipath/wikipath/internal/progressbar"
)

// bufferSize bounds the number of buffered records per output channel,
// large enough to keep every parsing goroutine busy without letting a slow
// downstream consumer balloon memory (design note §9: dynamic backpressure).
const bufferSize = 24576

// Page is one row of the page table in namespace 0.
type Page struct {
	ID         int64
	Title      string
	IsRedirect bool
}

// Redirect is one row of the redirect table in namespace 0, title-keyed
// until resolved against the vertex store.
type Redirect struct {
	Source    int64
	DestTitle string
}

// LinkTarget is one row of the linktarget table: an intermediate id that
// page-links rows reference instead of embedding the title directly.
type LinkTarget struct {
	ID    int64
	Title string
}

// PageLink is one row of the pagelinks table, still keyed by link-target id
// rather than a resolved page id.
type PageLink struct {
	Source       int64
	LinkTargetID int64
}

var titleCleaner = strings.NewReplacer(`\'`, `'`, `_`, ` `)

// ParsePages streams the page dump, emitting namespace-0 pages.
// Table reference: https://www.mediawiki.org/wiki/Manual:Page_table
func ParsePages(path string) (<-chan Page, error) {
	output := make(chan Page, bufferSize)
	regex := regexp.MustCompile(`\(([0-9]{1,10}),0,'(.{1,255}?)','',([01]),[01],[0-9.]+?,'[0-9]+?',(?:'[0-9]+?'|NULL),[0-9]{1,10},[0-9]{1,10},'wikitext',NULL\)`)
	err := parse(path, regex, 2048, func(match []string) {
		id := parseID(match[0])
		title := titleCleaner.Replace(match[1])
		isRedirect := match[2] == "1"
		output <- Page{ID: id, Title: title, IsRedirect: isRedirect}
	}, func() { close(output) })
	if err != nil {
		return nil, err
	}
	return output, nil
}

// ParseRedirects streams the redirect dump, emitting namespace-0 redirects
// keyed by destination title (resolved against the vertex store downstream,
// component C).
// Table reference: https://www.mediawiki.org/wiki/Manual:Redirect_table
func ParseRedirects(path string) (<-chan Redirect, error) {
	output := make(chan Redirect, bufferSize)
	regex := regexp.MustCompile(`\(([0-9]{1,10}),0,'(.{1,255}?)','.{0,32}?','.{0,255}?'\)`)
	err := parse(path, regex, 1536, func(match []string) {
		source := parseID(match[0])
		destTitle := titleCleaner.Replace(match[1])
		output <- Redirect{Source: source, DestTitle: destTitle}
	}, func() { close(output) })
	if err != nil {
		return nil, err
	}
	return output, nil
}

// ParseLinkTargets streams the linktarget dump, emitting namespace-0
// link-target id/title pairs. This table did not exist in the teacher's
// snapshot (an older MediaWiki schema version embedded titles directly in
// pagelinks); it is required by the modern schema this module targets.
// Table reference: https://www.mediawiki.org/wiki/Manual:Linktarget_table
func ParseLinkTargets(path string) (<-chan LinkTarget, error) {
	output := make(chan LinkTarget, bufferSize)
	regex := regexp.MustCompile(`\(([0-9]{1,20}),0,'(.{1,255}?)'\)`)
	err := parse(path, regex, 1536, func(match []string) {
		id := parseID(match[0])
		title := titleCleaner.Replace(match[1])
		output <- LinkTarget{ID: id, Title: title}
	}, func() { close(output) })
	if err != nil {
		return nil, err
	}
	return output, nil
}

// ParsePageLinks streams the pagelinks dump, emitting namespace-0 links
// keyed by link-target id. Joining against ParseLinkTargets' output to
// recover destination titles is the caller's responsibility (component D).
// Table reference: https://www.mediawiki.org/wiki/Manual:Pagelinks_table
func ParsePageLinks(path string) (<-chan PageLink, error) {
	output := make(chan PageLink, bufferSize)
	regex := regexp.MustCompile(`\(([0-9]{1,10}),0,([0-9]{1,20})\)`)
	err := parse(path, regex, 1024, func(match []string) {
		source := parseID(match[0])
		linkTarget := parseID(match[1])
		output <- PageLink{Source: source, LinkTargetID: linkTarget}
	}, func() { close(output) })
	if err != nil {
		return nil, err
	}
	return output, nil
}

// parse opens a gzipped dump file and concurrently runs a regex over its
// contents, invoking emit for every match. It reads the file through a
// buffer, which can cause a regex match to straddle two reads; maxMatchSize
// bytes are therefore carried over from the tail of one chunk to the head of
// the next so no match is missed at a chunk boundary. A match lying wholly
// inside that carried-over head is skipped, since the previous chunk already
// emitted it.
func parse(path string, regex *regexp.Regexp, maxMatchSize int, emit func([]string), done func()) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}

	info, statErr := file.Stat()
	var size int64
	if statErr == nil {
		size = info.Size()
	}
	bar := progressbar.New(size)
	reader := progressbar.ProxyReader(bar, file)

	gz, err := gzip.NewReader(reader)
	if err != nil {
		file.Close()
		return err
	}
	buffered := bufio.NewReader(gz)

	threadCount := runtime.NumCPU()
	textChunks := make(chan string, threadCount*2)
	var wait sync.WaitGroup
	for i := 0; i < threadCount; i++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			for chunk := range textChunks {
				for _, loc := range regex.FindAllStringSubmatchIndex(chunk, -1) {
					if loc[1] <= maxMatchSize {
						continue
					}
					match := make([]string, len(loc)/2-1)
					for i := range match {
						if start := loc[2*i+2]; start >= 0 {
							match[i] = chunk[start:loc[2*i+3]]
						}
					}
					emit(match)
				}
			}
		}()
	}

	go func() {
		defer done()
		defer bar.Finish()
		defer file.Close()
		defer gz.Close()

		chunkBuffer := make([]byte, buffered.Size()*16+maxMatchSize)
		var lastRead int
		for {
			copy(chunkBuffer, chunkBuffer[lastRead:lastRead+maxMatchSize])
			read, err := buffered.Read(chunkBuffer[maxMatchSize:])
			if err != nil {
				if err != io.EOF {
					logrus.WithError(err).Error("dump read failed")
				}
				close(textChunks)
				break
			}
			textChunks <- string(chunkBuffer[:maxMatchSize+read])
			lastRead = read
		}
		wait.Wait()
	}()

	return nil
}

// parseID converts a string containing a dump-file integer id. Page ids and
// link-target ids are unsigned and fit comfortably in 63 bits; invalid input
// yields 0, matching the teacher's parsePageID fallback.
func parseID(str string) int64 {
	id, err := strconv.ParseInt(str, 10, 63)
	if err != nil {
		return 0
	}
	return id
}
