// Package paths centralizes every on-disk location the builder and the
// query façade touch. The one exception is the scratch edge files inside
// EdgeProcDir, which internal/edgesort and internal/adjacency name
// themselves.
package paths

import (
	"os"
	"path/filepath"
)

const (
	// DatasetDirFormat is the YYYYMMDD directory name format for a dataset.
	DatasetDirFormat = "20060102"

	currentLinkName  = "current"
	masterDBName     = "master.db"
	dumpsSubdir      = "dumps"
	statusFileName   = "status.json"
	graphDBName      = "graph.db"
	redirectsName    = "redirects"
	adjacencyName    = "vertex-al"
	adjacencyIxName  = "vertex-al-ix"
	sitemapsSubdir   = "sitemaps"
	topGraphJSONName = "topgraph.json"
)

// Root is rooted at DATA_ROOT (or whatever base directory the caller
// resolved) and derives every other path from it. There is no process-wide
// singleton: every path used anywhere in this module flows from a Root
// value passed down explicitly.
type Root struct {
	Base string
}

// New returns a Root rooted at base. The caller is responsible for resolving
// DATA_ROOT / flag precedence before calling this.
func New(base string) Root {
	return Root{Base: base}
}

// DumpsDir is where downloaded dump files live, shared across datasets.
func (r Root) DumpsDir() string {
	return filepath.Join(r.Base, dumpsSubdir)
}

// MasterDB is the cross-dataset query-log database.
func (r Root) MasterDB() string {
	return filepath.Join(r.Base, masterDBName)
}

// CurrentLink is the symlink atomically swapped to point at the live dataset.
func (r Root) CurrentLink() string {
	return filepath.Join(r.Base, currentLinkName)
}

// Dataset returns the paths for the dataset built from the dump dated
// dumpDate (format YYYYMMDD).
func (r Root) Dataset(dumpDate string) Dataset {
	dir := filepath.Join(r.Base, dumpDate)
	return Dataset{Dir: dir}
}

// CurrentDataset resolves the current symlink and returns the Dataset it
// points at, along with the dump date it represents. Returns an error if the
// symlink is absent or dangling.
func (r Root) CurrentDataset() (Dataset, string, error) {
	target, err := os.Readlink(r.CurrentLink())
	if err != nil {
		return Dataset{}, "", err
	}
	dumpDate := filepath.Base(filepath.Clean(target))
	dir := target
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.Base, target)
	}
	if _, err := os.Stat(dir); err != nil {
		return Dataset{}, "", err
	}
	return Dataset{Dir: dir}, dumpDate, nil
}

// Datasets lists every YYYYMMDD-named sibling directory under the root,
// regardless of whether it is the current target.
func (r Root) Datasets() ([]string, error) {
	entries, err := os.ReadDir(r.Base)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := parseDumpDate(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func parseDumpDate(name string) (string, error) {
	if len(name) != 8 {
		return "", os.ErrInvalid
	}
	for _, c := range name {
		if c < '0' || c > '9' {
			return "", os.ErrInvalid
		}
	}
	return name, nil
}

// Dataset is the set of paths belonging to a single YYYYMMDD build.
type Dataset struct {
	Dir string
}

func (d Dataset) StatusFile() string    { return filepath.Join(d.Dir, statusFileName) }
func (d Dataset) GraphDB() string       { return filepath.Join(d.Dir, graphDBName) }
func (d Dataset) Redirects() string     { return filepath.Join(d.Dir, redirectsName) }
func (d Dataset) AdjacencyFile() string { return filepath.Join(d.Dir, adjacencyName) }
func (d Dataset) AdjacencyIndex() string {
	return filepath.Join(d.Dir, adjacencyIxName)
}
func (d Dataset) Sitemaps() string { return filepath.Join(d.Dir, sitemapsSubdir) }
func (d Dataset) TopGraph() string { return filepath.Join(d.Dir, topGraphJSONName) }

// EdgeProcDir is the scratch directory used by the external edge sorter;
// it is not part of the final dataset layout and may be removed after the
// adjacency file is written.
func (d Dataset) EdgeProcDir() string { return filepath.Join(d.Dir, "edge-proc") }

// EnsureDirs creates the dataset directory (and dumps dir) if missing.
func (r Root) EnsureDirs(dumpDate string) (Dataset, error) {
	if err := os.MkdirAll(r.DumpsDir(), 0755); err != nil {
		return Dataset{}, err
	}
	ds := r.Dataset(dumpDate)
	if err := os.MkdirAll(ds.Dir, 0755); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}
