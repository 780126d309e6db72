// Package builder sequences the build pipeline (component I): it drives
// sqldump/vertexstore/redirectmap/edgeresolve/edgesort/adjacency through
// six phases tracked in status.json, skipping whatever a previous run
// already finished, then atomically swaps the `current` symlink and
// retires stale dataset directories.
package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/wikipath/wikipath/internal/adjacency"
	"github.com/wikipath/wikipath/internal/dumpfetch"
	"github.com/wikipath/wikipath/internal/edgeresolve"
	"github.com/wikipath/wikipath/internal/edgesort"
	"github.com/wikipath/wikipath/internal/paths"
	"github.com/wikipath/wikipath/internal/progressbar"
	"github.com/wikipath/wikipath/internal/redirectmap"
	"github.com/wikipath/wikipath/internal/sqldump"
	"github.com/wikipath/wikipath/internal/vertexstore"
)

// buildStages is the number of stages the progressbar.NewStaged reporter is
// told to expect across one full build run: vertexes, redirects, edges
// resolved, edges sorted, adjacency written (the final "build complete"
// message past these ends the reporter).
const buildStages = 5

// Builder drives one dataset's build to completion.
type Builder struct {
	root  paths.Root
	dumps dumpfetch.LocalDumpFiles
}

// New returns a Builder for the dataset named by dumps.DumpDate.
func New(root paths.Root, dumps dumpfetch.LocalDumpFiles) *Builder {
	return &Builder{root: root, dumps: dumps}
}

// Build runs every phase not already marked complete in status.json, then
// performs the current-symlink swap and old-dataset cleanup.
func (b *Builder) Build(ctx context.Context) error {
	dumpDate := b.dumps.DumpDate
	dataset, err := b.root.EnsureDirs(dumpDate)
	if err != nil {
		return fmt.Errorf("ensure dataset directories: %w", err)
	}

	statusPath := dataset.StatusFile()
	status, err := loadStatus(statusPath)
	if err != nil {
		return fmt.Errorf("load status: %w", err)
	}

	if status.DumpDate != "" && status.DumpDate != dumpDate {
		logrus.WithFields(logrus.Fields{
			"requested": dumpDate,
			"status":    status.DumpDate,
		}).Error("build requested for a different dump date than status.json records")
	}
	status.DumpDate = dumpDate

	if status.BuildComplete {
		logrus.Info("skipping build: status.json indicates it is already complete")
		return b.finalize(dataset)
	}

	reporter := progressbar.NewStaged(buildStages)

	reporter.Messages <- "loading vertexes"
	if !status.VertexesLoaded {
		count, maxID, err := b.loadVertexes(dataset)
		if err != nil {
			return fmt.Errorf("load vertexes: %w", err)
		}
		status.VertexCount = count
		status.MaxVertexID = maxID
		status.VertexesLoaded = true
		if err := status.save(statusPath); err != nil {
			return err
		}
		logrus.WithFields(logrus.Fields{"vertex_count": count, "max_vertex_id": maxID}).Info("vertexes loaded")
	} else {
		logrus.Info("skipping vertex load: status.json indicates it is already complete")
	}

	store, err := vertexstore.Open(dataset.GraphDB())
	if err != nil {
		return fmt.Errorf("open vertex store: %w", err)
	}
	defer store.Close()

	reporter.Messages <- "resolving redirects"
	if !status.RedirectsResolved {
		count, err := b.loadRedirects(dataset, store, status.MaxVertexID)
		if err != nil {
			return fmt.Errorf("load redirects: %w", err)
		}
		status.RedirectsResolved = true
		if err := status.save(statusPath); err != nil {
			return err
		}
		logrus.WithField("redirect_count", count).Info("redirects resolved")
	} else {
		logrus.Info("skipping redirects: status.json indicates they are already resolved")
	}

	reporter.Messages <- "resolving edges"
	if !status.EdgesResolved {
		count, err := b.resolveEdges(ctx, dataset, store)
		if err != nil {
			return fmt.Errorf("resolve edges: %w", err)
		}
		status.EdgeCount = count
		status.EdgesResolved = true
		if err := status.save(statusPath); err != nil {
			return err
		}
		logrus.WithField("edge_count", count).Info("edges resolved")
	} else {
		logrus.Info("skipping edge resolution: status.json indicates it is already complete")
	}

	reporter.Messages <- "sorting edges"
	if !status.EdgesSorted {
		if err := b.sortEdges(dataset); err != nil {
			return fmt.Errorf("sort edges: %w", err)
		}
		status.EdgesSorted = true
		if err := status.save(statusPath); err != nil {
			return err
		}
		logrus.Info("edges sorted")
	} else {
		logrus.Info("skipping edge sort: status.json indicates it is already complete")
	}

	reporter.Messages <- "writing adjacency file"
	if !status.AdjacencyWritten {
		if err := adjacency.Build(dataset.EdgeProcDir(), status.MaxVertexID, dataset.AdjacencyFile(), dataset.AdjacencyIndex()); err != nil {
			return fmt.Errorf("write adjacency file: %w", err)
		}
		status.AdjacencyWritten = true
		if err := status.save(statusPath); err != nil {
			return err
		}
		logrus.Info("adjacency file written")
	} else {
		logrus.Info("skipping adjacency write: status.json indicates it is already complete")
	}

	status.BuildComplete = true
	if err := status.save(statusPath); err != nil {
		return err
	}

	reporter.Messages <- "build complete"
	reporter.Completed.Wait()

	if err := os.RemoveAll(dataset.EdgeProcDir()); err != nil {
		logrus.WithError(err).Warn("failed to remove edge processing scratch directory")
	}

	logrus.Info("build complete")
	return b.finalize(dataset)
}

func (b *Builder) loadVertexes(dataset paths.Dataset) (count uint32, maxID uint32, err error) {
	store, err := vertexstore.Create(dataset.GraphDB())
	if err != nil {
		return 0, 0, err
	}
	defer store.Close()

	pages, err := sqldump.ParsePages(b.dumps.PagePath)
	if err != nil {
		return 0, 0, err
	}

	vertices := make(chan vertexstore.Vertex, 4096)
	go func() {
		defer close(vertices)
		for p := range pages {
			vertices <- vertexstore.Vertex{ID: uint32(p.ID), Title: p.Title, IsRedirect: p.IsRedirect}
		}
	}()

	return store.BulkInsert(vertices)
}

func (b *Builder) loadRedirects(dataset paths.Dataset, store *vertexstore.Store, maxVertexID uint32) (uint32, error) {
	target, err := redirectmap.Create(dataset.Redirects(), maxVertexID)
	if err != nil {
		return 0, err
	}
	defer target.Close()
	return redirectmap.Build(b.dumps.RedirectPath, store, target)
}

// resolveEdges joins the pagelinks dump against the linktarget dump to
// recover destination titles (the modern schema indirects pagelinks through
// linktarget ids rather than embedding titles, unlike the teacher's
// snapshot), then resolves every link to a {source, dest} vertex id edge.
func (b *Builder) resolveEdges(ctx context.Context, dataset paths.Dataset, store *vertexstore.Store) (uint32, error) {
	linkTargets, err := sqldump.ParseLinkTargets(b.dumps.LinkTargetPath)
	if err != nil {
		return 0, err
	}
	titlesByTarget := make(map[int64]string, 1<<20)
	for lt := range linkTargets {
		titlesByTarget[lt.ID] = lt.Title
	}

	redirects, err := redirectmap.Open(dataset.Redirects())
	if err != nil {
		return 0, err
	}
	defer redirects.Close()

	pageLinks, err := sqldump.ParsePageLinks(b.dumps.PagelinksPath)
	if err != nil {
		return 0, err
	}

	links := make(chan edgeresolve.Link, 4096)
	var dropped int
	go func() {
		defer close(links)
		for pl := range pageLinks {
			title, ok := titlesByTarget[pl.LinkTargetID]
			if !ok {
				dropped++
				continue
			}
			links <- edgeresolve.Link{SourceID: uint32(pl.Source), DestTitle: title}
		}
	}()

	writer, err := edgesort.NewWriter(dataset.EdgeProcDir())
	if err != nil {
		return 0, err
	}

	resolved, resolveDropped, err := edgeresolve.Resolve(ctx, links, store, redirects, runtime.NumCPU(), func(e edgeresolve.Edge) error {
		return writer.Write(e.Source, e.Dest)
	})
	if err != nil {
		writer.Close()
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	logrus.WithFields(logrus.Fields{
		"dropped_missing_link_target": dropped,
		"dropped_unresolved":          resolveDropped,
	}).Info("edge resolution dropped rows")

	return resolved, nil
}

func (b *Builder) sortEdges(dataset paths.Dataset) error {
	if err := edgesort.MakeSortFiles(dataset.EdgeProcDir()); err != nil {
		return err
	}
	if err := edgesort.Sort(dataset.EdgeProcDir(), edgesort.BySource); err != nil {
		return err
	}
	return edgesort.Sort(dataset.EdgeProcDir(), edgesort.ByDest)
}

// finalize atomically swaps the current symlink to dataset and removes any
// sibling YYYYMMDD directory that current no longer points at, mirroring
// create_current_symlink/clean_old_databases from the original build tool.
func (b *Builder) finalize(dataset paths.Dataset) error {
	if err := b.swapCurrentSymlink(dataset); err != nil {
		return fmt.Errorf("swap current symlink: %w", err)
	}
	b.cleanOldDatasets(dataset)
	return nil
}

func (b *Builder) swapCurrentSymlink(dataset paths.Dataset) error {
	link := b.root.CurrentLink()
	if info, err := os.Lstat(link); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return fmt.Errorf("%s exists and is not a symlink", link)
		}
		if err := os.Remove(link); err != nil {
			return err
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	relTarget, err := filepath.Rel(b.root.Base, dataset.Dir)
	if err != nil {
		relTarget = dataset.Dir
	}
	return os.Symlink(relTarget, link)
}

func (b *Builder) cleanOldDatasets(dataset paths.Dataset) {
	currentAbs, err := filepath.Abs(dataset.Dir)
	if err != nil {
		logrus.WithError(err).Warn("unable to resolve current dataset directory, skipping cleanup")
		return
	}

	names, err := b.root.Datasets()
	if err != nil {
		logrus.WithError(err).Warn("unable to list dataset directories, skipping cleanup")
		return
	}

	for _, name := range names {
		candidate := b.root.Dataset(name)
		candidateAbs, err := filepath.Abs(candidate.Dir)
		if err != nil || candidateAbs == currentAbs {
			continue
		}
		logrus.WithField("dataset", name).Info("removing superseded dataset directory")
		if err := os.RemoveAll(candidate.Dir); err != nil {
			logrus.WithError(err).WithField("dataset", name).Warn("failed to remove superseded dataset directory")
		}
	}
}

