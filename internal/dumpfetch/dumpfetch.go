// Package dumpfetch discovers the latest complete MediaWiki dump and
// downloads its tables, resuming partial transfers where possible.
package dumpfetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cavaliercoder/grab"
	"github.com/sirupsen/logrus"

	"github.com/wikipath/wikipath/internal/progressbar"
)

// oldestDumpLookbackDays bounds the find-latest backward scan, mirroring the
// 60-day window the upstream dump generator uses between full runs.
const oldestDumpLookbackDays = 60

// Status describes one dated dump and whether each of its jobs has finished.
type Status struct {
	DumpDate string
	Jobs     map[string]JobStatus
}

// JobStatus is one table's generation job within a dump.
type JobStatus struct {
	Status  string              `json:"status"`
	Updated string              `json:"updated"`
	Files   map[string]FileInfo `json:"files"`
}

// Done reports whether this job has finished generating its output files.
func (j JobStatus) Done() bool { return j.Status == "done" }

// FileInfo is one file belonging to a job.
type FileInfo struct {
	Size int64  `json:"size"`
	URL  string `json:"url"`
	SHA1 string `json:"sha1"`
}

type dumpIndex struct {
	Wikis struct {
		Enwiki dumpStatusWire `json:"enwiki"`
	} `json:"wikis"`
}

type dumpStatusWire struct {
	Jobs struct {
		RedirectTable    JobStatus `json:"redirecttable"`
		PageTable        JobStatus `json:"pagetable"`
		PagePropsTable   JobStatus `json:"pagepropstable"`
		PagelinksTable   JobStatus `json:"pagelinkstable"`
		LinktargetTable  JobStatus `json:"linktargettable"`
	} `json:"jobs"`
}

func (w dumpStatusWire) jobMap() map[string]JobStatus {
	return map[string]JobStatus{
		"redirecttable":   w.Jobs.RedirectTable,
		"pagetable":       w.Jobs.PageTable,
		"pagepropstable":  w.Jobs.PagePropsTable,
		"pagelinkstable":  w.Jobs.PagelinksTable,
		"linktargettable": w.Jobs.LinktargetTable,
	}
}

func (w dumpStatusWire) allDone() bool {
	for _, j := range w.jobMap() {
		if !j.Done() {
			return false
		}
	}
	return true
}

const indexURL = "https://dumps.wikimedia.org/index.json"

// Finder discovers and fetches dumps against a single mirror base URL. The
// dump index file consulted first by FindLatest is always read from
// dumps.wikimedia.org.
type Finder struct {
	client *http.Client
	mirror string
}

// NewFinder constructs a Finder against mirror (e.g.
// "https://dumps.wikimedia.org"). A nil client uses http.DefaultClient.
func NewFinder(mirror string, client *http.Client) *Finder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Finder{client: client, mirror: mirror}
}

// FindLatest looks for the most recently completed enwiki dump, first via
// the dump index file, falling back to a backward day-by-day scan of
// dumpstatus.json when the index is stale or unavailable.
func (f *Finder) FindLatest(ctx context.Context) (Status, error) {
	if status, ok := f.findViaIndex(ctx); ok {
		logrus.Info("found complete dump via index file")
		return status, nil
	}

	today := time.Now().UTC()
	for daysAgo := 0; daysAgo < oldestDumpLookbackDays; daysAgo++ {
		date := today.AddDate(0, 0, -daysAgo).Format("20060102")
		logrus.WithField("date", date).Debug("checking dump status")
		status, err := f.fetchStatusForDate(ctx, date)
		if err != nil {
			continue
		}
		if status.allDone() {
			logrus.WithField("date", date).Info("found most recent complete dump")
			return Status{DumpDate: date, Jobs: status.jobMap()}, nil
		}
	}

	return Status{}, fmt.Errorf("no complete dump found in the last %d days", oldestDumpLookbackDays)
}

func (f *Finder) findViaIndex(ctx context.Context) (Status, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
	if err != nil {
		return Status{}, false
	}
	resp, err := f.client.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		return Status{}, false
	}
	defer resp.Body.Close()

	var idx dumpIndex
	if err := json.NewDecoder(resp.Body).Decode(&idx); err != nil {
		return Status{}, false
	}
	if !idx.Wikis.Enwiki.allDone() {
		return Status{}, false
	}
	date := dumpDateFromJobs(idx.Wikis.Enwiki.jobMap())
	if date == "" {
		return Status{}, false
	}
	return Status{DumpDate: date, Jobs: idx.Wikis.Enwiki.jobMap()}, true
}

// StatusForDate fetches the dump status for an explicitly chosen date,
// without falling back to a backward scan the way FindLatest does. Used by
// the fetch subcommand when the caller already knows which dump it wants.
func (f *Finder) StatusForDate(ctx context.Context, date string) (Status, error) {
	wire, err := f.fetchStatusForDate(ctx, date)
	if err != nil {
		return Status{}, err
	}
	return Status{DumpDate: date, Jobs: wire.jobMap()}, nil
}

func (f *Finder) fetchStatusForDate(ctx context.Context, date string) (dumpStatusWire, error) {
	url := fmt.Sprintf("%s/enwiki/%s/dumpstatus.json", f.mirror, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return dumpStatusWire{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return dumpStatusWire{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return dumpStatusWire{}, fmt.Errorf("dump status %s: HTTP %d", date, resp.StatusCode)
	}
	var wire dumpStatusWire
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return dumpStatusWire{}, err
	}
	return wire, nil
}

// dumpDateFromJobs extracts the YYYYMMDD segment shared by every file's URL.
// The dump status objects carry no explicit "this dump is for this date"
// field, so the date is pulled from the second path segment of any file URL
// ("/enwiki/YYYYMMDD/..."; the leading slash yields an empty first part).
func dumpDateFromJobs(jobs map[string]JobStatus) string {
	for _, job := range jobs {
		for _, file := range job.Files {
			parts := splitPath(file.URL)
			if len(parts) >= 3 {
				return parts[2]
			}
		}
	}
	return ""
}

func splitPath(url string) []string {
	var parts []string
	cur := ""
	for _, r := range url {
		if r == '/' {
			parts = append(parts, cur)
			cur = ""
			continue
		}
		cur += string(r)
	}
	parts = append(parts, cur)
	return parts
}

// Files names the four tables this module ingests.
var Files = []string{"page", "redirect", "linktarget", "pagelinks"}

// LocalDumpFiles are the paths of the four downloaded tables for one dump.
type LocalDumpFiles struct {
	PagePath       string
	RedirectPath   string
	LinkTargetPath string
	PagelinksPath  string
	DumpDate       string
}

// Fetch downloads every table for the given language/date into dir,
// resuming partial downloads via Range requests (grab handles this
// transparently) and verifying each file's SHA1 against status.
func (f *Finder) Fetch(ctx context.Context, dir string, database string, status Status) (LocalDumpFiles, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return LocalDumpFiles{}, err
	}

	result := LocalDumpFiles{DumpDate: status.DumpDate}
	for _, table := range Files {
		jobName := table + "table"
		if table == "linktarget" {
			jobName = "linktargettable"
		} else if table == "pagelinks" {
			jobName = "pagelinkstable"
		} else if table == "redirect" {
			jobName = "redirecttable"
		} else if table == "page" {
			jobName = "pagetable"
		}
		job, ok := status.Jobs[jobName]
		if !ok {
			return LocalDumpFiles{}, fmt.Errorf("dump status missing job %q", jobName)
		}

		basename := fmt.Sprintf("%s-%s-%s.sql.gz", database, status.DumpDate, table)
		fileInfo, ok := job.Files[basename]
		if !ok {
			return LocalDumpFiles{}, fmt.Errorf("dump status missing file %q", basename)
		}

		target := filepath.Join(dir, basename)
		url := f.mirror + fileInfo.URL
		if err := f.fetchOne(ctx, target, url, fileInfo.SHA1); err != nil {
			return LocalDumpFiles{}, fmt.Errorf("fetch %s: %w", basename, err)
		}

		switch table {
		case "page":
			result.PagePath = target
		case "redirect":
			result.RedirectPath = target
		case "linktarget":
			result.LinkTargetPath = target
		case "pagelinks":
			result.PagelinksPath = target
		}
	}
	return result, nil
}

// fetchOne downloads (or resumes) a single file and confirms its hash,
// skipping the network entirely when a correctly-hashed copy already exists.
func (f *Finder) fetchOne(ctx context.Context, target string, url string, sha1sum string) error {
	if _, err := os.Stat(target); err == nil {
		logrus.WithField("file", filepath.Base(target)).Info("found existing file, confirming hash")
		hash, err := fileSHA1(target)
		if err == nil && hash == sha1sum {
			return nil
		}
		logrus.WithField("file", filepath.Base(target)).Info("hash mismatch, re-downloading")
	}

	req, err := grab.NewRequest(target, url)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)

	client := grab.NewClient()
	client.HTTPClient = f.client
	resp := client.Do(req)

	bar := progressbar.New(resp.Size())
	defer bar.Finish()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
Loop:
	for {
		select {
		case <-ticker.C:
			bar.SetCurrent(resp.BytesComplete())
		case <-resp.Done:
			break Loop
		}
	}
	if err := resp.Err(); err != nil {
		return err
	}

	hash, err := fileSHA1(target)
	if err != nil {
		return err
	}
	if hash != sha1sum {
		return fmt.Errorf("downloaded file %s has incorrect hash", filepath.Base(target))
	}
	return nil
}

func fileSHA1(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha1.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
