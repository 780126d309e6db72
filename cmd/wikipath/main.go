// Command wikipath discovers, builds, and queries Wikipedia shortest-path
// datasets, mirroring the subcommand set of the original build tool.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wikipath/wikipath/internal/builder"
	"github.com/wikipath/wikipath/internal/dumpfetch"
	"github.com/wikipath/wikipath/internal/edgesort"
	"github.com/wikipath/wikipath/internal/graphdb"
	"github.com/wikipath/wikipath/internal/paths"
	"github.com/wikipath/wikipath/internal/searchcache"
	"github.com/wikipath/wikipath/internal/wikilang"
)

const defaultMirror = "https://dumps.wikimedia.org"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "wikipath",
		Short: "Find the shortest path between two Wikipedia articles",
	}

	root.PersistentFlags().String("data-root", defaultDataRoot(), "root directory holding dumps, datasets and the current symlink")
	root.PersistentFlags().String("mirror", defaultMirror, "dump mirror base URL")
	root.PersistentFlags().Bool("verbose", false, "enable debug logging")
	viper.BindPFlag("data_root", root.PersistentFlags().Lookup("data-root"))
	viper.BindPFlag("mirror", root.PersistentFlags().Lookup("mirror"))
	viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	viper.SetEnvPrefix("wikipath")
	viper.BindEnv("data_root", "DATA_ROOT")
	viper.AutomaticEnv()

	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}

	root.AddCommand(
		newFindLatestCommand(),
		newFetchCommand(),
		newBuildCommand(),
		newPullCommand(),
		newRunCommand(),
		newQueryCommand(),
	)
	return root
}

func defaultDataRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data"
	}
	return filepath.Join(home, "data", "wikipath")
}

func dataRoot() paths.Root {
	return paths.New(viper.GetString("data_root"))
}

func newFindLatestCommand() *cobra.Command {
	var showDate, showURLs, relative bool
	cmd := &cobra.Command{
		Use:   "find-latest",
		Short: "Find the most recently completed dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			finder := dumpfetch.NewFinder(viper.GetString("mirror"), nil)
			status, err := finder.FindLatest(cmd.Context())
			if err != nil {
				return err
			}
			if showDate {
				fmt.Println(status.DumpDate)
				return nil
			}
			if showURLs {
				for _, job := range status.Jobs {
					for _, file := range job.Files {
						url := file.URL
						if !relative {
							url = viper.GetString("mirror") + url
						}
						fmt.Println(url)
					}
				}
				return nil
			}
			fmt.Printf("%+v\n", status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showDate, "date", false, "print only the dump date")
	cmd.Flags().BoolVar(&showURLs, "urls", false, "print every file URL")
	cmd.Flags().BoolVar(&relative, "relative", false, "print URLs relative to the mirror root, with --urls")
	return cmd
}

// resolveLanguage looks up --language (a name, ISO code, or database name)
// against the sitematrix, defaulting to English.
func resolveLanguage(ctx context.Context, language string) (wikilang.Language, error) {
	if language == "" {
		language = "en"
	}
	return wikilang.NewLookup(nil).Find(ctx, language)
}

func newFetchCommand() *cobra.Command {
	var dumpDate, language string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download dump tables without building a dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			lang, err := resolveLanguage(cmd.Context(), language)
			if err != nil {
				return fmt.Errorf("resolve language: %w", err)
			}
			_, err = fetchDumps(cmd.Context(), dumpDate, lang)
			return err
		},
	}
	cmd.Flags().StringVar(&dumpDate, "dump-date", "", "explicit dump date to fetch (defaults to the latest complete dump)")
	cmd.Flags().StringVar(&language, "language", "en", "Wikipedia language edition to fetch (name, ISO code, or database name)")
	return cmd
}

func fetchDumps(ctx context.Context, dumpDate string, lang wikilang.Language) (dumpfetch.LocalDumpFiles, error) {
	finder := dumpfetch.NewFinder(viper.GetString("mirror"), nil)

	var status dumpfetch.Status
	var err error
	if dumpDate != "" {
		status, err = finder.StatusForDate(ctx, dumpDate)
	} else {
		status, err = finder.FindLatest(ctx)
	}
	if err != nil {
		return dumpfetch.LocalDumpFiles{}, fmt.Errorf("find dump: %w", err)
	}

	root := dataRoot()
	return finder.Fetch(ctx, root.DumpsDir(), lang.Database, status)
}

func newBuildCommand() *cobra.Command {
	var dumpDate, language string
	var memoryPercent int
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a dataset from previously fetched dump files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dumpDate == "" {
				return fmt.Errorf("--dump-date is required")
			}
			edgesort.SetMemoryBudgetFraction(float64(memoryPercent) / 100)

			lang, err := resolveLanguage(cmd.Context(), language)
			if err != nil {
				return fmt.Errorf("resolve language: %w", err)
			}
			root := dataRoot()
			dumps, err := localDumpFiles(root, lang.Database, dumpDate)
			if err != nil {
				return err
			}
			b := builder.New(root, dumps)
			return b.Build(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dumpDate, "dump-date", "", "dump date to build (must already be present under data-root/dumps)")
	cmd.Flags().StringVar(&language, "language", "en", "Wikipedia language edition to build (name, ISO code, or database name)")
	cmd.Flags().IntVar(&memoryPercent, "memory", 50, "maximum usage percentage of total system memory for the external edge sorter")
	return cmd
}

// localDumpFiles reconstructs the LocalDumpFiles paths for an already
// downloaded dump date, following dumpfetch.Fetch's naming convention.
func localDumpFiles(root paths.Root, database, dumpDate string) (dumpfetch.LocalDumpFiles, error) {
	dir := root.DumpsDir()
	result := dumpfetch.LocalDumpFiles{DumpDate: dumpDate}
	tables := map[string]*string{
		"page":       &result.PagePath,
		"redirect":   &result.RedirectPath,
		"linktarget": &result.LinkTargetPath,
		"pagelinks":  &result.PagelinksPath,
	}
	for table, dest := range tables {
		path := filepath.Join(dir, fmt.Sprintf("%s-%s-%s.sql.gz", database, dumpDate, table))
		if _, err := os.Stat(path); err != nil {
			return dumpfetch.LocalDumpFiles{}, fmt.Errorf("dump file for table %q not found at %s: %w", table, path, err)
		}
		*dest = path
	}
	return result, nil
}

func newPullCommand() *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch the latest dump (if newer than the current dataset) and build it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := dataRoot()

			lang, err := resolveLanguage(ctx, language)
			if err != nil {
				return fmt.Errorf("resolve language: %w", err)
			}

			finder := dumpfetch.NewFinder(viper.GetString("mirror"), nil)
			latest, err := finder.FindLatest(ctx)
			if err != nil {
				return fmt.Errorf("find latest dump: %w", err)
			}

			if _, currentDate, err := root.CurrentDataset(); err == nil && currentDate == latest.DumpDate {
				logrus.WithField("dump_date", currentDate).Info("current dataset is already the latest")
				return nil
			}

			dumps, err := finder.Fetch(ctx, root.DumpsDir(), lang.Database, latest)
			if err != nil {
				return fmt.Errorf("fetch latest dump: %w", err)
			}

			b := builder.New(root, dumps)
			return b.Build(ctx)
		},
	}
	cmd.Flags().StringVar(&language, "language", "en", "Wikipedia language edition to pull (name, ISO code, or database name)")
	return cmd
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <source> <destination>",
		Short: "Find every shortest path between two articles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graphdb.Open(dataRoot())
			if err != nil {
				return fmt.Errorf("open graph: %w", err)
			}
			defer g.Close()

			cache, err := searchcache.New(16 << 20)
			if err != nil {
				return err
			}

			source, err := g.FindVertexByTitle(canonicalTitle(args[0]))
			if err != nil {
				return fmt.Errorf("source article: %w", err)
			}
			dest, err := g.FindVertexByTitle(canonicalTitle(args[1]))
			if err != nil {
				return fmt.Errorf("destination article: %w", err)
			}

			key := searchcache.Key{Source: source.ID, Dest: dest.ID, LanguageCode: "en"}
			vertexPaths, cached := cache.Fetch(key)
			if !cached {
				var err error
				vertexPaths, err = g.BFS(source.ID, dest.ID, true)
				if err != nil {
					return fmt.Errorf("search: %w", err)
				}
				cache.Store(key, vertexPaths)
			}

			if len(vertexPaths) == 0 {
				fmt.Println("no path found")
				return nil
			}
			for _, path := range vertexPaths {
				fmt.Println(formatPath(g, path))
			}
			return nil
		},
	}
	return cmd
}

func newQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <article>",
		Short: "Print a vertex's id, metadata, and adjacency lists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := graphdb.Open(dataRoot())
			if err != nil {
				return fmt.Errorf("open graph: %w", err)
			}
			defer g.Close()

			v, err := g.FindVertexByTitle(canonicalTitle(args[0]))
			if err != nil {
				return fmt.Errorf("find vertex: %w", err)
			}
			fmt.Printf("%09d\t%s\tredirect=%v\n", v.ID, v.Title, v.IsRedirect)

			outgoing, incoming, err := g.BFSEdges(v.ID)
			if err != nil {
				return fmt.Errorf("read edges: %w", err)
			}

			fmt.Println("incoming:")
			printNeighbors(g, incoming)
			fmt.Println("outgoing:")
			printNeighbors(g, outgoing)
			return nil
		},
	}
	return cmd
}

func printNeighbors(g *graphdb.GraphDB, ids []uint32) {
	for _, id := range ids {
		v, err := g.FindVertexByID(id)
		if err != nil {
			logrus.WithField("vertex_id", id).Warn("neighbor vertex not found")
			continue
		}
		fmt.Printf("\t%09d\t%s\n", v.ID, v.Title)
	}
}

func formatPath(g *graphdb.GraphDB, path []uint32) string {
	titles := make([]string, len(path))
	for i, id := range path {
		v, err := g.FindVertexByID(id)
		if err != nil {
			titles[i] = fmt.Sprintf("<%d>", id)
			continue
		}
		titles[i] = v.Title
	}
	out := ""
	for i, t := range titles {
		if i > 0 {
			out += " -> "
		}
		out += t
	}
	return out
}

func canonicalTitle(title string) string {
	out := make([]rune, 0, len(title))
	for _, r := range title {
		if r == '_' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}
