package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/nonibytes/shelfdex/shelfdex"
	"github.com/nonibytes/shelfdex/shelfdex/storage/postgres"
	"github.com/nonibytes/shelfdex/shelfdex/storage/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	ctx := context.Background()

	switch command {
	case "load":
		handleLoad(ctx, os.Args[2:])
	case "search":
		handleSearch(ctx, os.Args[2:])
	case "sort":
		handleSort(ctx, os.Args[2:])
	case "categories":
		handleCategories(ctx, os.Args[2:])
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("shelfdex - search and sort a book library")
	fmt.Println("\nUsage:")
	fmt.Println("  shelfdex load -i <dsn> [-backend sqlite|postgres] [-schema-name <name>]")
	fmt.Println("  shelfdex search -i <dsn> -q <query> [-restriction <query>] [-backend ...]")
	fmt.Println("  shelfdex sort -i <dsn> -by <field[:desc],...> [-q <query>] [-backend ...]")
	fmt.Println("  shelfdex categories -i <dsn> [-by-count] [-backend ...]")
}

type commonOpts struct {
	dsn        string
	backend    string
	schemaName string
}

func bindCommon(fs *flag.FlagSet, o *commonOpts) {
	fs.StringVar(&o.dsn, "i", "", "library database path or DSN")
	fs.StringVar(&o.backend, "backend", "sqlite", "sqlite or postgres")
	fs.StringVar(&o.schemaName, "schema-name", "", "postgres schema")
}

func openCache(ctx context.Context, o commonOpts) (*shelfdex.Cache, shelfdex.Source, error) {
	if o.dsn == "" {
		return nil, nil, fmt.Errorf("missing -i <dsn>")
	}
	var src shelfdex.Source
	switch o.backend {
	case "sqlite":
		src = sqlite.New(o.dsn)
	case "postgres":
		src = postgres.New(o.dsn, o.schemaName)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", o.backend)
	}
	if err := src.Connect(ctx); err != nil {
		return nil, nil, err
	}

	cache := shelfdex.NewCache(src, shelfdex.NewRegistry(),
		shelfdex.DefaultSearchConfig(), shelfdex.DefaultSortConfig())
	if err := cache.Load(ctx); err != nil {
		src.Close()
		return nil, nil, err
	}
	return cache, src, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

func handleLoad(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	var o commonOpts
	bindCommon(fs, &o)
	fs.Parse(args)

	cache, src, err := openCache(ctx, o)
	if err != nil {
		fatal(err)
	}
	defer src.Close()
	fmt.Printf("loaded %d books\n", cache.Count())
}

func handleSearch(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var o commonOpts
	var q, restriction string
	bindCommon(fs, &o)
	fs.StringVar(&q, "q", "", "query")
	fs.StringVar(&restriction, "restriction", "", "standing restriction query")
	fs.Parse(args)

	cache, src, err := openCache(ctx, o)
	if err != nil {
		fatal(err)
	}
	defer src.Close()

	if restriction != "" {
		if err := cache.SetRestriction(ctx, restriction); err != nil {
			fatal(err)
		}
	}
	ids, err := cache.Search(ctx, q, true)
	if err != nil {
		fatal(err)
	}
	printRows(cache, ids)
}

func handleSort(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("sort", flag.ExitOnError)
	var o commonOpts
	var q, by string
	bindCommon(fs, &o)
	fs.StringVar(&q, "q", "", "query")
	fs.StringVar(&by, "by", "", "comma-separated sort fields, append :desc to invert")
	fs.Parse(args)

	cache, src, err := openCache(ctx, o)
	if err != nil {
		fatal(err)
	}
	defer src.Close()

	if _, err := cache.Search(ctx, q, true); err != nil {
		fatal(err)
	}
	if err := cache.Sort(parseSortFields(by), true); err != nil {
		fatal(err)
	}
	printRows(cache, cache.FilteredIDs())
}

func parseSortFields(by string) []shelfdex.SortField {
	var out []shelfdex.SortField
	for _, part := range strings.Split(by, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sf := shelfdex.SortField{Key: part, Ascending: true}
		if key, ok := strings.CutSuffix(part, ":desc"); ok {
			sf.Key, sf.Ascending = key, false
		} else if key, ok := strings.CutSuffix(part, ":asc"); ok {
			sf.Key = key
		}
		out = append(out, sf)
	}
	return out
}

func handleCategories(ctx context.Context, args []string) {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	var o commonOpts
	var byCount bool
	bindCommon(fs, &o)
	fs.BoolVar(&byCount, "by-count", false, "order groups by descending count")
	fs.Parse(args)

	cache, src, err := openCache(ctx, o)
	if err != nil {
		fatal(err)
	}
	defer src.Close()

	cats, err := cache.Categories(ctx, nil, shelfdex.CategoryOptions{ByCount: byCount})
	if err != nil {
		fatal(err)
	}
	for name, items := range cats {
		fmt.Printf("%s:\n", name)
		for _, item := range items {
			fmt.Printf("  %s (%d)\n", item.Value, item.Count)
		}
	}
}

func printRows(cache *shelfdex.Cache, ids []int64) {
	for _, id := range ids {
		title, err := cache.Get(id, "title")
		if err != nil {
			continue
		}
		authors, _ := cache.Get(id, "authors")
		fmt.Printf("%d\t%s\t%s\n", id, title.Display(), authors.Display())
	}
}
