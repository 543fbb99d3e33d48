package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sirupsen/logrus"

	"pagedb/internal/catalog"
	"pagedb/internal/config"
	"pagedb/internal/dbapi"
	"pagedb/pkg/types"
)

const banner = `
 _ __   __ _  __ _  ___  __| || |__
| '_ \ / _' |/ _' |/ _ \/ _' || '_ \
| |_) | (_| | (_| |  __/ (_| || |_) |
| .__/ \__,_|\__, |\___|\__,_||_.__/
|_|          |___/

A teaching-grade single-node database engine: paged heap storage plus
four interchangeable primary indexes. Type 'help' for commands, 'exit'
to quit.
`

func main() {
	dataDir := flag.String("data", "./pagedb-data", "Storage directory")
	configPath := flag.String("config", "", "Path to pagedb.toml (defaults to <data>/pagedb.toml)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = filepath.Join(*dataDir, "pagedb.toml")
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	cat, err := catalog.Open(*dataDir, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage: %v\n", err)
		os.Exit(1)
	}
	handler := dbapi.New(cat, log)

	fmt.Print(banner)
	fmt.Printf("Storage directory: %s\n\n", *dataDir)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pagedb> ",
		HistoryFile:     filepath.Join(*dataDir, ".pagedb_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start REPL: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	runREPL(rl, cat, handler)
}

func runREPL(rl *readline.Instance, cat *catalog.Catalog, handler *dbapi.Handler) {
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			fmt.Println("Goodbye!")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "readline error: %v\n", err)
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		lower := strings.ToLower(input)
		switch {
		case lower == "exit" || lower == "quit" || lower == `\q`:
			fmt.Println("Goodbye!")
			return
		case lower == "help" || lower == `\h`:
			printHelp()
			continue
		case lower == "tables" || lower == `\dt`:
			printTables(cat)
			continue
		case strings.HasPrefix(lower, "stats "):
			printStats(cat, strings.TrimSpace(input[len("stats "):]))
			continue
		case strings.HasPrefix(lower, "structure "):
			printStructure(cat, strings.TrimSpace(input[len("structure "):]))
			continue
		}

		resp := handler.Execute(input)
		printResponse(resp)
	}
}

func printHelp() {
	fmt.Print(`
Commands:
  help, \h                Show this help message
  tables, \dt             List all open tables
  stats <table>           Show a table's index I/O counters
  structure <table>       Show a table's primary index internal shape
  exit, quit, \q          Exit

SQL Statements:
  CREATE TABLE t(c1, c2, ...) KEY(k)
  CREATE TABLE t USING <sequential|isam|ext_hash|bplustree>
  LOAD FROM <path> INTO t
  SELECT * FROM t WHERE "col" = <literal>
  SELECT * FROM t WHERE "col" BETWEEN <lo> AND <hi>
  INSERT INTO t(c, ...) VALUES(v, ...)
  DELETE FROM t WHERE "col" = <literal>

Examples:
  CREATE TABLE restaurants(id, name, cuisine) KEY(id)
  LOAD FROM data/restaurants.csv INTO restaurants
  SELECT * FROM restaurants WHERE id = 42
  SELECT * FROM restaurants WHERE id BETWEEN 10 AND 50
`)
}

func printTables(cat *catalog.Catalog) {
	names := cat.Names()
	if len(names) == 0 {
		fmt.Println("No tables open.")
		return
	}
	sort.Strings(names)
	fmt.Println("\nTables:")
	for _, name := range names {
		tb, ok := cat.Get(name)
		if !ok {
			continue
		}
		fmt.Printf("  %s (index=%s)\n", name, tb.IndexType())
		for _, col := range tb.Schema().Columns {
			marker := ""
			if col.Name == tb.Schema().KeyColumn {
				marker = " [key]"
			}
			fmt.Printf("    - %s %s%s\n", col.Name, col.Type, marker)
		}
	}
	fmt.Println()
}

func printStats(cat *catalog.Catalog, name string) {
	tb, ok := cat.Get(name)
	if !ok {
		fmt.Printf("unknown table %q\n", name)
		return
	}
	reads, writes := tb.IndexIOSnapshot()
	fmt.Printf("\n%s (%s): disk_reads=%d disk_writes=%d\n\n", name, tb.IndexType(), reads, writes)
}

func printStructure(cat *catalog.Catalog, name string) {
	tb, ok := cat.Get(name)
	if !ok {
		fmt.Printf("unknown table %q\n", name)
		return
	}
	keys := make([]string, 0, len(tb.StructureInfo()))
	info := tb.StructureInfo()
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println()
	for _, k := range keys {
		fmt.Printf("  %-20s %v\n", k, info[k])
	}
	fmt.Println()
}

func printResponse(resp dbapi.Response) {
	if resp.Error != "" {
		fmt.Printf("ERROR: %s\n", resp.Error)
		return
	}

	if resp.Rows != nil {
		printRows(resp.Rows)
	}

	fmt.Printf("ok=%v count=%d disk_reads=%d disk_writes=%d time=%.3fms\n",
		resp.OK || resp.Rows != nil, resp.Count, resp.IO.DiskReads, resp.IO.DiskWrites, resp.ExecutionTimeMs)
}

func printRows(rows []types.Row) {
	if len(rows) == 0 {
		fmt.Println("(0 rows)")
		return
	}

	columns := make([]string, 0, len(rows[0]))
	for col := range rows[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	widths := make([]int, len(columns))
	for i, col := range columns {
		widths[i] = len(col)
	}
	cellStrings := make([][]string, len(rows))
	for r, row := range rows {
		cellStrings[r] = make([]string, len(columns))
		for i, col := range columns {
			s := row[col].String()
			cellStrings[r][i] = s
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}

	printSeparator(widths)
	printRow(columns, widths)
	printSeparator(widths)
	for _, cells := range cellStrings {
		printRow(cells, widths)
	}
	printSeparator(widths)
}

func printRow(values []string, widths []int) {
	fmt.Print("│ ")
	for i, val := range values {
		fmt.Printf("%-*s │ ", widths[i], val)
	}
	fmt.Println()
}

func printSeparator(widths []int) {
	fmt.Print("├")
	for i, w := range widths {
		fmt.Print(strings.Repeat("─", w+2))
		if i < len(widths)-1 {
			fmt.Print("┼")
		}
	}
	fmt.Println("┤")
}
