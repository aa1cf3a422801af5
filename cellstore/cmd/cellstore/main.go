package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/catalog"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/clickhouse"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/metrics"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/cellstore/pkg/server"
	"github.com/dlr-eoc/ukis-h3cellstore-sub000/utils/pkg/logger"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultListenAddr = "0.0.0.0:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")

	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	logFormatFlag := flag.String("log-format", "text", "log format: text or json (or set CELLSTORE_LOG_FORMAT env var)")

	// ClickHouse configuration
	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "ClickHouse address (host:port) (or set CLICKHOUSE_ADDR_TCP env var)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "ClickHouse database name (or set CLICKHOUSE_DATABASE env var)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "ClickHouse username (or set CLICKHOUSE_USERNAME env var)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "ClickHouse password (or set CLICKHOUSE_PASSWORD env var)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "Enable TLS for ClickHouse Cloud (or set CLICKHOUSE_SECURE=true env var)")

	// Commands
	migrateFlag := flag.Bool("migrate", false, "Run the cell store migrations using goose")
	migrateStatusFlag := flag.Bool("migrate-status", false, "Show the cell store migration status")
	migrateDownFlag := flag.Bool("migrate-down", false, "Roll back the most recent cell store migration")
	printDDLFlag := flag.String("print-ddl", "", "Print the CREATE TABLE statements of the schema in the given JSON file")
	createTableSetFlag := flag.String("create-tableset", "", "Create the tables of the schema in the given JSON file")
	listTableSetsFlag := flag.Bool("list-tablesets", false, "List the tablesets found in the database")
	dropTableSetFlag := flag.String("drop-tableset", "", "Drop all tables of the named tableset")
	traverseFlag := flag.String("traverse", "", "Traverse the named tableset and print the number of rows per traversal cell")
	serveFlag := flag.Bool("serve", false, "Serve health, metrics and the tableset API over HTTP")
	dryRunFlag := flag.Bool("dry-run", false, "Dry run mode - show what would be done without actually executing")
	yesFlag := flag.Bool("yes", false, "Skip confirmation prompt (use with caution)")

	// Traversal options
	resolutionFlag := flag.Uint8("resolution", 0, "H3 resolution of the traversed cells")
	cellsFlag := flag.StringSlice("cells", nil, "H3 cells (hex) of the traversal area")
	areaFlag := flag.String("area", "", "GeoJSON file with the polygon of the traversal area")
	queryFlag := flag.String("query", "", "Query template run per traversal cell (default \"SELECT * FROM <[table]>\")")
	filterQueryFlag := flag.String("filter-query", "", "Prefilter query template returning h3index values")
	workersFlag := flag.Int("workers", 3, "Number of concurrent traversal queries")

	// Server options
	listenAddrFlag := flag.String("listen-addr", defaultListenAddr, "Address to listen on for HTTP (or set CELLSTORE_LISTEN_ADDR env var)")

	flag.Parse()

	if envLogFormat := os.Getenv("CELLSTORE_LOG_FORMAT"); envLogFormat != "" {
		*logFormatFlag = envLogFormat
	}
	logFormat, err := logger.ParseFormat(*logFormatFlag)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, logger.Options{Verbose: *verboseFlag, Format: logFormat})

	// Override ClickHouse flags with environment variables if set
	if envClickhouseAddr := os.Getenv("CLICKHOUSE_ADDR_TCP"); envClickhouseAddr != "" {
		*clickhouseAddrFlag = envClickhouseAddr
	}
	if envClickhouseDatabase := os.Getenv("CLICKHOUSE_DATABASE"); envClickhouseDatabase != "" {
		*clickhouseDatabaseFlag = envClickhouseDatabase
	}
	if envClickhouseUsername := os.Getenv("CLICKHOUSE_USERNAME"); envClickhouseUsername != "" {
		*clickhouseUsernameFlag = envClickhouseUsername
	}
	if envClickhousePassword := os.Getenv("CLICKHOUSE_PASSWORD"); envClickhousePassword != "" {
		*clickhousePasswordFlag = envClickhousePassword
	}
	if os.Getenv("CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if envListenAddr := os.Getenv("CELLSTORE_LISTEN_ADDR"); envListenAddr != "" {
		*listenAddrFlag = envListenAddr
	}

	// Commands without a database
	if *printDDLFlag != "" {
		return printDDL(*printDDLFlag)
	}

	chCfg := clickhouse.Config{
		Addr:     *clickhouseAddrFlag,
		Database: *clickhouseDatabaseFlag,
		Username: *clickhouseUsernameFlag,
		Password: *clickhousePasswordFlag,
		Secure:   *clickhouseSecureFlag,
	}
	requireAddr := func(command string) error {
		if chCfg.Addr == "" {
			return fmt.Errorf("--clickhouse-addr is required for --%s", command)
		}
		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *migrateFlag {
		if err := requireAddr("migrate"); err != nil {
			return err
		}
		return clickhouse.RunMigrations(ctx, log, chCfg)
	}

	if *migrateStatusFlag {
		if err := requireAddr("migrate-status"); err != nil {
			return err
		}
		return clickhouse.MigrationStatus(ctx, log, chCfg)
	}

	if *migrateDownFlag {
		if err := requireAddr("migrate-down"); err != nil {
			return err
		}
		return migrateDown(ctx, log, chCfg, *dryRunFlag, *yesFlag)
	}

	var command string
	switch {
	case *createTableSetFlag != "":
		command = "create-tableset"
	case *listTableSetsFlag:
		command = "list-tablesets"
	case *dropTableSetFlag != "":
		command = "drop-tableset"
	case *traverseFlag != "":
		command = "traverse"
	case *serveFlag:
		command = "serve"
	default:
		flag.Usage()
		return nil
	}
	if err := requireAddr(command); err != nil {
		return err
	}

	chCfg.MaxOpenConns = max(10, *workersFlag+1)
	client, err := clickhouse.NewClient(ctx, log, chCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	cat, err := catalog.New(catalog.Config{Logger: log, Client: client})
	if err != nil {
		return err
	}

	switch command {
	case "create-tableset":
		return createTableSet(ctx, cat, *createTableSetFlag, *dryRunFlag)
	case "list-tablesets":
		return listTableSets(ctx, cat)
	case "drop-tableset":
		return dropTableSet(ctx, cat, *dropTableSetFlag, chCfg.Database, *dryRunFlag, *yesFlag)
	case "traverse":
		return traverse(ctx, log, client, cat, traverseOptions{
			name:        *traverseFlag,
			resolution:  *resolutionFlag,
			cells:       *cellsFlag,
			areaFile:    *areaFlag,
			query:       *queryFlag,
			filterQuery: *filterQueryFlag,
			workers:     *workersFlag,
		})
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
	srv, err := server.New(server.Config{
		Logger:      log,
		ListenAddr:  *listenAddrFlag,
		VersionInfo: server.VersionInfo{Version: version, Commit: commit, Date: date},
		Catalog:     cat,
		DB:          client,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}
