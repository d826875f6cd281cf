// Package main provides the PV production planner entry point and CLI
// interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pvplanner/pvplanner/importer"
	"github.com/pvplanner/pvplanner/inverter"
	"github.com/pvplanner/pvplanner/openmeteo"
	"github.com/pvplanner/pvplanner/pipeline"
	"github.com/pvplanner/pvplanner/report"
	"github.com/pvplanner/pvplanner/server"
	"github.com/pvplanner/pvplanner/store"
)

func main() {
	var (
		configFile   = flag.String("config", "config.json", "Configuration file path")
		runOnce      = flag.Bool("run", false, "Run one forecast cycle and exit")
		serve        = flag.Bool("serve", false, "Run the periodic pipeline and web server")
		importFile   = flag.String("import", "", "Import hourly energy rows from a CSV or xlsx file")
		importEK     = flag.String("import-intervals", "", "Import a 15-minute power interval file")
		intervalKind = flag.String("series", "produced", "Series for interval import: produced or sold")
		exportFile   = flag.String("export", "", "Export the prediction pivot to an xlsx file")
		migrate      = flag.Bool("migrate", false, "Apply database migrations and exit")
		help         = flag.Bool("help", false, "Show help message")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	// Local overrides for credentials live in .env, not in the config.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Println("Error loading .env file:", err)
		return
	}

	config, err := pipeline.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		return
	}
	if conn := os.Getenv("POSTGRES_CONN_STRING"); conn != "" {
		config.PostgresConnString = conn
	}

	logger := log.New(os.Stdout, "[PLANNER] ", log.LstdFlags)

	st, err := store.Open(config.PostgresConnString, logger)
	if err != nil {
		logger.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		logger.Fatalf("Failed to apply migrations: %v", err)
	}
	if *migrate {
		logger.Printf("Migrations applied")
		return
	}

	ctx := context.Background()

	switch {
	case *importFile != "":
		runImport(ctx, st, config, *importFile, logger)
	case *importEK != "":
		runIntervalImport(ctx, st, config, *importEK, store.Series(*intervalKind), logger)
	case *exportFile != "":
		runExport(ctx, st, config, *exportFile, logger)
	case *runOnce:
		p := newPipeline(config, st, logger)
		if err := p.Run(ctx); err != nil {
			logger.Fatalf("Forecast run failed: %v", err)
		}
	case *serve:
		runServe(config, st, logger)
	default:
		showHelp()
	}
}

func newPipeline(config *pipeline.Config, st *store.Store, logger *log.Logger) *pipeline.Pipeline {
	weather := openmeteo.NewClient(config.UserAgent, logger)
	weather.SetRetries(config.FetchRetries, config.FetchBackoff)

	p, err := pipeline.New(config, st, weather, logger)
	if err != nil {
		logger.Fatalf("Failed to create pipeline: %v", err)
	}
	return p
}

func runImport(ctx context.Context, st *store.Store, config *pipeline.Config, path string, logger *log.Logger) {
	rows, err := importer.ReadFile(path)
	if err != nil {
		logger.Fatalf("Failed to read %s: %v", path, err)
	}

	if warning := importer.CheckUnit(importer.RowValues(rows), config.UnitWarnThreshold); warning != nil {
		logger.Printf("Warning: %v", warning)
		if !confirm("Import anyway?") {
			logger.Printf("Import cancelled")
			return
		}
	}

	result, err := importer.Import(ctx, st, rows, config.ObjectID, logger)
	if err != nil {
		logger.Fatalf("Import failed: %v", err)
	}
	logger.Printf("Imported %d produced and %d sold rows (%d duplicates skipped)",
		result.ProducedInserted, result.SoldInserted, result.Skipped)
}

func runIntervalImport(ctx context.Context, st *store.Store, config *pipeline.Config, path string, series store.Series, logger *log.Logger) {
	var readings []importer.IntervalReading
	var err error
	if strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		readings, err = importer.ReadIntervalXLSX(path)
	} else {
		f, openErr := os.Open(path)
		if openErr != nil {
			logger.Fatalf("Failed to open %s: %v", path, openErr)
		}
		defer f.Close()
		readings, err = importer.ReadIntervalCSV(f)
	}
	if err != nil {
		logger.Fatalf("Failed to read %s: %v", path, err)
	}

	rows, err := importer.HourlyRows(importer.Hourly(readings), series)
	if err != nil {
		logger.Fatalf("Failed to convert intervals: %v", err)
	}

	result, err := importer.Import(ctx, st, rows, config.ObjectID, logger)
	if err != nil {
		logger.Fatalf("Import failed: %v", err)
	}
	logger.Printf("Imported %d hourly rows from %d intervals (%d duplicates skipped)",
		result.ProducedInserted+result.SoldInserted, len(readings), result.Skipped)
}

func runExport(ctx context.Context, st *store.Store, config *pipeline.Config, path string, logger *log.Logger) {
	sheets := make([]report.Sheet, 0, 2)
	for _, series := range []store.Series{store.Produced, store.Sold} {
		rows, err := st.PredictedEnergy(ctx, series, config.ObjectID)
		if err != nil {
			logger.Fatalf("Failed to load predicted %s: %v", series, err)
		}
		sheets = append(sheets, report.Sheet{Name: string(series), Table: report.Pivot(rows, report.MWhDivisor)})
	}

	if err := report.WriteXLSX(path, sheets); err != nil {
		logger.Fatalf("Export failed: %v", err)
	}
	logger.Printf("Report written to %s", path)
}

func runServe(config *pipeline.Config, st *store.Store, logger *log.Logger) {
	p := newPipeline(config, st, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webServer := server.NewWebServer(p, config.ServerPort, logger)
	if err := webServer.Start(); err != nil {
		logger.Fatalf("Failed to start web server: %v", err)
	}

	runner := pipeline.NewRunner(p, config.RunInterval, logger)
	go runner.Run(ctx)

	// With an inverter configured, real production is sampled directly
	// from the plant energy counter between forecast cycles.
	var poller *inverter.Poller
	if config.InverterModbusAddress != "" {
		inv, err := inverter.NewTCPClient(config.InverterModbusAddress, 0)
		if err != nil {
			logger.Fatalf("Failed to connect to inverter at %s: %v", config.InverterModbusAddress, err)
		}
		defer inv.Close()

		sampler := inverter.NewSampler(inv, config.ObjectID, logger)
		poller = inverter.NewPoller(sampler, st, config.InverterPollInterval, logger)
		go poller.Run(ctx)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Printf("Planner started. Press Ctrl+C to stop...")
	<-sigChan
	logger.Printf("Shutdown signal received, stopping...")

	cancel()
	runner.Stop()
	if poller != nil {
		poller.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Printf("Web server shutdown error: %v", err)
	}

	logger.Printf("Planner stopped successfully")
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func showHelp() {
	fmt.Println("PV Planner - Forecast hourly photovoltaic production and grid sales")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Fetches weather observations and forecasts, reconciles them against the")
	fmt.Println("  stored history, trains two chained regression models (production from")
	fmt.Println("  weather, sales from production) and writes hourly predictions back to")
	fmt.Println("  the database. Predictions are exported as hour-by-date pivot reports.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Open-Meteo weather ingestion with complete-day filtering")
	fmt.Println("  - Bagged regression-tree models with holdout metrics")
	fmt.Println("  - Append-only energy store that never overwrites recorded values")
	fmt.Println("  - CSV/xlsx import, including 15-minute interval exports")
	fmt.Println("  - Web dashboard with a live run-progress feed")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  pvplanner [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # One forecast cycle")
	fmt.Println("  pvplanner --config=config.json --run")
	fmt.Println()
	fmt.Println("  # Periodic pipeline with web dashboard")
	fmt.Println("  pvplanner --config=config.json --serve")
	fmt.Println()
	fmt.Println("  # Import a spreadsheet of real readings")
	fmt.Println("  pvplanner --import=readings_2024.xlsx")
	fmt.Println()
	fmt.Println("  # Convert and import a 15-minute interval export")
	fmt.Println("  pvplanner --import-intervals=ek_2024.xlsx --series=sold")
}
