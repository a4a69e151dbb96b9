package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/trellis/internal/build"
	"github.com/ajitpratap0/trellis/pkg/config"
	"github.com/ajitpratap0/trellis/pkg/errors"
	"github.com/ajitpratap0/trellis/pkg/logger"
	"github.com/ajitpratap0/trellis/pkg/observability"
	"github.com/ajitpratap0/trellis/pkg/panels"
	"github.com/ajitpratap0/trellis/pkg/render"
	"github.com/ajitpratap0/trellis/pkg/spec"
	"github.com/ajitpratap0/trellis/pkg/table"
)

var version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "trellis",
		Short: "Trellis - small-multiples visualization collection builder",
		Long: `Trellis builds browsable collections of many small related visualizations.
It infers a typed schema over your data, renders one panel per row in parallel,
and writes a versioned specification any viewer can serve.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Trellis v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "adapters",
		Short: "List registered panel adapters",
		Run: func(cmd *cobra.Command, args []string) {
			_ = render.RegisterBuiltins(render.GetRegistry())
			fmt.Println("Registered panel adapters (in detection order):")
			for _, name := range render.GetRegistry().List() {
				fmt.Printf("  - %s\n", name)
			}
		},
	})

	var (
		configFile string
		dataFile   string
		panelCol   string
		keyCol     string
		logLevel   string
	)
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Build a collection from a config file and a CSV table",
		Long: `Build a collection: infer the schema, render panels and write the
specification under the configured root.

Example:
  trellis build --config collection.yaml --data rows.csv --panel chart`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(configFile, dataFile, panelCol, keyCol, logLevel)
		},
	}
	buildCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to build configuration YAML file (required)")
	buildCmd.Flags().StringVarP(&dataFile, "data", "d", "", "Path to CSV data file (required)")
	buildCmd.Flags().StringVarP(&panelCol, "panel", "p", "", "Name of the panel column (required)")
	buildCmd.Flags().StringVarP(&keyCol, "key", "k", "", "Column holding unique row keys (default: row index)")
	buildCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	_ = buildCmd.MarkFlagRequired("config")
	_ = buildCmd.MarkFlagRequired("data")
	_ = buildCmd.MarkFlagRequired("panel")
	root.AddCommand(buildCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect <collection-root>",
		Short: "Summarize a written collection specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(args[0])
		},
	}
	root.AddCommand(inspectCmd)

	var probeLimit int
	probeCmd := &cobra.Command{
		Use:   "probe <collection-root>",
		Short: "Verify a deployed collection's remote panels are reachable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(args[0], probeLimit)
		},
	}
	probeCmd.Flags().IntVarP(&probeLimit, "limit", "n", 5, "Maximum number of panels to probe (0 = all)")
	root.AddCommand(probeCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runBuild(configFile, dataFile, panelCol, keyCol, logLevel string) error {
	cfg := config.NewBuildConfig("", "")
	if err := config.Load(configFile, cfg); err != nil {
		return err
	}
	if logLevel == "" {
		logLevel = cfg.Observability.LogLevel
	}
	if err := logger.Init(logger.Config{Level: logLevel, Encoding: "console"}); err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	if cfg.Observability.EnableTracing {
		tcfg := observability.DefaultTracingConfig()
		tcfg.ServiceVersion = version
		if cfg.Observability.TracingSampleRate > 0 {
			tcfg.SamplingRate = cfg.Observability.TracingSampleRate
		}
		if err := observability.Init(tcfg); err != nil {
			logger.Warn("tracing unavailable", zap.Error(err))
		} else {
			defer observability.Shutdown(ctx)
		}
	}

	tbl, err := table.ReadCSVFile(dataFile)
	if err != nil {
		return err
	}
	if keyCol != "" {
		if err := tbl.SetKeyColumn(keyCol); err != nil {
			return err
		}
	}

	if err := render.RegisterBuiltins(render.GetRegistry()); err != nil {
		return err
	}
	builder, err := build.New(cfg, tbl, panelCol)
	if err != nil {
		return err
	}
	result, err := builder.Build(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Collection %q built: %d rows, %d panels rendered, %d failed, %d skipped\n",
		result.Document.Name, result.Document.RowCount,
		result.Render.Succeeded, result.Render.Failed, result.Render.Skipped)
	fmt.Printf("Specification: %s\n", result.SpecPath)
	if result.Uploaded > 0 {
		fmt.Printf("Uploaded %d files to %s\n", result.Uploaded, cfg.Upload.Bucket)
	}
	return nil
}

func runProbe(root string, limit int) error {
	path, err := spec.Find(root)
	if err != nil {
		return err
	}
	doc, err := spec.Load(path)
	if err != nil {
		return err
	}

	pv, ok := doc.PanelVariable()
	if !ok || pv.PanelSource == nil {
		return errors.New(errors.ErrorTypeValidation, "collection has no panel source")
	}
	src, err := panels.FromWire(*pv.PanelSource)
	if err != nil {
		return err
	}
	remote, ok := src.(*panels.Remote)
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation,
			"panel source kind %q is local; nothing to probe", pv.PanelSource.Kind)
	}

	if err := logger.Init(logger.Config{Level: "info", Encoding: "console"}); err != nil {
		return err
	}
	defer logger.Sync()
	client, err := panels.NewClient(nil, logger.Get().Named("probe"))
	if err != nil {
		return err
	}

	ctx := context.Background()
	probed, failed := 0, 0
	for _, rec := range doc.Records {
		if limit > 0 && probed >= limit {
			break
		}
		probed++
		if err := client.Probe(ctx, remote, rec.Key); err != nil {
			failed++
			fmt.Printf("  FAIL %s: %v\n", rec.Key, err)
		}
	}
	fmt.Printf("Probed %d panels, %d unreachable\n", probed, failed)
	if failed > 0 {
		return errors.Newf(errors.ErrorTypeConnection, "%d of %d panels unreachable", failed, probed)
	}
	return nil
}

func runInspect(root string) error {
	path, err := spec.Find(root)
	if err != nil {
		return err
	}
	doc, err := spec.Load(path)
	if err != nil {
		return err
	}

	fmt.Printf("Collection: %s\n", doc.Name)
	if doc.Description != "" {
		fmt.Printf("Description: %s\n", doc.Description)
	}
	fmt.Printf("Signature: %s\n", doc.Signature)
	fmt.Printf("Rows: %d\n", doc.RowCount)
	fmt.Printf("Variables:\n")
	for _, v := range doc.Variables {
		flags := ""
		if v.Filterable {
			flags += " filterable"
		}
		if v.Sortable {
			flags += " sortable"
		}
		fmt.Printf("  - %s (%s)%s\n", v.Name, v.Type, flags)
	}
	if len(doc.Views) > 0 {
		fmt.Printf("Views:\n")
		for _, view := range doc.Views {
			fmt.Printf("  - %s\n", view.Name)
		}
	}
	return nil
}
