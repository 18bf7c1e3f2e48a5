// Command confdemo opens confdb directly over the reference in-memory
// backend (without going through pluginloader), with its schema taken
// from a small YAML fixture and one seeded object, and prints that object
// read back through the typed facade — the smallest possible end-to-end
// wiring of the module.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/online-daq/goconf/confdb"
	"github.com/online-daq/goconf/metrics"
	"github.com/online-daq/goconf/plugins/membackend"
)

const demoSchemaYAML = `
classes:
  Dummy:
    description: a minimal demo class
    attributes:
      - name: sint32
        type: int32
      - name: label
        type: string
`

func main() {
	dbName := flag.String("db", "demo", "database name to open")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve prometheus metrics on this address")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server exited", "error", err)
			}
		}()
	}

	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/"+*dbName+".yaml", []byte(demoSchemaYAML), 0o644); err != nil {
		logger.Error("failed to write demo schema fixture", "error", err)
		os.Exit(1)
	}

	be := membackend.New(fs)
	be.SeedObject("Dummy", "#1", *dbName+".yaml", map[string]any{
		"sint32": int32(42),
		"label":  "hello from confdemo",
	})

	ctx := context.Background()
	cfg, err := confdb.Open(ctx, be, nil, *dbName, confdb.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to open configuration", "error", err)
		os.Exit(1)
	}
	defer cfg.Close(ctx)

	h, err := cfg.Get(ctx, "Dummy", "#1", 0, nil)
	if err != nil {
		logger.Error("get failed", "error", err)
		os.Exit(1)
	}
	v, err := h.GetInt32("sint32")
	if err != nil {
		logger.Error("read sint32 failed", "error", err)
		os.Exit(1)
	}
	label, _ := h.GetString("label")
	fmt.Printf("Dummy#1: sint32=%d label=%q\n", v, label)
}
