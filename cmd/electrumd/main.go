// Command electrumd runs the Electrum JSON-RPC server alongside a small
// admin HTTP surface exposing Prometheus metrics and a liveness probe.
package main

import (
	"net/http"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scriptindex/core/admin"
	"scriptindex/core/chain"
	"scriptindex/core/metrics"
	"scriptindex/core/query"
	"scriptindex/core/rpc"
	"scriptindex/pkg/config"
)

func main() {
	var envName string

	rootCmd := &cobra.Command{Use: "electrumd", Short: "run the Electrum RPC server"}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the RPC listener and admin HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(envName)
		},
	}
	serveCmd.Flags().StringVar(&envName, "env", "", "environment overlay to merge over the default config")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(envName string) error {
	cfg, err := config.Load(envName)
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, lerr := logrus.ParseLevel(cfg.Logging.Level); lerr == nil {
		log.SetLevel(lvl)
	}

	// The real query layer (balance/history/fee-estimation business
	// logic) is an out-of-scope collaborator; electrumd serves a
	// StubQuery until that layer is wired in by its own caller.
	q := query.NewStubQuery()

	headers, err := chain.NewMemHeaderChain(4096)
	if err != nil {
		return err
	}

	m := metrics.New()

	server, err := rpc.NewServer(cfg.RPC.ListenAddr, q, chainParams(), m, log, time.Duration(cfg.RPC.TickSeconds)*time.Second)
	if err != nil {
		return err
	}

	healthLogFile := cfg.Logging.File
	if healthLogFile == "" {
		healthLogFile = "electrumd-health.log"
	}
	health, err := admin.New(headers, server, m, healthLogFile)
	if err != nil {
		return err
	}
	defer health.Close()

	go func() {
		log.WithField("addr", cfg.RPC.AdminAddr).Info("admin HTTP surface listening")
		if err := http.ListenAndServe(cfg.RPC.AdminAddr, health.Router()); err != nil {
			log.WithError(err).Error("admin HTTP server stopped")
		}
	}()

	log.WithField("addr", cfg.RPC.ListenAddr).Info("electrum RPC server listening")
	return server.Serve()
}

func chainParams() *chaincfg.Params {
	return &chaincfg.MainNetParams
}
