// Command thumbshare runs a node that caches thumbnails and serves library
// files to trusted peers.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/opd-ai/thumbshare/config"
	"github.com/opd-ai/thumbshare/crypto"
	"github.com/opd-ai/thumbshare/metrics"
	"github.com/opd-ai/thumbshare/node"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logrus.WithError(err).Fatal("thumbshare failed")
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("thumbshare", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "configuration file (default "+config.DefaultConfigPath()+")")
	generateKey := flags.Bool("generate-key", false, "print a new library key pair and exit")
	flags.String("data_directory", "", "directory for the index and thumbnails")
	flags.String("logging.level", "", "log level: debug, info, warn, error")
	flags.String("p2p.listen", "", "address for inbound peer streams")
	flags.Bool("metrics.enabled", false, "serve prometheus metrics")
	flags.String("metrics.listen", "", "address of the metrics endpoint")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *generateKey {
		return printKeyPair()
	}

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		return err
	}

	if reg := n.Registry(); reg != nil {
		srv := metrics.NewServer(cfg.Metrics.Listen, reg)
		go func() {
			logrus.WithField("address", cfg.Metrics.Listen).Info("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.WithError(err).Error("Metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logrus.Info("Node is running. Press Ctrl+C to stop.")
	<-ctx.Done()
	logrus.Info("Shutting down")
	return nil
}

func printKeyPair() error {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	defer crypto.WipeKeyPair(kp)

	fmt.Printf("private_key: %s\n", hex.EncodeToString(kp.Private[:]))
	fmt.Printf("identity:    %s\n", kp.Public)
	return nil
}
