// Copyright 2025 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// txnload drives the transaction coordinator against an in-process chaos
// service that aborts a configurable fraction of commits, and reports how
// the retry loop fared. It is a contention simulator, not a benchmark of
// any real service.
package main

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/txnkit/pkg/client"
	"github.com/cockroachdb/txnkit/pkg/util/log"
	"github.com/cockroachdb/txnkit/pkg/util/timeutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var (
	sessions  int
	txnsPer   int
	abortRate float64
	hintRate  float64
	deadline  time.Duration
	verbosity int32
)

var rootCmd = &cobra.Command{
	Use:   "txnload",
	Short: "simulate transaction contention against a chaos service",
	Args:  cobra.NoArgs,
	RunE:  runLoad,
}

func init() {
	rootCmd.Flags().IntVar(&sessions, "sessions", 4,
		"concurrent sessions, one transaction at a time each")
	rootCmd.Flags().IntVar(&txnsPer, "txns", 25,
		"transactions to run per session")
	rootCmd.Flags().Float64Var(&abortRate, "abort-rate", 0.3,
		"probability that a commit aborts under simulated contention")
	rootCmd.Flags().Float64Var(&hintRate, "hint-rate", 0.2,
		"fraction of aborts that carry a server retry-delay hint")
	rootCmd.Flags().DurationVar(&deadline, "deadline", 30*time.Second,
		"per-transaction wall-clock retry budget")
	rootCmd.Flags().Int32Var(&verbosity, "vmodule", 0,
		"log verbosity level")
}

func runLoad(cmd *cobra.Command, _ []string) error {
	log.SetVerbosity(verbosity)
	reg := prometheus.NewRegistry()
	chaos := newChaosSender(abortRate, hintRate)
	db := client.NewDB(chaos, client.Config{Registry: reg})

	start := timeutil.Now()
	var wg sync.WaitGroup
	var failures int
	var mu sync.Mutex
	for i := 0; i < sessions; i++ {
		sess := db.NewSession(fmt.Sprintf("load-%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < txnsPer; j++ {
				_, err := db.TxnWithOptions(context.Background(), sess,
					client.TxnOptions{Deadline: timeutil.Now().Add(deadline)},
					func(ctx context.Context, txn *client.Txn) error {
						if _, err := txn.Read(ctx, "accounts", []byte("a"), []string{"balance"}); err != nil {
							return err
						}
						_, err := txn.Query(ctx, "UPDATE accounts SET balance = balance - 1")
						return err
					})
				if err != nil {
					mu.Lock()
					failures++
					mu.Unlock()
					log.Errorf(context.Background(), "transaction failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	elapsed := timeutil.Since(start)

	fmt.Printf("ran %d transactions across %d sessions in %s (%d failed)\n",
		sessions*txnsPer, sessions, elapsed.Round(time.Millisecond), failures)
	return printMetrics(reg)
}

// printMetrics dumps the coordinator's counters and histograms in a
// compact summary.
func printMetrics(reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				fmt.Printf("  %-32s %v\n", f.GetName(), m.GetCounter().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				fmt.Printf("  %-32s count=%d sum=%.3f\n",
					f.GetName(), h.GetSampleCount(), h.GetSampleSum())
			}
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
