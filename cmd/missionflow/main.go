// =============================================================================
// MissionFlow command-line entry point
// =============================================================================
// Inspection tooling for missionflow job queues.
//
// Usage:
//
//	missionflow status <jobID>            # print a job's status blob
//	missionflow dead                      # list dead-lettered jobs
//	missionflow version                   # show version information
//
// The -config flag points at a YAML configuration file; MISSIONFLOW_*
// environment variables override it.
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/missionflow/config"
	"github.com/BaSui01/missionflow/queue"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	switch args[0] {
	case "version":
		fmt.Printf("missionflow %s\n", version)
	case "status":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: missionflow status <jobID>")
			os.Exit(2)
		}
		run(*configPath, func(ctx context.Context, q queue.Queue) error {
			return printStatus(ctx, q, args[1])
		})
	case "dead":
		run(*configPath, printDeadLetters)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: missionflow [-config file] <status|dead|version> [args]")
	flag.PrintDefaults()
}

// run loads configuration, connects the configured queue backend and
// invokes fn with it.
func run(configPath string, fn func(ctx context.Context, q queue.Queue) error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err)
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	q, err := queue.New(queue.Options{
		Backend: queue.Backend(cfg.Queue.Backend),
		Redis: queue.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			PoolSize:  cfg.Redis.PoolSize,
			KeyPrefix: cfg.Redis.KeyPrefix,
		},
	}, logger)
	if err != nil {
		fatal(err)
	}
	defer func() {
		if cerr := q.Close(); cerr != nil {
			logger.Warn("queue close failed", zap.Error(cerr))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fn(ctx, q); err != nil {
		fatal(err)
	}
}

// printStatus dumps one job's status blob as indented JSON.
func printStatus(ctx context.Context, q queue.Queue, jobID string) error {
	fields, err := q.Status().Read(ctx, jobID)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return fmt.Errorf("no status for job %q", jobID)
	}
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// printDeadLetters lists retained dead-lettered jobs for backends that
// expose them.
func printDeadLetters(ctx context.Context, q queue.Queue) error {
	type deadLister interface {
		DeadLetters(ctx context.Context) ([]*queue.Job, error)
	}
	dl, ok := q.(deadLister)
	if !ok {
		return fmt.Errorf("queue backend does not expose dead letters")
	}
	jobs, err := dl.DeadLetters(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Println("no dead-lettered jobs")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  type=%s queue=%s attempts=%d enqueued=%s\n",
			job.ID, job.Type, job.Queue, job.Attempts, job.EnqueuedAt.Format(time.RFC3339))
	}
	return nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "missionflow: %v\n", err)
	os.Exit(1)
}
