package main

import (
	"flag"
	"fmt"
	"os"

	"xstreamdl/internal/config"
	"xstreamdl/internal/dash"
	"xstreamdl/internal/download"
	"xstreamdl/internal/logger"
)

func main() {
	// 1. Parse command-line arguments
	opts := &config.Options{}
	taskFile := flag.String("c", "", "Path to a JSON task file listing manifests")
	flag.StringVar(&opts.SaveDir, "o", "Downloads", "Directory to save streams under")
	flag.BoolVar(&opts.Split, "split", false, "Keep streams from different periods separate instead of merging")
	flag.IntVar(&opts.Threads, "threads", 8, "Number of concurrent segment downloads")
	flag.StringVar(&opts.UserAgent, "ua", "", "User-Agent header for all requests")
	flag.StringVar(&opts.LogLevel, "L", "info", "Log level (error, warn, info, debug)")
	flag.BoolVar(&opts.ListOnly, "list", false, "Print the resolved streams without downloading")
	flag.Parse()
	opts.AddManifests(flag.Args())

	// 2. Initialize logger
	log := logger.NewLogger(opts.LogLevel)

	// 3. Assemble the task list
	if *taskFile != "" {
		if err := opts.LoadTasks(*taskFile); err != nil {
			log.Errorf("Failed to load task file: %v", err)
			os.Exit(1)
		}
	}
	if err := opts.Validate(); err != nil {
		log.Errorf("%v", err)
		flag.Usage()
		os.Exit(1)
	}

	// 4. Initialize services
	client := dash.NewClient(log)
	resolver := dash.NewResolver(log, opts.SaveDir, opts.Split)
	downloader := download.New(client.HttpClient(), log, opts.UserAgent, opts.Threads)
	defer downloader.Stop()

	// 5. Process each manifest; a failing manifest is skipped, the rest
	// continue.
	failures := 0
	for _, task := range opts.Tasks {
		if err := run(task, client, resolver, downloader, opts, log); err != nil {
			log.Errorf("Manifest %s skipped: %v", task.Manifest, err)
			failures++
		}
	}

	if failures > 0 {
		log.Errorf("%d of %d manifests failed", failures, len(opts.Tasks))
		os.Exit(1)
	}
}

func run(task config.Task, client *dash.Client, resolver *dash.Resolver, downloader *download.Downloader, opts *config.Options, log logger.Logger) error {
	body, finalURL, err := client.Fetch(task.Manifest, opts.UserAgent)
	if err != nil {
		return err
	}

	streams, err := resolver.Parse(finalURL, body)
	if err != nil {
		return err
	}
	if task.Name != "" {
		for _, stream := range streams {
			stream.Name = task.Name
		}
	}

	for _, stream := range streams {
		fmt.Println(stream)
	}
	if opts.ListOnly {
		return nil
	}

	for _, stream := range streams {
		if err := downloader.SaveStream(stream); err != nil {
			log.Errorf("%v", err)
		}
	}
	return nil
}
