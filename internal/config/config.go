package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Task names one manifest to process.
type Task struct {
	// Name overrides the folder name derived from the manifest URL.
	Name string
	// Manifest is the MPD URL.
	Manifest string
}

// Options holds the fully processed invocation settings.
type Options struct {
	SaveDir   string
	Split     bool
	Threads   int
	UserAgent string
	LogLevel  string
	ListOnly  bool
	Tasks     []Task
}

// rawTask is used for intermediate unmarshaling from the JSON task file.
type rawTask struct {
	Name     string `json:"Name"`
	Manifest string `json:"Manifest"`
}

// rawTaskFile is the intermediate structure that maps directly to the file.
type rawTaskFile struct {
	UserAgent string    `json:"UserAgent"`
	Tasks     []rawTask `json:"Tasks"`
}

// LoadTasks reads a JSON task file and appends its entries to the options.
// The file's UserAgent applies only when the command line did not set one.
func (o *Options) LoadTasks(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read task file at %s: %w", path, err)
	}

	var raw rawTaskFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal task file JSON: %w", err)
	}

	for _, rt := range raw.Tasks {
		if strings.TrimSpace(rt.Manifest) == "" {
			return fmt.Errorf("task %q in %s has no manifest URL", rt.Name, path)
		}
		o.Tasks = append(o.Tasks, Task{Name: rt.Name, Manifest: strings.TrimSpace(rt.Manifest)})
	}
	if o.UserAgent == "" {
		o.UserAgent = raw.UserAgent
	}
	return nil
}

// AddManifests appends bare manifest URLs given on the command line.
func (o *Options) AddManifests(urls []string) {
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		o.Tasks = append(o.Tasks, Task{Manifest: u})
	}
}

// Validate checks that the options describe something to do.
func (o *Options) Validate() error {
	if len(o.Tasks) == 0 {
		return fmt.Errorf("no manifest URLs given; pass them as arguments or via a task file")
	}
	if o.Threads < 1 {
		return fmt.Errorf("thread count must be at least 1, got %d", o.Threads)
	}
	return nil
}
