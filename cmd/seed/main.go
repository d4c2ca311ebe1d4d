// Command seed builds a combined agents.json file from a directory of
// per-agent JSON fragments, for the gateway's AGENTS_FILE startup load.
// Agent configuration storage proper is out of scope (SPEC_FULL.md §1);
// this only assembles the static file small deployments load at process
// start, mirroring the teacher seed CLI's flag-driven one-shot shape.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voicebridge/gateway/internal/config"
)

func main() {
	dir := flag.String("dir", "", "directory containing one .json file per agent")
	out := flag.String("out", "agents.json", "combined output file")
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "usage: seed --dir ./agents/ [--out agents.json]")
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	files, err := filepath.Glob(filepath.Join(*dir, "*.json"))
	if err != nil {
		slog.Error("glob agent files", "error", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no .json files found in", *dir)
		os.Exit(1)
	}

	agents := make([]config.Agent, 0, len(files))
	for _, f := range files {
		agent, err := loadAgent(f)
		if err != nil {
			slog.Error("load agent", "file", f, "error", err)
			continue
		}
		agents = append(agents, agent)
		slog.Info("seeded agent", "file", f, "id", agent.ID)
	}

	data, err := json.MarshalIndent(agents, "", "  ")
	if err != nil {
		slog.Error("marshal agents", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		slog.Error("write agents file", "path", *out, "error", err)
		os.Exit(1)
	}

	slog.Info("done", "agents", len(agents), "out", *out)
}

func loadAgent(path string) (config.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return config.Agent{}, err
	}
	var agent config.Agent
	if err := json.Unmarshal(data, &agent); err != nil {
		return config.Agent{}, fmt.Errorf("unmarshal: %w", err)
	}
	if agent.ID == "" {
		return config.Agent{}, fmt.Errorf("agent missing id")
	}
	return agent, nil
}
