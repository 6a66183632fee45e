// Command smoke probes a running API instance and reports per-endpoint
// status, for release checks and gate-terminal connectivity debugging.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type target struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Expect   int    `json:"expect"`
	Critical bool   `json:"critical"`
}

type config struct {
	Targets []target `json:"targets"`
}

type result struct {
	Target   target
	Status   int
	Match    bool
	Err      error
	Duration time.Duration
}

func main() {
	var (
		base        string
		targetsPath string
		bearer      string
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&targetsPath, "targets", filepath.Join("scripts", "smoke", "targets.json"), "Path to JSON targets file")
	flag.StringVar(&bearer, "token", "", "Bearer token for authenticated targets")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.Parse()

	cfg, err := loadConfig(targetsPath)
	if err != nil {
		log.Fatalf("load targets: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	failures := 0
	for _, tgt := range cfg.Targets {
		res := probe(client, base, bearer, tgt)
		report(res)
		if !res.Match && tgt.Critical {
			failures++
		}
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d critical target(s) failed\n", failures)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("no targets in %s", path)
	}
	return &cfg, nil
}

func probe(client *http.Client, base, bearer string, tgt target) result {
	method := strings.ToUpper(tgt.Method)
	if method == "" {
		method = http.MethodGet
	}
	expect := tgt.Expect
	if expect == 0 {
		expect = http.StatusOK
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+tgt.Path, nil)
	if err != nil {
		return result{Target: tgt, Err: err}
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)
	if err != nil {
		return result{Target: tgt, Err: err, Duration: duration}
	}
	defer resp.Body.Close()

	return result{
		Target:   tgt,
		Status:   resp.StatusCode,
		Match:    resp.StatusCode == expect,
		Duration: duration,
	}
}

func report(res result) {
	label := "ok"
	if res.Err != nil {
		label = "error"
	} else if !res.Match {
		label = "mismatch"
	}
	if res.Err != nil {
		fmt.Printf("%-8s %-6s %-40s %v\n", label, res.Target.Method, res.Target.Path, res.Err)
		return
	}
	fmt.Printf("%-8s %-6s %-40s %d (%s)\n", label, res.Target.Method, res.Target.Path, res.Status, res.Duration.Round(time.Millisecond))
}
