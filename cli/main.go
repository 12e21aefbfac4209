package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/tokenboard/tokenboard/cli/internal/config"
	"github.com/tokenboard/tokenboard/cli/internal/output"
	"github.com/tokenboard/tokenboard/cli/internal/submit"
	"github.com/tokenboard/tokenboard/internal/aggregate"
	"github.com/tokenboard/tokenboard/internal/model"
	"github.com/tokenboard/tokenboard/internal/parser"
	"github.com/tokenboard/tokenboard/internal/pricing"
)

const version = "0.1.0"

func main() {
	command := "report"
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "report", "submit", "config":
			command = args[0]
			args = args[1:]
		}
	}

	switch command {
	case "submit":
		runSubmit(args)
	case "config":
		runConfig(args)
	default:
		runReport(args)
	}
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)

	var (
		since    string
		until    string
		jsonOut  bool
		offline  bool
		showHelp bool
		showVer  bool
	)

	fs.StringVar(&since, "since", "", "Start date filter (YYYY-MM-DD)")
	fs.StringVar(&until, "until", "", "End date filter (YYYY-MM-DD)")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")
	fs.BoolVar(&offline, "offline", false, "Use embedded pricing data (no network)")
	fs.BoolVar(&showHelp, "help", false, "Show help")
	fs.BoolVar(&showHelp, "h", false, "Show help")
	fs.BoolVar(&showVer, "version", false, "Show version")
	fs.BoolVar(&showVer, "v", false, "Show version")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `tokenboard - AI assistant usage ledger

Usage: tokenboard [command] [options]

Commands:
  report    Show daily usage report (default)
  submit    Submit usage data to server
  config    Configure server settings

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokenboard                       Show daily usage
  tokenboard report --since 2025-06-01 --json
  tokenboard config --server https://example.com --token tb_xxx
  tokenboard submit
`)
	}

	fs.Parse(args)

	if showVer {
		fmt.Printf("tokenboard version %s\n", version)
		return
	}

	if showHelp {
		fs.Usage()
		return
	}

	events, err := loadEvents(since, until)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage data: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Println("No usage data found.")
		return
	}

	table := pricing.Load(offline)
	data := aggregate.Build(events, table, version)

	if jsonOut {
		output.PrintJSON(&data)
	} else {
		output.PrintReport(&data)
	}
}

func loadEvents(since, until string) ([]model.UsageEvent, error) {
	for _, d := range []string{since, until} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("invalid date %q, use YYYY-MM-DD", d)
		}
	}

	events, err := parser.ParseAll("")
	if err != nil {
		return nil, err
	}

	if since == "" && until == "" {
		return events, nil
	}

	filtered := events[:0]
	for _, e := range events {
		date := e.Date()
		if since != "" && date < since {
			continue
		}
		if until != "" && date > until {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, nil
}

func runConfig(args []string) {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	var (
		server string
		token  string
		show   bool
	)
	fs.StringVar(&server, "server", "", "Server URL")
	fs.StringVar(&token, "token", "", "API token for authentication")
	fs.BoolVar(&show, "show", false, "Show current configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokenboard config [options]

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokenboard config --server https://example.com --token tb_xxx
  tokenboard config --show
`)
	}

	fs.Parse(args)

	if show {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if cfg.Server == "" {
			fmt.Println("No configuration found. Run 'tokenboard config --server <url> --token <token>' to configure.")
			return
		}
		fmt.Printf("Server: %s\n", cfg.Server)
		if len(cfg.Token) > 10 {
			fmt.Printf("Token: %s...%s\n", cfg.Token[:7], cfg.Token[len(cfg.Token)-4:])
		}
		return
	}

	if server == "" && token == "" {
		fs.Usage()
		return
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = &config.Config{}
	}

	if server != "" {
		cfg.Server = server
	}
	if token != "" {
		cfg.Token = token
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Configuration saved.")
}

// submitService implements service.Interface for background submissions
type submitService struct {
	interval time.Duration
	stop     chan struct{}
	logger   service.Logger
}

func (s *submitService) Start(svc service.Service) error {
	s.stop = make(chan struct{})
	go s.run()
	return nil
}

func (s *submitService) Stop(svc service.Service) error {
	close(s.stop)
	return nil
}

func (s *submitService) run() {
	cfg, err := config.Load()
	if err != nil || cfg.Server == "" || cfg.Token == "" {
		if s.logger != nil {
			s.logger.Error("Not configured. Run 'tokenboard config' first.")
		}
		return
	}

	client := submit.NewClient(cfg)

	// Submit immediately on start
	s.doSubmit(client)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.doSubmit(client)
		case <-s.stop:
			return
		}
	}
}

func (s *submitService) doSubmit(client *submit.Client) {
	events, err := parser.ParseAll("")
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error reading usage data: %v", err)
		}
		return
	}
	if len(events) == 0 {
		return
	}

	table := pricing.Load(false)
	data := aggregate.Build(events, table, version)

	resp, err := client.Submit(&data)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error submitting: %v", err)
		}
		return
	}

	if s.logger != nil {
		s.logger.Infof("Submitted %d days (%s)", len(data.Contributions), resp.Mode)
	}
}

func runSubmit(args []string) {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	var (
		dryRun   bool
		offline  bool
		interval time.Duration
	)
	fs.BoolVar(&dryRun, "dry-run", false, "Show what would be submitted without sending")
	fs.BoolVar(&offline, "offline", false, "Use embedded pricing data (no network fetch)")
	fs.DurationVar(&interval, "interval", time.Hour, "Submit interval for service mode (e.g., 1h, 30m)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tokenboard submit [command] [options]

Commands:
  (none)      Submit once
  install     Install as a background service
  start       Start the background service
  stop        Stop the background service
  uninstall   Remove the background service
  status      Show service status

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  tokenboard submit                    Submit once
  tokenboard submit install            Install service (submits every hour)
  tokenboard submit install --interval 30m
  tokenboard submit stop
`)
	}

	// Check for service commands before parsing flags
	var svcCommand string
	if len(args) > 0 {
		switch args[0] {
		case "install", "start", "stop", "uninstall", "status", "run":
			svcCommand = args[0]
			args = args[1:]
		}
	}

	fs.Parse(args)

	svcConfig := &service.Config{
		Name:        "tokenboard-submit",
		DisplayName: "tokenboard Submit Service",
		Description: "Periodically submits AI assistant usage data to server",
		Arguments:   []string{"submit", "run", fmt.Sprintf("--interval=%s", interval)},
	}

	svc := &submitService{interval: interval}
	s, err := service.New(svc, svcConfig)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	switch svcCommand {
	case "install":
		cfg, err := config.Load()
		if err != nil || cfg.Server == "" || cfg.Token == "" {
			fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'tokenboard config --server <url> --token <token>' first.\n")
			os.Exit(1)
		}
		if err := s.Install(); err != nil {
			log.Fatalf("Failed to install service: %v", err)
		}
		if err := s.Start(); err != nil {
			log.Fatalf("Service installed but failed to start: %v", err)
		}
		fmt.Printf("Service installed and started.\n")
		fmt.Printf("Submit interval: %s\n", interval)
		return

	case "start":
		if err := s.Start(); err != nil {
			log.Fatalf("Failed to start service: %v", err)
		}
		fmt.Println("Service started.")
		return

	case "stop":
		if err := s.Stop(); err != nil {
			log.Fatalf("Failed to stop service: %v", err)
		}
		fmt.Println("Service stopped.")
		return

	case "uninstall":
		s.Stop() // ignore error
		if err := s.Uninstall(); err != nil {
			log.Fatalf("Failed to uninstall service: %v", err)
		}
		fmt.Println("Service uninstalled.")
		return

	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
		} else {
			switch status {
			case service.StatusRunning:
				fmt.Println("Service status: running")
			case service.StatusStopped:
				fmt.Println("Service status: stopped")
			default:
				fmt.Println("Service status: unknown")
			}
		}
		return

	case "run":
		// Running as service (internal command)
		logger, err := s.Logger(nil)
		if err == nil {
			svc.logger = logger
		}
		if err := s.Run(); err != nil && logger != nil {
			logger.Error(err)
		}
		return

	default:
		cfg, err := config.Load()
		if err != nil || cfg.Server == "" || cfg.Token == "" {
			fmt.Fprintf(os.Stderr, "Error: Not configured. Run 'tokenboard config --server <url> --token <token>' first.\n")
			os.Exit(1)
		}

		client := submit.NewClient(cfg)
		doSubmitOnce(client, dryRun, offline)
	}
}

func doSubmitOnce(client *submit.Client, dryRun, offline bool) {
	events, err := parser.ParseAll("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading usage data: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Println("No usage data to submit.")
		return
	}

	table := pricing.Load(offline)
	data := aggregate.Build(events, table, version)

	fmt.Printf("Prepared %d days of usage (%s tokens, %s).\n",
		len(data.Contributions),
		output.FormatNumber(data.Summary.TotalTokens),
		output.FormatCost(data.Summary.TotalCost))

	if dryRun {
		fmt.Println("Dry run - no data sent.")
		return
	}

	resp, err := client.Submit(&data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error submitting: %v\n", err)
		os.Exit(1)
	}

	output.PrintSubmitResult(resp.Username, resp.Mode, resp.Metrics.TotalTokens, resp.Metrics.TotalCost, resp.Warnings)
}
