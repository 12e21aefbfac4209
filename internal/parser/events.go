// Package parser reads normalized usage events from JSONL files. The
// source-specific session parsers (opencode, claude, codex, gemini, cursor)
// write one event per line into ~/.tokenboard/events/; this package is the
// consuming side of that contract.
package parser

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/tokenboard/tokenboard/internal/model"
)

// FindEventFiles finds all JSONL event files under the events directory.
// An empty dir defaults to ~/.tokenboard/events.
func FindEventFiles(dir string) ([]string, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(homeDir, ".tokenboard", "events")
	}

	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && filepath.Ext(path) == ".jsonl" {
			files = append(files, path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// ParseFile parses a single JSONL file into usage events.
func ParseFile(path string) ([]model.UsageEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []model.UsageEvent
	scanner := bufio.NewScanner(file)

	// Increase buffer size for large lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e model.UsageEvent
		if err := json.Unmarshal(line, &e); err != nil {
			// Skip malformed lines
			continue
		}

		if e.Source == "" || e.ModelID == "" || e.TimestampMs <= 0 {
			continue
		}
		if e.Tokens.Sum() == 0 {
			continue
		}

		events = append(events, e)
	}

	return events, scanner.Err()
}

// ParseAll parses every event file under dir and returns all events.
func ParseAll(dir string) ([]model.UsageEvent, error) {
	files, err := FindEventFiles(dir)
	if err != nil {
		return nil, err
	}

	var all []model.UsageEvent
	for _, file := range files {
		events, err := ParseFile(file)
		if err != nil {
			continue
		}
		all = append(all, events...)
	}

	return all, nil
}
