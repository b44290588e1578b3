// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bootstrap

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// tailLines is how many trailing lines of each log are collected.
const tailLines = 20

// LogTail is the end of one component log file.
type LogTail struct {
	Component string
	File      string
	Lines     []string
}

// collectLogTails reads the tail of every *.log under each component's
// logs directory. Unreadable files are skipped.
func (s *Sequencer) collectLogTails(ctx context.Context) []LogTail {
	var (
		mu    sync.Mutex
		tails []LogTail
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for _, name := range s.registry.Names() {
		files, _ := filepath.Glob(filepath.Join(s.hostLogs(name), "*.log"))
		for _, file := range files {
			name, file := name, file
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				lines, err := tailFile(file, tailLines)
				if err != nil || len(lines) == 0 {
					return nil
				}
				mu.Lock()
				tails = append(tails, LogTail{Component: name, File: file, Lines: lines})
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	sort.Slice(tails, func(i, j int) bool {
		if tails[i].Component != tails[j].Component {
			return tails[i].Component < tails[j].Component
		}
		return tails[i].File < tails[j].File
	})
	return tails
}

// tailFile returns the last n lines of path.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = append(ring[:0], ring[1:]...)
		}
		ring = append(ring, sc.Text())
	}
	return ring, sc.Err()
}

func logTails(logger *slog.Logger, tails []LogTail) {
	for _, t := range tails {
		logger.Error("Component log tail", "component", t.Component, "file", t.File)
		for _, line := range t.Lines {
			logger.Error("  " + line)
		}
	}
}
