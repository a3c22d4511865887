package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Provider supplies the time-indexed feature/price table. The feature
// engineering stage that produces the table is an external collaborator.
type Provider interface {
	// History returns the full table, oldest row first.
	History(ctx context.Context) (*Frame, error)
	// Recent returns a frame holding the most recent n rows.
	Recent(ctx context.Context, n int) (*Frame, error)
}

// CSVProvider reads the labeled feature table exported by the feature
// pipeline. The first column must be "time" (unix seconds or RFC3339);
// every other column is numeric.
type CSVProvider struct {
	Path string
}

func (p *CSVProvider) History(ctx context.Context) (*Frame, error) {
	if p == nil || strings.TrimSpace(p.Path) == "" {
		return nil, ErrUnavailable
	}
	f, err := os.Open(p.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = false
	header, err := r.Read()
	if err != nil {
		return nil, ErrUnavailable
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "time") {
		return nil, fmt.Errorf("dataset: csv must start with a time column, got %q", header[0])
	}
	names := make([]string, 0, len(header)-1)
	for _, h := range header[1:] {
		names = append(names, strings.TrimSpace(h))
	}

	var times []time.Time
	cols := make(map[string][]float64, len(names))
	for _, name := range names {
		cols[name] = nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err != nil {
			break
		}
		if len(rec) != len(header) {
			continue
		}
		ts, err := parseTime(rec[0])
		if err != nil {
			continue
		}
		ok := true
		vals := make([]float64, len(names))
		for i := range names {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		times = append(times, ts)
		for i, name := range names {
			cols[name] = append(cols[name], vals[i])
		}
	}
	if len(times) == 0 {
		return nil, ErrUnavailable
	}
	times, cols = sortRows(times, cols, names)
	return NewFrame(times, cols, names)
}

// sortRows restores ascending time order and drops duplicate bars, keeping
// the last occurrence. Indicator windows and time lookups assume strictly
// increasing bars, so an unsorted export must not pass through unchanged.
func sortRows(times []time.Time, cols map[string][]float64, names []string) ([]time.Time, map[string][]float64) {
	sorted := true
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			sorted = false
			break
		}
	}
	if sorted {
		return times, cols
	}
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })

	outTimes := make([]time.Time, 0, len(times))
	outCols := make(map[string][]float64, len(cols))
	for _, name := range names {
		outCols[name] = make([]float64, 0, len(times))
	}
	for k, i := range idx {
		if k+1 < len(idx) && times[idx[k+1]].Equal(times[i]) {
			continue
		}
		outTimes = append(outTimes, times[i])
		for _, name := range names {
			outCols[name] = append(outCols[name], cols[name][i])
		}
	}
	return outTimes, outCols
}

func (p *CSVProvider) Recent(ctx context.Context, n int) (*Frame, error) {
	frame, err := p.History(ctx)
	if err != nil {
		return nil, err
	}
	return frame.Tail(n), nil
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	return time.Parse(time.RFC3339, raw)
}
