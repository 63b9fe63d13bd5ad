// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracereader/ltt/internal/tracelog"
	"github.com/tracereader/ltt/trace"
	"github.com/tracereader/ltt/tracesession"
)

var (
	verbose bool
	maxN    int
	channel string
)

func dumpedEvent(e *trace.Event) map[string]interface{} {
	out := map[string]interface{}{
		"channel": e.Channel,
		"cpu":     e.CPU,
		"id":      e.ID,
		"time":    fmt.Sprintf("%d.%09d", e.Time.Sec, e.Time.Nsec),
	}
	if e.Marker != nil {
		out["marker"] = e.Marker.Name
		fields := make(map[string]interface{}, len(e.Marker.Fields))
		for i, f := range e.Marker.Fields {
			if i >= len(e.Fields) {
				break
			}
			fields[f.Name] = fieldValue(e.Fields[i])
		}
		out["fields"] = fields
	}
	return out
}

func fieldValue(v trace.FieldValue) interface{} {
	switch v.Kind {
	case trace.KindString:
		return v.Str
	case trace.KindFloat, trace.KindDouble:
		return v.Float
	default:
		if v.Elems != nil {
			elems := make([]interface{}, len(v.Elems))
			for i, e := range v.Elems {
				elems[i] = fieldValue(e)
			}
			return elems
		}
		if v.Fields != nil {
			fields := make([]interface{}, len(v.Fields))
			for i, f := range v.Fields {
				fields[i] = fieldValue(f)
			}
			return fields
		}
		if v.Uint != 0 || v.Int == 0 {
			return v.Uint
		}
		return v.Int
	}
}

func dump(cmd *cobra.Command, args []string) error {
	log := tracelog.Default()
	if verbose {
		log = tracelog.NewHelper(tracelog.NewFilter(tracelog.NewStdLogger(os.Stderr), tracelog.FilterLevel(tracelog.LevelDebug)))
	}

	ts, err := trace.OpenSet(args, trace.OpenOptions{Logger: log})
	if err != nil {
		return fmt.Errorf("opening trace set: %w", err)
	}
	defer ts.Close()

	sess := tracesession.New(log)
	if err := sess.Begin(ts, nil); err != nil {
		return fmt.Errorf("beginning merge session: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	count := 0
	sess.AddHook(0, func(e *trace.Event, c *trace.Cursor) bool {
		if channel != "" && e.Channel != channel {
			return true
		}
		enc.Encode(dumpedEvent(e))
		count++
		return maxN <= 0 || count < maxN
	})

	until := tracesession.Until{}
	if maxN > 0 {
		until.NEvents = maxN
	}
	reason, err := sess.Middle(until)
	if err != nil {
		return fmt.Errorf("reading trace set: %w", err)
	}
	sess.End()
	if verbose {
		fmt.Fprintf(os.Stderr, "stopped: %s, events: %d\n", reason, count)
	}
	return nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "ttdump",
		Short: "Dump events from an LTTng/LTTV binary trace directory",
		Long:  "ttdump opens one or more trace directories and prints their events, merged in chronological order, as JSON.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  dump,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log anomalies and a final summary to stderr")
	rootCmd.Flags().IntVarP(&maxN, "count", "n", 0, "stop after this many events (0 = no limit)")
	rootCmd.Flags().StringVarP(&channel, "channel", "c", "", "only dump events from this channel")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
