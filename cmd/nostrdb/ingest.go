package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/i5heu/ouroboros-nostrdb"
	workerpool "github.com/i5heu/ouroboros-nostrdb/pkg/workerPool"
	"github.com/spf13/cobra"
)

const ingestBatch = 1024

func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	var producers int

	cmd := &cobra.Command{
		Use:   "ingest <events.jsonl>",
		Short: "Ingest newline separated events, '-' reads stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runIngest(cmd.Context(), rootOpts, in, cmd.OutOrStdout(), producers)
		},
	}
	cmd.Flags().IntVar(&producers, "producers", 4, "events validated and queued concurrently")
	return cmd
}

type ingestResult struct {
	accepted bool
	err      error
}

func runIngest(ctx context.Context, opts *RootOptions, in io.Reader, out io.Writer, producers int) error {
	db, err := openDB(ctx, opts)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	wp := workerpool.NewWorkerPool(workerpool.Config{WorkerCount: producers, GlobalBuffer: ingestBatch})
	defer wp.Close()

	var accepted, rejected int
	flush := func(batch [][]byte) error {
		room := wp.CreateRoom(len(batch))
		for _, raw := range batch {
			raw := raw
			err := room.NewTaskWaitForFreeSlot(ctx, func() any {
				for {
					ok, err := db.ProcessEvent(raw)
					if errors.Is(err, nostrdb.ErrQueueFull) {
						continue
					}
					return ingestResult{accepted: ok, err: err}
				}
			})
			if err != nil {
				return err
			}
		}
		for _, r := range room.Collect() {
			res := r.(ingestResult)
			if res.accepted {
				accepted++
			} else {
				rejected++
			}
		}
		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	batch := make([][]byte, 0, ingestBatch)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		batch = append(batch, append([]byte(nil), line...))
		if len(batch) == ingestBatch {
			if err := flush(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if err := flush(batch); err != nil {
		return err
	}

	if err := db.Sync(ctx); err != nil {
		return err
	}
	version, err := db.GraphVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "accepted: %d\nrejected: %d\ngraph version: %d\n", accepted, rejected, version)
	return nil
}
