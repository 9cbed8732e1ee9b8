// Copyright © 2024 loonghao
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loonghao/ferrocp/common"
	"github.com/loonghao/ferrocp/engine"
	"github.com/loonghao/ferrocp/traverser"
)

type cpCmdArgs struct {
	recursive     bool
	threads       int
	bufferSize    byteSizeValue
	progress      bool
	noZeroCopy    bool
	preRead       bool
	noPreserve    bool
	verify        bool
	maxRetries    int
	symlinkPolicy string
	timeout       time.Duration
	dryRun        bool
}

var cpArgs cpCmdArgs

var cpCmd = &cobra.Command{
	Use:   "cp <source> <destination>",
	Short: "Copy a file or directory tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopy(args[0], args[1])
	},
}

func init() {
	cpCmd.Flags().BoolVarP(&cpArgs.recursive, "recursive", "r", false, "copy directories recursively")
	cpCmd.Flags().IntVar(&cpArgs.threads, "threads", 0, "concurrent file copies for tree copies (0 = CPU count)")
	cpCmd.Flags().Var(&cpArgs.bufferSize, "buffer-size", "override the device-derived buffer size (accepts K/M/G suffixes)")
	cpCmd.Flags().BoolVar(&cpArgs.progress, "progress", false, "report progress while copying")
	cpCmd.Flags().BoolVar(&cpArgs.noZeroCopy, "no-zero-copy", false, "disable platform offload (reflink, copy_file_range)")
	cpCmd.Flags().BoolVar(&cpArgs.preRead, "preread", false, "enable predictive read-ahead")
	cpCmd.Flags().BoolVar(&cpArgs.noPreserve, "no-preserve", false, "do not preserve mtime and permission bits")
	cpCmd.Flags().BoolVar(&cpArgs.verify, "verify", false, "compare source and destination after copying")
	cpCmd.Flags().IntVar(&cpArgs.maxRetries, "max-retries", 3, "retries for transient I/O errors")
	cpCmd.Flags().StringVar(&cpArgs.symlinkPolicy, "symlinks", "Preserve", "symlink handling: Skip, Preserve or Follow")
	cpCmd.Flags().DurationVar(&cpArgs.timeout, "timeout", 0, "abort the whole operation after this duration")
	cpCmd.Flags().BoolVar(&cpArgs.dryRun, "dry-run", false, "enumerate and report what would be copied")

	rootCmd.AddCommand(cpCmd)
}

func runCopy(src, dst string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.CloseLog()

	policy := common.ESymlinkPolicy.Preserve()
	if err := policy.Parse(cpArgs.symlinkPolicy); err != nil {
		return fmt.Errorf("invalid --symlinks %q: %w", cpArgs.symlinkPolicy, err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if cpArgs.timeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, cpArgs.timeout)
		defer tcancel()
	}

	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	if srcInfo.IsDir() && !cpArgs.recursive {
		return fmt.Errorf("%s is a directory (use --recursive)", src)
	}

	if cpArgs.dryRun {
		return dryRun(ctx, src, dst, srcInfo.IsDir(), policy, logger)
	}

	clientOpts := []engine.ClientOption{
		engine.WithLogger(logger),
		engine.WithSymlinkPolicy(policy),
	}
	if cpArgs.threads > 0 {
		clientOpts = append(clientOpts, engine.WithParallelism(cpArgs.threads))
	}
	if cpArgs.progress {
		clientOpts = append(clientOpts, engine.WithProgressSink(newConsoleSink()))
	}
	client := engine.NewClient(clientOpts...)

	override := common.DefaultCopyOptions()
	override.BufferSize = int(cpArgs.bufferSize)
	override.EnableProgress = cpArgs.progress
	override.EnableZeroCopy = !cpArgs.noZeroCopy
	override.EnablePreRead = cpArgs.preRead
	override.PreserveMetadata = !cpArgs.noPreserve
	override.VerifyCopy = cpArgs.verify
	override.MaxRetries = cpArgs.maxRetries

	var stats common.CopyStats
	if srcInfo.IsDir() {
		if err := os.MkdirAll(dst, 0755); err != nil {
			return err
		}
		stats, err = client.CopyTree(ctx, src, dst, &override)
	} else {
		stats, err = client.Copy(ctx, src, dst, &override)
	}

	printSummary(stats)
	return err
}

func dryRun(ctx context.Context, src, dst string, isDir bool, policy common.SymlinkPolicy, logger common.ILogger) error {
	if !isDir {
		fmt.Printf("would copy %s -> %s\n", src, dst)
		return nil
	}
	var files, dirs uint64
	var bytes uint64
	walker := traverser.NewLocalTraverser(src, policy, logger)
	err := walker.Traverse(ctx, func(entry traverser.Entry) error {
		if entry.IsDir {
			dirs++
		} else {
			files++
			if entry.Info != nil {
				bytes += uint64(entry.Info.Size())
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("would copy %d file(s), %d dir(s), %d byte(s): %s -> %s\n", files, dirs, bytes, src, dst)
	return nil
}

func printSummary(stats common.CopyStats) {
	fmt.Printf("%d file(s), %d dir(s), %d byte(s) in %s",
		stats.FilesCopied, stats.DirectoriesCreated, stats.BytesCopied, stats.Duration.Round(time.Millisecond))
	if stats.ZeroCopyOperations > 0 {
		fmt.Printf(" (%d offloaded, %d bytes)", stats.ZeroCopyOperations, stats.ZeroCopyBytes)
	}
	if stats.Errors > 0 {
		fmt.Printf(", %d error(s)", stats.Errors)
	}
	fmt.Println()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// consoleSink prints coarse progress lines; it deliberately rate-limits
// nothing itself, since the engine already honors ProgressInterval.
type consoleSink struct{}

func newConsoleSink() common.ProgressSink { return consoleSink{} }

func (consoleSink) OnProgress(e common.ProgressEvent) {
	fmt.Printf("\r%s: %d/%d bytes (%.1f MB/s)", e.File, e.CurrentBytes, e.TotalBytes, e.RateBps/float64(common.MiB))
}

func (consoleSink) OnCompletion(common.CopyStats) {
	fmt.Print("\r")
}
