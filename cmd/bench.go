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
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loonghao/ferrocp/common"
	"github.com/loonghao/ferrocp/engine"
)

// benchmark auto-generates test data under the target, copies it, and
// reports throughput. The data is synthetic and non-compressible so the
// numbers reflect the I/O path, not a codec.
type rawBenchmarkCmdArgs struct {
	sizePerFile    byteSizeValue
	fileCount      uint
	numOfFolders   uint
	deleteTestData bool
}

var benchArgs = rawBenchmarkCmdArgs{
	sizePerFile:    byteSizeValue(256 * common.KiB),
	fileCount:      100,
	numOfFolders:   0,
	deleteTestData: true,
}

var benchCmd = &cobra.Command{
	Use:   "bench <target-directory>",
	Short: "Measure copy throughput with auto-generated data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmark(args[0])
	},
}

func init() {
	benchCmd.Flags().Var(&benchArgs.sizePerFile, "size-per-file", "size of each generated file (accepts K/M/G suffixes)")
	benchCmd.Flags().UintVar(&benchArgs.fileCount, "file-count", 100, "number of files to generate")
	benchCmd.Flags().UintVar(&benchArgs.numOfFolders, "number-of-folders", 0, "spread the files over this many folders (0 = flat)")
	benchCmd.Flags().BoolVar(&benchArgs.deleteTestData, "delete-test-data", true, "remove the generated data and the copies when done")

	rootCmd.AddCommand(benchCmd)
}

func runBenchmark(target string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.CloseLog()

	if benchArgs.fileCount == 0 {
		return fmt.Errorf("--file-count must be at least 1")
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return err
	}

	srcRoot := filepath.Join(target, "ferrocp-bench-src")
	dstRoot := filepath.Join(target, "ferrocp-bench-dst")
	if benchArgs.deleteTestData {
		defer func() {
			_ = os.RemoveAll(srcRoot)
			_ = os.RemoveAll(dstRoot)
		}()
	}

	fmt.Printf("generating %d file(s) of %s under %s\n", benchArgs.fileCount, benchArgs.sizePerFile.String(), srcRoot)
	if err := generateBenchmarkData(srcRoot); err != nil {
		return err
	}
	if err := os.MkdirAll(dstRoot, 0755); err != nil {
		return err
	}

	c := engine.NewClient(engine.WithLogger(logger))
	stats, err := c.CopyTree(context.Background(), srcRoot, dstRoot, nil)
	if err != nil {
		return err
	}

	throughput := stats.ThroughputBps() / float64(common.MiB)
	fmt.Printf("copied %d file(s), %d byte(s) in %s (%.1f MiB/s)\n",
		stats.FilesCopied, stats.BytesCopied, stats.Duration, throughput)
	if stats.ZeroCopyOperations > 0 {
		fmt.Printf("offloaded %d file(s), %d byte(s)\n", stats.ZeroCopyOperations, stats.ZeroCopyBytes)
	}

	report := engine.NewMonitor(0, c.Selector(), c.Cache(), logger).Snapshot()
	fmt.Printf("selector thresholds: micro=%d small=%d zerocopy=%d parallel=%d\n",
		report.Thresholds.MicroFile, report.Thresholds.SmallFile,
		report.Thresholds.ZeroCopy, report.Thresholds.Parallel)
	fmt.Printf("device cache: %d entries, %d hit(s), %d miss(es)\n",
		report.CacheStats.Entries, report.CacheStats.Hits, report.CacheStats.Misses)
	return nil
}

// generateBenchmarkData lays out the synthetic source tree. Payloads come
// from a seeded PRNG so repeated runs are comparable.
func generateBenchmarkData(srcRoot string) error {
	rng := rand.New(rand.NewSource(0x5ca1ab1e))
	payload := make([]byte, int(benchArgs.sizePerFile))
	folders := benchArgs.numOfFolders
	if folders == 0 {
		folders = 1
	}

	for i := uint(0); i < benchArgs.fileCount; i++ {
		rng.Read(payload)
		dir := srcRoot
		if benchArgs.numOfFolders > 0 {
			dir = filepath.Join(srcRoot, fmt.Sprintf("folder%d", i%folders))
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		name := filepath.Join(dir, fmt.Sprintf("bench%d.dat", i))
		if err := os.WriteFile(name, payload, common.DEFAULT_FILE_PERM); err != nil {
			return err
		}
	}
	return nil
}
