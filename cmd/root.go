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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/loonghao/ferrocp/common"
)

var (
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:     "ferrocp",
	Short:   "High-throughput file and directory replication",
	Long:    "ferrocp copies files and directory trees, picking a copy strategy per file from its size and the storage backing both ends.",
	Version: common.FerroCPVersion,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "Warning",
		"minimum severity to log (None, Error, Warning, Info, Debug)")
}

// newLogger resolves the --log-level flag into the logger the commands
// hand down to the engine.
func newLogger() (common.ILoggerCloser, error) {
	level := common.ELogLevel.Warning()
	if err := level.Parse(logLevelFlag); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", logLevelFlag, err)
	}
	if level == common.ELogLevel.None() {
		return common.NewNopLogger(), nil
	}
	return common.NewStderrLogger(level), nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
