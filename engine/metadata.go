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

package engine

import (
	"os"
	"runtime"
	"time"

	"github.com/loonghao/ferrocp/common"
)

// preserveMetadata copies mtime and (on Unix) the permission bits from the
// source metadata onto dst. atime is deliberately not restored. Failures
// never fail the copy; they are logged and swallowed.
func preserveMetadata(dst string, srcInfo os.FileInfo, logger common.ILogger) {
	if err := os.Chtimes(dst, time.Now(), srcInfo.ModTime()); err != nil {
		logMetadataFailure(logger, dst, err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(dst, srcInfo.Mode().Perm()); err != nil {
			logMetadataFailure(logger, dst, err)
		}
	}
}

func logMetadataFailure(logger common.ILogger, dst string, err error) {
	if logger != nil && logger.ShouldLog(common.ELogLevel.Warning()) {
		logger.Log(common.ELogLevel.Warning(), "metadata preservation failed for "+dst+": "+err.Error())
	}
}
