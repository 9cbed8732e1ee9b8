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

	"golang.org/x/sys/unix"

	"github.com/loonghao/ferrocp/common"
)

// Linux tries copy_file_range first (server-side copy on NFS, block
// cloning on XFS/Btrfs where supported), then an explicit FICLONE reflink.
func platformZeroCopyMethods() []zeroCopyMethod {
	return []zeroCopyMethod{
		{method: common.EZeroCopyMethod.CopyFileRange(), run: copyFileRange},
		{method: common.EZeroCopyMethod.Reflink(), run: reflinkClone},
	}
}

func copyFileRange(src, dst string, size int64) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	remaining := size
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(srcFile.Fd()), nil, int(dstFile.Fd()), nil, int(remaining), 0)
		if err != nil {
			return err
		}
		if n == 0 {
			// Source shrank underneath us; the short result is final.
			break
		}
		remaining -= int64(n)
	}
	return nil
}

func reflinkClone(src, dst string, size int64) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	return unix.IoctlFileClone(int(dstFile.Fd()), int(srcFile.Fd()))
}
