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
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/loonghao/ferrocp/common"
)

// FSCTL_DUPLICATE_EXTENTS_TO_FILE shares clusters between files on ReFS
// (block cloning). Fails with not-supported on NTFS, which is exactly the
// signal the caller needs to fall back.
const fsctlDuplicateExtentsToFile = 0x00098344

type duplicateExtentsData struct {
	FileHandle       windows.Handle
	SourceFileOffset int64
	TargetFileOffset int64
	ByteCount        int64
}

func platformZeroCopyMethods() []zeroCopyMethod {
	return []zeroCopyMethod{
		{method: common.EZeroCopyMethod.RefsCoW(), run: refsDuplicateExtents},
	}
}

func refsDuplicateExtents(src, dst string, size int64) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, common.DEFAULT_FILE_PERM)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	// The target must already span the duplicated range.
	if err := dstFile.Truncate(size); err != nil {
		return err
	}

	data := duplicateExtentsData{
		FileHandle: windows.Handle(srcFile.Fd()),
		ByteCount:  size,
	}
	var returned uint32
	return windows.DeviceIoControl(
		windows.Handle(dstFile.Fd()),
		fsctlDuplicateExtentsToFile,
		(*byte)(unsafe.Pointer(&data)),
		uint32(unsafe.Sizeof(data)),
		nil, 0, &returned, nil,
	)
}
