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

package device

import (
	"os"
	"strings"

	"github.com/loonghao/ferrocp/common"
)

// classifyBlockDevice distinguishes SSD from HDD via the kernel's
// rotational flag. NVMe namespaces never rotate, so they short-circuit.
func classifyBlockDevice(devicePath string) common.DeviceClass {
	name := strings.TrimPrefix(devicePath, "/dev/")
	if name == devicePath || name == "" {
		return common.EDeviceClass.Unknown()
	}
	if strings.HasPrefix(name, "nvme") {
		return common.EDeviceClass.SSD()
	}

	// Strip the partition suffix: sda1 -> sda, mmcblk0p2 -> mmcblk0.
	base := strings.TrimRight(name, "0123456789")
	if strings.HasSuffix(base, "p") && len(base) > 1 {
		base = base[:len(base)-1]
	}

	data, err := os.ReadFile("/sys/block/" + base + "/queue/rotational")
	if err != nil {
		return common.EDeviceClass.Unknown()
	}
	if strings.TrimSpace(string(data)) == "0" {
		return common.EDeviceClass.SSD()
	}
	return common.EDeviceClass.HDD()
}
