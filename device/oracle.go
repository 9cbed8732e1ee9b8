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

// Package device answers the question "what class of storage backs this
// path?" and memoizes the answers behind a TTL+LRU cache.
package device

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/loonghao/ferrocp/common"
)

// Oracle classifies the storage backing a path. Implementations may
// suspend and may err; callers map errors to DeviceClass Unknown. Within
// the cache TTL an oracle must be pure with respect to the path argument.
type Oracle interface {
	Detect(ctx context.Context, path string) (common.DeviceClass, error)
}

// OracleFunc adapts a plain function to the Oracle interface.
type OracleFunc func(ctx context.Context, path string) (common.DeviceClass, error)

func (f OracleFunc) Detect(ctx context.Context, path string) (common.DeviceClass, error) {
	return f(ctx, path)
}

// FixedOracle always answers with the same class. Useful for tests and for
// callers that already know their topology.
func FixedOracle(class common.DeviceClass) Oracle {
	return OracleFunc(func(context.Context, string) (common.DeviceClass, error) {
		return class, nil
	})
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// systemOracle walks the mount table and classifies by filesystem type,
// refined per-platform (on Linux the block device's rotational flag
// separates SSD from HDD).
type systemOracle struct {
	logger common.ILogger
}

func NewSystemOracle(logger common.ILogger) Oracle {
	if logger == nil {
		logger = common.NewNopLogger()
	}
	return &systemOracle{logger: logger}
}

var ramFsTypes = map[string]bool{
	"tmpfs": true, "ramfs": true, "devtmpfs": true, "shm": true,
}

var networkFsTypes = map[string]bool{
	"nfs": true, "nfs4": true, "cifs": true, "smbfs": true, "smb2": true,
	"sshfs": true, "fuse.sshfs": true, "9p": true, "afs": true, "webdav": true,
	"davfs": true, "glusterfs": true, "ceph": true,
}

func (o *systemOracle) Detect(ctx context.Context, path string) (common.DeviceClass, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return common.EDeviceClass.Unknown(), errors.Wrap(err, "resolving path for device detection")
	}

	parts, err := disk.PartitionsWithContext(ctx, true)
	if err != nil {
		return common.EDeviceClass.Unknown(), errors.Wrap(err, "reading mount table")
	}

	// Longest mountpoint prefix wins, so /mnt/nfs/data beats /.
	best := disk.PartitionStat{}
	bestLen := -1
	for _, p := range parts {
		mp := p.Mountpoint
		if mp != "/" && !strings.HasSuffix(mp, string(filepath.Separator)) {
			mp += string(filepath.Separator)
		}
		if strings.HasPrefix(abs+string(filepath.Separator), mp) || abs == p.Mountpoint {
			if len(p.Mountpoint) > bestLen {
				best = p
				bestLen = len(p.Mountpoint)
			}
		}
	}
	if bestLen < 0 {
		return common.EDeviceClass.Unknown(), nil
	}

	fstype := strings.ToLower(best.Fstype)
	switch {
	case ramFsTypes[fstype]:
		return common.EDeviceClass.RamDisk(), nil
	case networkFsTypes[fstype] || strings.HasPrefix(fstype, "nfs"):
		return common.EDeviceClass.Network(), nil
	}

	class := classifyBlockDevice(best.Device)
	if o.logger.ShouldLog(common.ELogLevel.Debug()) {
		o.logger.Log(common.ELogLevel.Debug(),
			"device detection: "+path+" -> "+class.String()+" ("+best.Device+", "+fstype+")")
	}
	return class, nil
}
