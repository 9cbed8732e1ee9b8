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

package common

import (
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

const (
	KiB = 1024
	MiB = 1024 * KiB
	GiB = 1024 * MiB
)

const DEFAULT_FILE_PERM = 0644

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EDeviceClass = DeviceClass(0)

// DeviceClass is a coarse classification of the storage backing a path.
// It is a tuning hint only; correctness never depends on it.
type DeviceClass uint8

func (DeviceClass) Unknown() DeviceClass { return DeviceClass(0) }
func (DeviceClass) SSD() DeviceClass     { return DeviceClass(1) }
func (DeviceClass) HDD() DeviceClass     { return DeviceClass(2) }
func (DeviceClass) Network() DeviceClass { return DeviceClass(3) }
func (DeviceClass) RamDisk() DeviceClass { return DeviceClass(4) }

func (d DeviceClass) String() string {
	return enum.StringInt(d, reflect.TypeOf(d))
}

func (d *DeviceClass) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(d), s, true, true)
	if err == nil {
		*d = val.(DeviceClass)
	}
	return err
}

// DefaultBufferSize returns the capacity an AdaptiveBuffer starts with for
// this device class. Fast local media get big buffers, network mounts small ones.
func (d DeviceClass) DefaultBufferSize() int {
	switch d {
	case EDeviceClass.SSD():
		return 1 * MiB
	case EDeviceClass.RamDisk():
		return 4 * MiB
	case EDeviceClass.HDD():
		return 256 * KiB
	case EDeviceClass.Network():
		return 128 * KiB
	default:
		return 512 * KiB
	}
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EEngineType = EngineType(0)

// EngineType identifies one of the four copy implementations. The set is
// closed; the selector's dispatch table is exhaustive over it.
type EngineType uint8

func (EngineType) Buffered() EngineType  { return EngineType(0) }
func (EngineType) MicroFile() EngineType { return EngineType(1) }
func (EngineType) ZeroCopy() EngineType  { return EngineType(2) }
func (EngineType) Parallel() EngineType  { return EngineType(3) }

func (e EngineType) String() string {
	return enum.StringInt(e, reflect.TypeOf(e))
}

func (e *EngineType) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(e), s, true, true)
	if err == nil {
		*e = val.(EngineType)
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var EZeroCopyMethod = ZeroCopyMethod(0)

// ZeroCopyMethod records which platform offload actually carried a copy.
type ZeroCopyMethod uint8

func (ZeroCopyMethod) None() ZeroCopyMethod           { return ZeroCopyMethod(0) }
func (ZeroCopyMethod) CopyFileRange() ZeroCopyMethod  { return ZeroCopyMethod(1) }
func (ZeroCopyMethod) Reflink() ZeroCopyMethod        { return ZeroCopyMethod(2) }
func (ZeroCopyMethod) RefsCoW() ZeroCopyMethod        { return ZeroCopyMethod(3) }
func (ZeroCopyMethod) ClonefileMacOS() ZeroCopyMethod { return ZeroCopyMethod(4) }
func (ZeroCopyMethod) Fallback() ZeroCopyMethod       { return ZeroCopyMethod(5) }

func (m ZeroCopyMethod) String() string {
	return enum.StringInt(m, reflect.TypeOf(m))
}

func (m *ZeroCopyMethod) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(m), s, true, true)
	if err == nil {
		*m = val.(ZeroCopyMethod)
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ESymlinkPolicy = SymlinkPolicy(0)

// SymlinkPolicy controls what a tree copy does when it meets a symlink.
type SymlinkPolicy uint8

func (SymlinkPolicy) Skip() SymlinkPolicy     { return SymlinkPolicy(0) }
func (SymlinkPolicy) Preserve() SymlinkPolicy { return SymlinkPolicy(1) }
func (SymlinkPolicy) Follow() SymlinkPolicy   { return SymlinkPolicy(2) }

func (p SymlinkPolicy) String() string {
	return enum.StringInt(p, reflect.TypeOf(p))
}

func (p *SymlinkPolicy) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(p), s, true, true)
	if err == nil {
		*p = val.(SymlinkPolicy)
	}
	return err
}
