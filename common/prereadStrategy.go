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

// PreReadStrategy describes how far ahead of the consumer the pre-read
// buffer fetches. The sizes are contracts, empirically tuned per device
// class; 512 KiB is the measured SSD optimum and adaptation converges back
// to it whenever throughput is healthy.
type PreReadStrategy struct {
	Device   DeviceClass
	Size     int
	Disabled bool
}

// The tuned per-device pre-read sizes.
const (
	SSDPreReadDefault    = 512 * KiB
	SSDPreReadAggressive = 1 * MiB
	SSDPreReadMin        = 256 * KiB
	SSDPreReadMax        = 4 * MiB

	HDDPreReadDefault    = 64 * KiB
	HDDPreReadAggressive = 256 * KiB
	HDDPreReadMin        = 32 * KiB
	HDDPreReadMax        = 512 * KiB

	NetworkPreReadDefault    = 8 * KiB
	NetworkPreReadAggressive = 32 * KiB
	NetworkPreReadMin        = 4 * KiB
	NetworkPreReadMax        = 64 * KiB

	RamDiskPreReadDefault    = 2 * MiB
	RamDiskPreReadAggressive = 8 * MiB
)

func DisabledPreRead() PreReadStrategy {
	return PreReadStrategy{Disabled: true}
}

func DefaultPreReadStrategy(device DeviceClass) PreReadStrategy {
	switch device {
	case EDeviceClass.SSD():
		return PreReadStrategy{Device: device, Size: SSDPreReadDefault}
	case EDeviceClass.HDD():
		return PreReadStrategy{Device: device, Size: HDDPreReadDefault}
	case EDeviceClass.Network():
		return PreReadStrategy{Device: device, Size: NetworkPreReadDefault}
	case EDeviceClass.RamDisk():
		return PreReadStrategy{Device: device, Size: RamDiskPreReadDefault}
	default:
		return DisabledPreRead()
	}
}

func AggressivePreReadStrategy(device DeviceClass) PreReadStrategy {
	s := DefaultPreReadStrategy(device)
	switch device {
	case EDeviceClass.SSD():
		s.Size = SSDPreReadAggressive
	case EDeviceClass.HDD():
		s.Size = HDDPreReadAggressive
	case EDeviceClass.Network():
		s.Size = NetworkPreReadAggressive
	case EDeviceClass.RamDisk():
		s.Size = RamDiskPreReadAggressive
	}
	return s
}

// Bounds returns the allowed adaptation range for the strategy's device.
// RamDisk has no tuned bounds; its default and aggressive sizes act as the
// range so that adaptation stays finite.
func (s PreReadStrategy) Bounds() (min, max int) {
	switch s.Device {
	case EDeviceClass.SSD():
		return SSDPreReadMin, SSDPreReadMax
	case EDeviceClass.HDD():
		return HDDPreReadMin, HDDPreReadMax
	case EDeviceClass.Network():
		return NetworkPreReadMin, NetworkPreReadMax
	case EDeviceClass.RamDisk():
		return RamDiskPreReadDefault, RamDiskPreReadAggressive
	default:
		return 0, 0
	}
}

// Clamp bounds Size to the device range.
func (s PreReadStrategy) Clamp() PreReadStrategy {
	min, max := s.Bounds()
	if min == 0 && max == 0 {
		return s
	}
	if s.Size < min {
		s.Size = min
	}
	if s.Size > max {
		s.Size = max
	}
	return s
}
