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
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/loonghao/ferrocp/common"
)

// byteSizeValue is a pflag.Value accepting plain bytes or a K/M/G suffix
// (binary units), e.g. --buffer-size 512K.
type byteSizeValue int

var _ pflag.Value = (*byteSizeValue)(nil)

func (b *byteSizeValue) String() string {
	v := int(*b)
	switch {
	case v == 0:
		return "auto"
	case v%common.GiB == 0:
		return fmt.Sprintf("%dG", v/common.GiB)
	case v%common.MiB == 0:
		return fmt.Sprintf("%dM", v/common.MiB)
	case v%common.KiB == 0:
		return fmt.Sprintf("%dK", v/common.KiB)
	default:
		return strconv.Itoa(v)
	}
}

func (b *byteSizeValue) Set(s string) error {
	multiplier := 1
	upper := strings.ToUpper(strings.TrimSpace(s))
	switch {
	case strings.HasSuffix(upper, "G"):
		multiplier = common.GiB
		upper = strings.TrimSuffix(upper, "G")
	case strings.HasSuffix(upper, "M"):
		multiplier = common.MiB
		upper = strings.TrimSuffix(upper, "M")
	case strings.HasSuffix(upper, "K"):
		multiplier = common.KiB
		upper = strings.TrimSuffix(upper, "K")
	}
	n, err := strconv.Atoi(upper)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid byte size %q", s)
	}
	*b = byteSizeValue(n * multiplier)
	return nil
}

func (b *byteSizeValue) Type() string { return "byteSize" }
