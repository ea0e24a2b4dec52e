/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package debug

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"

	"github.com/cloudwego/ttasched/internal/bf"
)

var dumper = spew.ConfigState{
	Indent:                  "    ",
	SortKeys:                true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
}

// A Stats records statistics about the scheduler.
type Stats struct {
	Units         int
	Moves         int
	Rollbacks     int
	Overlapped    int
	Optimizations OptStats
}

// An OptStats records how often each local optimization made it into a
// committed schedule. Pushes are counted when they happen.
type OptStats struct {
	Bypass int
	Kill   int
	Rename int
	Push   int
	Share  int
}

// GetStats returns statistics of the scheduler.
func GetStats() Stats {
	return Stats{
		Units:      load(&bf.UnitCount),
		Moves:      load(&bf.MoveCount),
		Rollbacks:  load(&bf.RollbackCount),
		Overlapped: load(&bf.OverlapCount),
		Optimizations: OptStats{
			Bypass: load(&bf.BypassCount),
			Kill:   load(&bf.KillCount),
			Rename: load(&bf.RenameCount),
			Push:   load(&bf.PushCount),
			Share:  load(&bf.ShareCount),
		},
	}
}

func load(v *uint64) int {
	return int(atomic.LoadUint64(v))
}

// Listing renders a scheduled unit, its prolog first.
func Listing(r *bf.Result) string {
	var sb strings.Builder
	if len(r.Prolog) != 0 {
		sb.WriteString("prolog:\n")
		for _, ins := range r.Prolog {
			sb.WriteString("  " + ins.String() + "\n")
		}
	}
	if r.II > 0 {
		fmt.Fprintf(&sb, "%s (ii=%d):\n", r.Unit.Name, r.II)
	} else {
		fmt.Fprintf(&sb, "%s (%d cycles):\n", r.Unit.Name, r.Length)
	}
	for _, ins := range r.Instructions {
		sb.WriteString("  " + ins.String() + "\n")
	}
	return sb.String()
}

// Dump renders what the optimizations did to a scheduled unit, with map keys
// sorted so that the output is stable.
func Dump(r *bf.Result) string {
	return dumper.Sdump(struct {
		Length   int
		II       int
		Killed   []int
		Kept     []int
		Bypassed map[int]int
		Renamed  map[int]string
		Shares   map[int]string
		Stages   map[int]int
	}{
		Length:   r.Length,
		II:       r.II,
		Killed:   ints(r.Killed),
		Kept:     ints(r.Kept),
		Bypassed: bypassed(r),
		Renamed:  renamed(r),
		Shares:   shares(r),
		Stages:   stages(r),
	})
}

func ints[T ~int](v []T) []int {
	ret := make([]int, len(v))
	for i, x := range v {
		ret[i] = int(x)
	}
	return ret
}

func bypassed(r *bf.Result) map[int]int {
	ret := make(map[int]int, len(r.Bypassed))
	for k, v := range r.Bypassed {
		ret[int(k)] = int(v)
	}
	return ret
}

func renamed(r *bf.Result) map[int]string {
	ret := make(map[int]string, len(r.Renamed))
	for k, v := range r.Renamed {
		ret[int(k)] = v.String()
	}
	return ret
}

func shares(r *bf.Result) map[int]string {
	ret := make(map[int]string, len(r.Shares))
	for k, v := range r.Shares {
		ret[int(k)] = v.String()
	}
	return ret
}

func stages(r *bf.Result) map[int]int {
	ret := make(map[int]int, len(r.Stages))
	for k, v := range r.Stages {
		ret[int(k)] = v
	}
	return ret
}
