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

// Package ttasched schedules the moves of a transport triggered architecture
// program onto the buses and ports of a machine, one basic block or loop body
// at a time.
package ttasched

import (
	"errors"
	"sync"

	"github.com/bytedance/gopkg/util/gopool"

	"github.com/cloudwego/ttasched/internal/bf"
	"github.com/cloudwego/ttasched/internal/loop"
	"github.com/cloudwego/ttasched/internal/opts"
	"github.com/cloudwego/ttasched/prog"
)

type (
	Result    = bf.Result
	Induction = loop.Induction
	ShareKind = bf.ShareKind
)

const (
	OperandShared       = bf.OperandShared
	OperandNotShared    = bf.OperandNotShared
	OperandNoPort       = bf.OperandNoPort
	OperandNotInvariant = bf.OperandNotInvariant
)

// PrologCycleBias is added to the cycles of prolog moves while a loop is
// being scheduled, keeping them apart from the cycles of the body.
const PrologCycleBias = bf.PrologCycleBias

// Schedule schedules a straight-line unit. On success the moves carry their
// cycle and bus, operations are bound to their units, and the result holds
// the instruction stream. On failure the unit is left exactly as it was.
func Schedule(u *prog.Unit, options ...Option) (*Result, error) {
	o := makeOptions(options)
	if err := validate(u); err != nil {
		return nil, err
	}
	ret, err := bf.ScheduleBlock(u, &o)
	return ret, convert(err)
}

// ScheduleLoop schedules the body of a loop whose back edge is the last jump of
// u. ind describes the loop counter and may be nil, in which case the trip
// count is unknown and iterations are still overlapped when that is safe.
func ScheduleLoop(u *prog.Unit, ind *Induction, options ...Option) (*Result, error) {
	o := makeOptions(options)
	if err := validate(u); err != nil {
		return nil, err
	}
	ret, err := bf.ScheduleLoop(u, ind, &o)
	return ret, convert(err)
}

// pool runs the units of ScheduleAll, its capacity follows SetWorkers.
var pool = gopool.NewPool("ttasched", int32(opts.Workers), gopool.NewConfig())

// ScheduleAll schedules independent straight-line units concurrently. The
// results keep the order of units, and the error of the first unit that
// failed is returned along with them.
func ScheduleAll(units []*prog.Unit, options ...Option) ([]*Result, error) {
	wg := sync.WaitGroup{}
	ret := make([]*Result, len(units))
	errs := make([]error, len(units))

	/* one task per unit */
	for i, u := range units {
		i, u := i, u
		wg.Add(1)
		pool.Go(func() {
			defer wg.Done()
			defer func() {
				if v := recover(); v != nil {
					ret[i], errs[i] = nil, epanic(u, v)
				}
			}()
			ret[i], errs[i] = Schedule(u, options...)
		})
	}

	/* the first error wins */
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

func makeOptions(options []Option) opts.Options {
	o := opts.GetDefaultOptions()
	for _, fn := range options {
		fn(&o)
	}
	return o
}

func convert(err error) error {
	var f *bf.Failure
	if err == nil {
		return nil
	} else if errors.As(err, &f) {
		return SchedulingError{Unit: f.Unit, Move: int(f.Move), Reason: f.Reason}
	} else {
		return err
	}
}
