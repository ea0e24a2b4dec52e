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

package ttasched

import (
	"fmt"
	"log/slog"

	"github.com/cloudwego/ttasched/internal/opts"
)

// Option is the property setter function for opts.Options.
type Option func(*opts.Options)

// WithCycleWindow sets the first and the last cycle a unit may occupy.
//
// The default window is [0, 4096].
func WithCycleWindow(min int, max int) Option {
	if min < 0 || max < min {
		panic(fmt.Sprintf("ttasched: invalid cycle window: [%d, %d]", min, max))
	} else {
		return func(o *opts.Options) { o.MinCycle, o.MaxCycle = min, max }
	}
}

// WithBypassDistance sets how many cycles a bypassed result may wait in its
// result port before the consumer reads it.
//
// Larger distances find more bypass opportunities, at the cost of holding the
// result ports of the function units longer.
//
// The default value of this option is "3".
func WithBypassDistance(dist int) Option {
	if dist < 0 {
		panic(fmt.Sprintf("ttasched: invalid bypass distance: %d", dist))
	} else {
		return func(o *opts.Options) { o.BypassDistance = dist }
	}
}

// WithMaxPushDepth limits the recursion of the operators that move already
// scheduled moves out of the way.
//
// Set this option to "0" allows pushing direct neighbours only.
//
// The default value of this option is "8".
func WithMaxPushDepth(depth int) Option {
	if depth < 0 {
		panic(fmt.Sprintf("ttasched: invalid push depth: %d", depth))
	} else {
		return func(o *opts.Options) { o.MaxPushDepth = depth }
	}
}

// WithDeadResultElimination controls whether result moves writing registers
// nobody reads are removed. Enabled by default.
func WithDeadResultElimination(v bool) Option {
	return func(o *opts.Options) { o.KillDeadResults = v }
}

// WithRegisterRenaming controls whether values may be moved to free registers
// to break anti and output dependences. Enabled by default, and never applied
// to loop bodies.
func WithRegisterRenaming(v bool) Option {
	return func(o *opts.Options) { o.RenameRegisters = v }
}

// WithOperandSharing controls whether loop invariant operands are written
// once before the loop and kept in their ports. Enabled by default.
func WithOperandSharing(v bool) Option {
	return func(o *opts.Options) { o.OperandSharing = v }
}

// WithTopDown schedules from the first move downwards instead of from the
// last move upwards. Software bypassing is a bottom-up optimization and does
// not take place in this mode.
func WithTopDown(v bool) Option {
	return func(o *opts.Options) { o.TopDown = v }
}

// WithTestOnly makes the scheduler only measure the schedule: the result has
// its length, and the unit is left untouched.
func WithTestOnly(v bool) Option {
	return func(o *opts.Options) { o.TestOnly = v }
}

// WithLogger sets the logger receiving the debug messages of the scheduler.
//
// By default nothing is logged unless `TTASCHED_DEBUG=on`.
func WithLogger(logger *slog.Logger) Option {
	return func(o *opts.Options) { o.Logger = logger }
}

// SetMaxCycle sets the default last cycle of the window for all units from
// now on.
//
// This value can also be configured with the `TTASCHED_MAX_CYCLE` environment
// variable.
//
// Returns the old opts.MaxCycle value.
func SetMaxCycle(cycle int) int {
	cycle, opts.MaxCycle = opts.MaxCycle, cycle
	return cycle
}

// SetBypassDistance sets the default bypass distance from now on.
//
// This value can also be configured with the `TTASCHED_BYPASS_DISTANCE`
// environment variable.
//
// Returns the old opts.BypassDistance value.
func SetBypassDistance(dist int) int {
	dist, opts.BypassDistance = opts.BypassDistance, dist
	return dist
}

// SetMaxPushDepth sets the default push depth from now on.
//
// This value can also be configured with the `TTASCHED_MAX_PUSH_DEPTH`
// environment variable.
//
// Returns the old opts.MaxPushDepth value.
func SetMaxPushDepth(depth int) int {
	depth, opts.MaxPushDepth = opts.MaxPushDepth, depth
	return depth
}

// SetWorkers sets the number of units ScheduleAll works on at the same time.
//
// This value can also be configured with the `TTASCHED_WORKERS` environment
// variable, and defaults to the number of logical cores.
//
// Returns the old opts.Workers value.
func SetWorkers(n int) int {
	pool.SetCap(int32(n))
	n, opts.Workers = opts.Workers, n
	return n
}
