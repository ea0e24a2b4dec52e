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

package bf

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/ttasched/internal/ddg"
	"github.com/cloudwego/ttasched/internal/loop"
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

// loop:
//
//	r1 = r1 + 1
//	r2 = r5 * r2
//	b0 = r1 < 8
//	b0 ? jump loop
func loopUnit(nbus int) *prog.Unit {
	b := prog.NewBuilder(mach.Generic(nbus), "loop")
	b.Op("add", []prog.Terminal{prog.R(0, 1), prog.Imm(1)}, []prog.Terminal{prog.R(0, 1)})
	b.Op("mul", []prog.Terminal{prog.R(0, 5), prog.R(0, 2)}, []prog.Terminal{prog.R(0, 2)})
	b.Op("lt", []prog.Terminal{prog.R(0, 1), prog.Imm(8)}, []prog.Terminal{prog.R(1, 0)})
	b.Op("jump", []prog.Terminal{prog.Imm(0)}, nil)
	b.Guarded(9, reg(1, 0), false)
	return b.LiveOut().Build()
}

func counter(init int64) *loop.Induction {
	return &loop.Induction{Counter: reg(0, 1), Init: &init}
}

func ids(ins []prog.Instruction) []prog.MoveId {
	var ret []prog.MoveId
	for _, v := range ins {
		for _, mv := range v.Moves {
			ret = append(ret, mv.Id)
		}
	}
	return ret
}

func TestScheduleLoop_Pipelined(t *testing.T) {
	u := loopUnit(4)
	overlaps := atomic.LoadUint64(&OverlapCount)
	ret, err := ScheduleLoop(u, counter(4), options(4096))
	require.NoError(t, err)
	assert.Equal(t, loop.TripKnown, ret.Loop.Kind)
	assert.Equal(t, 4, ret.Loop.TripCount)
	assert.Equal(t, 4, ret.II)
	assert.Equal(t, 4, ret.Length)
	assert.Greater(t, atomic.LoadUint64(&OverlapCount), overlaps)

	/* r5 is written into the multiplier once, before the loop */
	assert.Equal(t, OperandShared, ret.Shares[3])
	assert.Equal(t, OperandNoPort, ret.Shares[1])
	assert.Equal(t, OperandNoPort, ret.Shares[9])
	assert.Equal(t, OperandNotInvariant, ret.Shares[0])
	assert.Equal(t, []prog.MoveId{3}, ret.Kept)
	assert.Empty(t, ret.Killed)

	/* the counter update runs one iteration ahead */
	assert.Equal(t, []int{3, 3, 0, prog.Unscheduled, 0, 3, 1, 1, 2, 3}, cycles(u))
	assert.Equal(t, 0, ret.Stages[0])
	assert.Equal(t, 0, ret.Stages[1])
	assert.Equal(t, 1, ret.Stages[2])
	assert.Equal(t, 1, ret.Stages[9])
	assert.NotContains(t, ret.Stages, prog.MoveId(3))
	checkBuses(t, ret.Instructions)

	/* the prolog holds the first stage and the kept operand */
	require.Len(t, ret.Prolog, 1)
	assert.Equal(t, 0, ret.Prolog[0].Cycle)
	assert.ElementsMatch(t, []prog.MoveId{0, 1, 3}, ids(ret.Prolog))
	for _, mv := range ret.Prolog[0].Moves {
		assert.NotSame(t, u.Move(mv.Id), mv)
	}
}

func TestScheduleLoop_WithoutSharing(t *testing.T) {
	u := loopUnit(4)
	o := options(4096)
	o.OperandSharing = false
	ret, err := ScheduleLoop(u, counter(4), o)
	require.NoError(t, err)
	assert.Equal(t, 4, ret.II)
	assert.Empty(t, ret.Shares)
	assert.Empty(t, ret.Kept)
	assert.Equal(t, 0, u.Move(3).Cycle)
	checkBuses(t, ret.Instructions)
}

func TestScheduleLoop_UnknownTrips(t *testing.T) {
	u := loopUnit(4)
	ret, err := ScheduleLoop(u, nil, options(4096))
	require.NoError(t, err)
	assert.Equal(t, loop.TripUnknown, ret.Loop.Kind)
	assert.Equal(t, 4, ret.II)
}

func TestScheduleLoop_SingleTrip(t *testing.T) {
	u := loopUnit(4)
	ret, err := ScheduleLoop(u, counter(7), options(4096))
	require.NoError(t, err)
	assert.Equal(t, 1, ret.Loop.TripCount)
	assert.Equal(t, 0, ret.II)
	assert.Equal(t, 5, ret.Length)
	assert.Empty(t, ret.Stages)
	assert.Equal(t, []prog.MoveId{3}, ret.Kept)
	assert.Equal(t, []prog.MoveId{3}, ids(ret.Prolog))
	assert.Equal(t, 0, u.Move(0).Cycle)
	assert.Equal(t, 4, u.Move(9).Cycle)
}

func TestScheduleLoop_TestOnly(t *testing.T) {
	u := loopUnit(4)
	before := snapshot(u)
	o := options(4096)
	o.TestOnly = true
	ret, err := ScheduleLoop(u, counter(4), o)
	require.NoError(t, err)
	assert.Equal(t, 4, ret.II)
	assert.Nil(t, ret.Prolog)
	assert.Nil(t, ret.Instructions)
	assert.Equal(t, before, snapshot(u))
}

func TestScheduleLoop_Plain(t *testing.T) {
	u := loopUnit(4)
	g := ddg.Build(u, true)
	info := loop.Analyze(g, counter(4))
	ret, err := scheduleLoopAt(g, info, 0, options(4096), true)
	require.NoError(t, err)
	assert.Equal(t, 5, ret.Length)
	assert.Equal(t, 3, minII(g))

	/* the recurrence through r2 needs four cycles */
	_, err = scheduleLoopAt(g, info, 3, options(4096), true)
	require.Error(t, err)
	for _, mv := range u.Moves {
		assert.False(t, mv.IsScheduled())
	}
	assert.Len(t, g.ActiveNodes(), 10)
}

func TestOverlappable(t *testing.T) {
	assert.True(t, overlappable(&loop.Result{Kind: loop.TripUnknown}))
	assert.True(t, overlappable(&loop.Result{Kind: loop.TripRuntime}))
	assert.True(t, overlappable(&loop.Result{Kind: loop.TripKnown, TripCount: 2}))
	assert.False(t, overlappable(&loop.Result{Kind: loop.TripKnown, TripCount: 1}))
}
