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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudwego/ttasched/internal/bf"
	"github.com/cloudwego/ttasched/internal/opts"
	"github.com/cloudwego/ttasched/mach"
	"github.com/cloudwego/ttasched/prog"
)

func chain() *prog.Unit {
	b := prog.NewBuilder(mach.Generic(2), "chain")
	b.Op("add", []prog.Terminal{prog.R(0, 1), prog.R(0, 2)}, []prog.Terminal{prog.R(0, 3)})
	b.Op("add", []prog.Terminal{prog.R(0, 3), prog.Imm(1)}, []prog.Terminal{prog.R(0, 4)})
	return b.LiveOut(prog.Reg{Index: 4}).Build()
}

func TestStats(t *testing.T) {
	o := opts.GetDefaultOptions()
	o.MaxCycle = 4096
	old := GetStats()
	_, err := bf.ScheduleBlock(chain(), &o)
	require.NoError(t, err)
	st := GetStats()
	assert.Equal(t, 1, st.Units-old.Units)
	assert.Equal(t, 5, st.Moves-old.Moves)
	assert.Equal(t, 1, st.Optimizations.Bypass-old.Optimizations.Bypass)
	assert.Equal(t, 1, st.Optimizations.Kill-old.Optimizations.Kill)
	assert.Equal(t, old.Overlapped, st.Overlapped)
}

func TestListing(t *testing.T) {
	o := opts.GetDefaultOptions()
	o.MaxCycle = 4096
	ret, err := bf.ScheduleBlock(chain(), &o)
	require.NoError(t, err)
	s := Listing(ret)
	println(s)
	lines := strings.Split(strings.TrimSpace(s), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "chain (3 cycles):", lines[0])
	assert.True(t, strings.HasPrefix(strings.TrimSpace(lines[1]), "0: "))
	assert.NotContains(t, s, "prolog:")

	/* loop bodies show their prolog and interval */
	ret.II = 2
	ret.Prolog = ret.Instructions[:1]
	s = Listing(ret)
	assert.True(t, strings.HasPrefix(s, "prolog:\n"))
	assert.Contains(t, s, "chain (ii=2):\n")
}

func TestDump(t *testing.T) {
	o := opts.GetDefaultOptions()
	o.MaxCycle = 4096
	ret, err := bf.ScheduleBlock(chain(), &o)
	require.NoError(t, err)
	s := Dump(ret)
	assert.Contains(t, s, "Length: (int) 3")
	assert.Contains(t, s, "(int) 3: (int) 2")
	assert.NotContains(t, s, "0x")
}
