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
)

var (
	UnitCount     uint64
	MoveCount     uint64
	BypassCount   uint64
	KillCount     uint64
	RenameCount   uint64
	PushCount     uint64
	ShareCount    uint64
	RollbackCount uint64
	OverlapCount  uint64
)

func count(v *uint64) {
	atomic.AddUint64(v, 1)
}

func countn(v *uint64, n int) {
	atomic.AddUint64(v, uint64(n))
}
