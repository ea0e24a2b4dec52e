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

package opts

import (
	"log/slog"
)

type Options struct {
	MinCycle        int
	MaxCycle        int
	BypassDistance  int
	MaxPushDepth    int
	KillDeadResults bool
	RenameRegisters bool
	OperandSharing  bool
	TopDown         bool
	TestOnly        bool
	Logger          *slog.Logger
}

// CanBypass reports whether a result may stay in its port for dist cycles.
func (self *Options) CanBypass(dist int) bool {
	return dist <= self.BypassDistance
}

// Window returns the number of cycles available to a unit.
func (self *Options) Window() int {
	return self.MaxCycle - self.MinCycle + 1
}

func (self *Options) Log() *slog.Logger {
	if self.Logger == nil {
		self.Logger = DefaultLogger()
	}
	return self.Logger
}

func GetDefaultOptions() Options {
	return Options{
		MinCycle:        0,
		MaxCycle:        MaxCycle,
		BypassDistance:  BypassDistance,
		MaxPushDepth:    MaxPushDepth,
		KillDeadResults: true,
		RenameRegisters: true,
		OperandSharing:  true,
	}
}
