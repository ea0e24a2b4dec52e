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
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"

	"github.com/klauspost/cpuid/v2"
)

const (
	_DefaultMaxCycle       = 4096 // latest cycle of the scheduling window
	_DefaultBypassDistance = 3    // cycles a result may wait in its port when bypassed
	_DefaultMaxPushDepth   = 8    // recursion limit of the push-up/push-down operators
)

var (
	MaxCycle       = parseOrDefault("TTASCHED_MAX_CYCLE", _DefaultMaxCycle, 1)
	BypassDistance = parseOrDefault("TTASCHED_BYPASS_DISTANCE", _DefaultBypassDistance, 0)
	MaxPushDepth   = parseOrDefault("TTASCHED_MAX_PUSH_DEPTH", _DefaultMaxPushDepth, 0)
	Workers        = parseOrDefault("TTASCHED_WORKERS", defaultWorkers(), 1)
	Debug          = os.Getenv("TTASCHED_DEBUG") == "on"
)

func defaultWorkers() int {
	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	} else {
		return runtime.NumCPU()
	}
}

func parseOrDefault(key string, def int, min int) int {
	if env := os.Getenv(key); env == "" {
		return def
	} else if val, err := strconv.ParseUint(env, 0, 64); err != nil {
		panic("ttasched: invalid value for " + key)
	} else if ret := int(val); ret < min {
		panic("ttasched: value too small for " + key)
	} else {
		return ret
	}
}

// DefaultLogger discards everything unless TTASCHED_DEBUG=on.
func DefaultLogger() *slog.Logger {
	if Debug {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
}
