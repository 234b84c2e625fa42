/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
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

//go:build linux || darwin

package health

import "golang.org/x/sys/unix"

// DiskUsage returns a function reporting how full the filesystem holding
// path is, in percent. It reports 0 when the filesystem cannot be read.
func DiskUsage(path string) func() float64 {
	return func() float64 {
		var st unix.Statfs_t
		if err := unix.Statfs(path, &st); err != nil || st.Blocks == 0 {
			return 0
		}
		total := float64(st.Blocks) * float64(st.Bsize)
		free := float64(st.Bavail) * float64(st.Bsize)
		return (total - free) / total * 100
	}
}
