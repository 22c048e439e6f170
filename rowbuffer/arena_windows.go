// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build windows

package rowbuffer

// windows.GetSystemInfo's dwPageSize is always 4KiB on every
// architecture Go supports; golang.org/x/sys/windows does not
// presently export it as a simple accessor, so it is hardcoded here
// the way vm/malloc_windows.go hardcodes vmUse/vmReserve instead of
// querying the platform.
func discoverPageSize() int {
	return 1 << 12
}
