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

package rowbuffer

import (
	"errors"
	"fmt"
	"log"
)

// ErrInvalidRow is returned (wrapped) by InsertRows when a row is
// malformed: an empty column name, an unknown column, or a value that
// cannot be coerced to its column's type.
var ErrInvalidRow = errors.New("invalid row")

// ErrUnknownDataType is returned (wrapped) by SetupSchema when a
// column's (logical, physical) type pair is not in the supported
// matrix. InsertRows never returns it: every column plan is resolved
// at SetupSchema time.
var ErrUnknownDataType = errors.New("unknown data type")

// invalidRowf wraps ErrInvalidRow with context and logs the failure
// against the owning channel's fully qualified name, per the diagnostic
// policy every error path in this package follows.
func invalidRowf(logger *log.Logger, fqn string, format string, args ...any) error {
	err := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidRow)
	logger.Printf("rowbuffer: %s: %v", fqn, err)
	return err
}

