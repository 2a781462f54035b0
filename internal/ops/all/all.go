// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.
// Package all registers every analysis operator with the operator factory registry.
package all

import (
	_ "github.com/mlnoga/fluolight/internal/ops/align"
	_ "github.com/mlnoga/fluolight/internal/ops/fret"
	_ "github.com/mlnoga/fluolight/internal/ops/mask"
	_ "github.com/mlnoga/fluolight/internal/ops/profile"
	_ "github.com/mlnoga/fluolight/internal/ops/redgreen"
	_ "github.com/mlnoga/fluolight/internal/ops/sep"
	_ "github.com/mlnoga/fluolight/internal/ops/split"
)
