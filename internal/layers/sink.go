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
package layers

import (
	"fmt"

	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/plot"
)

// Opacity of newly created mask layers
const maskOpacity = 0.5

// Writes operator results into a layer store, and plots into a plot host
type Sink struct {
	Store           Store
	Plots           plot.Host // optional, plots are dropped if nil
	DefaultColormap string    // for image results without a colormap of their own
	Produced        []string  // names of the layers and plots written, in order
}

func NewSink(s Store, plots plot.Host) *Sink {
	return &Sink{Store: s, Plots: plots, DefaultColormap: ops.ColormapGray}
}

// Handles one result. Suitable as the onResult callback of ops.Dispatch
func (s *Sink) Accept(r *ops.Result) error {
	if r.Kind == ops.KindPlot {
		if r.Plot == nil {
			return fmt.Errorf("plot result %s without figure", r.Name)
		}
		s.Produced = append(s.Produced, r.Name)
		if s.Plots == nil {
			return nil
		}
		return s.Plots.Show(r.Name, r.Plot)
	}
	if r.Image == nil {
		return fmt.Errorf("%s result %s without image", r.Kind, r.Name)
	}
	s.Store.Put(s.layerFor(r))
	s.Produced = append(s.Produced, r.Name)
	return nil
}

// Creates a layer with the default display settings for the result kind
func (s *Sink) layerFor(r *ops.Result) *Layer {
	l := &Layer{Name: r.Name, Kind: r.Kind, Image: r.Image, Opacity: 1}
	switch r.Kind {
	case ops.KindLabels:
		l.Contour = 1
	case ops.KindMask:
		l.Colormap = ops.ColormapGray
		l.Opacity = maskOpacity
	default:
		l.Colormap = r.Colormap
		if l.Colormap == "" {
			l.Colormap = s.DefaultColormap
		}
		l.ContrastLimits = r.ContrastLimits
	}
	return l
}

// Resolves layer names into operator inputs
func Resolve(s Store, images, labels []string) (*ops.Inputs, error) {
	in := &ops.Inputs{}
	for _, name := range images {
		l, ok := s.Get(name)
		if !ok {
			return nil, fmt.Errorf("no layer named '%s'", name)
		}
		in.Images = append(in.Images, l.Image)
	}
	for _, name := range labels {
		l, ok := s.Get(name)
		if !ok {
			return nil, fmt.Errorf("no layer named '%s'", name)
		}
		if l.Kind == ops.KindImage {
			return nil, fmt.Errorf("layer '%s' is an image, not labels", name)
		}
		in.Labels = append(in.Labels, l.Image)
	}
	return in, nil
}
