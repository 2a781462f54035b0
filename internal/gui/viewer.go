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
// Package gui is the desktop viewer: a layer list with a frame-by-frame preview,
// and one parameter form per analysis operator.
package gui

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/plot"
	"github.com/mlnoga/fluolight/internal/render"
	"github.com/sirupsen/logrus"
)

const appID = "io.github.mlnoga.fluolight"

// Delivers results on the fyne UI goroutine, waiting until they are handled
type fyneDeliverer struct{}

func (fyneDeliverer) Deliver(fn func()) { fyne.DoAndWait(fn) }

// Shows plots in one window per panel, replacing the figure on repeated calls
type windowHost struct {
	app     fyne.App
	windows map[string]fyne.Window
	images  map[string]*canvas.Image
}

var _ plot.Host = (*windowHost)(nil) // this type is a plot Host

func (h *windowHost) Show(panel string, f *plot.Figure) error {
	data, err := plot.Render(f, plot.DefaultWidth, plot.DefaultHeight)
	if err != nil {
		return err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if c, ok := h.images[panel]; ok {
		c.Image = img
		c.Refresh()
		h.windows[panel].Show()
		return nil
	}
	c := canvas.NewImageFromImage(img)
	c.FillMode = canvas.ImageFillContain
	c.SetMinSize(fyne.NewSize(plot.DefaultWidth, plot.DefaultHeight))
	w := h.app.NewWindow(panel)
	w.SetContent(c)
	w.SetOnClosed(func() {
		delete(h.windows, panel)
		delete(h.images, panel)
	})
	h.windows[panel], h.images[panel] = w, c
	w.Show()
	return nil
}

// Logrus hook showing status notifications in a label
type statusHook struct {
	label *widget.Label
}

func (h *statusHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *statusHook) Fire(e *logrus.Entry) error {
	msg := e.Message
	if e.Level <= logrus.ErrorLevel {
		msg = "Error: " + msg
	}
	fyne.Do(func() { h.label.SetText(msg) })
	return nil
}

// The main window
type Viewer struct {
	app      fyne.App
	win      fyne.Window
	store    layers.Store
	c        *ops.Context
	sink     *layers.Sink
	forms    []*formView
	names    []string
	selected string
	list     *widget.List
	frame    *widget.Slider
	frameNo  *widget.Label
	preview  *canvas.Image
	status   *widget.Label
}

func NewViewer(store layers.Store, c *ops.Context, colormap string) *Viewer {
	a := app.NewWithID(appID)
	v := &Viewer{app: a, win: a.NewWindow("fluolight"), store: store, c: c}
	plots := &windowHost{app: a, windows: map[string]fyne.Window{}, images: map[string]*canvas.Image{}}
	v.sink = layers.NewSink(store, plots)
	if colormap != "" {
		v.sink.DefaultColormap = colormap
	}

	v.status = widget.NewLabel("Ready")
	c.Notify.AddHook(&statusHook{label: v.status})

	v.list = widget.NewList(
		func() int { return len(v.names) },
		func() fyne.CanvasObject { return widget.NewLabel("layer") },
		func(id widget.ListItemID, o fyne.CanvasObject) {
			name := v.names[id]
			text := name
			if l, ok := v.store.Get(name); ok {
				text = fmt.Sprintf("%s (%s)", name, l.Kind)
			}
			o.(*widget.Label).SetText(text)
		},
	)
	v.list.OnSelected = func(id widget.ListItemID) { v.selectLayer(v.names[id]) }

	v.frame = widget.NewSlider(0, 0)
	v.frameNo = widget.NewLabel("0")
	v.frame.OnChanged = func(float64) { v.showPreview() }
	v.preview = canvas.NewImageFromImage(image.NewGray(image.Rect(0, 0, 1, 1)))
	v.preview.FillMode = canvas.ImageFillContain
	v.preview.ScaleMode = canvas.ImageScalePixels
	v.preview.SetMinSize(fyne.NewSize(512, 512))

	frameBar := container.NewBorder(nil, nil, widget.NewLabel("Frame"), v.frameNo, v.frame)
	right := container.NewBorder(nil, frameBar, nil, nil, v.preview)
	split := container.NewHSplit(v.list, right)
	split.Offset = 0.25
	v.win.SetContent(container.NewBorder(nil, v.status, nil, nil, split))
	v.win.SetMainMenu(v.mainMenu())
	v.win.Resize(fyne.NewSize(1100, 750))

	store.Subscribe(func(layers.Event) { fyne.Do(v.refreshLayers) })
	v.names = store.Names()
	return v
}

// Shows the window and runs the UI loop until the window is closed
func (v *Viewer) ShowAndRun() {
	v.win.ShowAndRun()
}

func (v *Viewer) mainMenu() *fyne.MainMenu {
	file := fyne.NewMenu("File",
		fyne.NewMenuItem("Open image...", func() { v.openLayer(ops.KindImage) }),
		fyne.NewMenuItem("Open labels...", func() { v.openLayer(ops.KindLabels) }),
		fyne.NewMenuItem("Save layer...", v.saveLayer),
		fyne.NewMenuItem("Remove layer", func() {
			if v.selected != "" {
				v.store.Remove(v.selected)
			}
		}),
	)
	var items []*fyne.MenuItem
	for _, form := range Forms {
		form := form
		items = append(items, fyne.NewMenuItem(form.Title+"...", func() { v.showForm(form) }))
	}
	return fyne.NewMainMenu(file, fyne.NewMenu("Analysis", items...))
}

func (v *Viewer) refreshLayers() {
	v.names = v.store.Names()
	v.list.Refresh()
	for _, f := range v.forms {
		f.refreshLayers(v.store)
	}
	if _, ok := v.store.Get(v.selected); ok {
		v.showPreview()
	}
}

func (v *Viewer) selectLayer(name string) {
	v.selected = name
	l, ok := v.store.Get(name)
	if !ok {
		return
	}
	numFrames := l.Image.Frames()
	if l.Image.NDim() < 3 {
		numFrames = 1
	}
	v.frame.Max = float64(numFrames - 1)
	if v.frame.Value > v.frame.Max {
		v.frame.Value = 0
	}
	v.frame.Refresh()
	v.showPreview()
}

func (v *Viewer) showPreview() {
	l, ok := v.store.Get(v.selected)
	if !ok {
		return
	}
	frame := int32(v.frame.Value)
	if l.Image.NDim() < 3 {
		frame = 0
	}
	v.frameNo.SetText(fmt.Sprintf("%d", frame))
	img, err := render.Preview(l.Image, render.Options{
		Frame:    frame,
		Colormap: l.Colormap,
		Limits:   l.ContrastLimits,
		Labels:   l.Kind == ops.KindLabels,
		MaxSize:  1024,
	})
	if err != nil {
		v.status.SetText(err.Error())
		return
	}
	v.preview.Image = img
	v.preview.Refresh()
}

func (v *Viewer) openLayer(kind ops.Kind) {
	dialog.ShowFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, v.win)
			return
		}
		if r == nil {
			return // cancelled
		}
		fileName := r.URI().Path()
		r.Close()
		l, err := layers.Load([]string{fileName}, "", kind, len(v.store.Names())+1, v.c)
		if err != nil {
			dialog.ShowError(err, v.win)
			return
		}
		v.store.Put(l)
	}, v.win)
}

func (v *Viewer) saveLayer() {
	l, ok := v.store.Get(v.selected)
	if !ok {
		dialog.ShowInformation("Save layer", "Select a layer first", v.win)
		return
	}
	save := dialog.NewFileSave(func(w fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, v.win)
			return
		}
		if w == nil {
			return // cancelled
		}
		fileName := w.URI().Path()
		w.Close()
		if err := layers.Save(l, fileName); err != nil {
			dialog.ShowError(err, v.win)
		}
	}, v.win)
	save.SetFileName(l.Name + ".fits")
	save.Show()
}

// Opens the parameter window of an operator
func (v *Viewer) showForm(form *Form) {
	fv, err := newFormView(form, v.store)
	if err != nil {
		dialog.ShowError(err, v.win)
		return
	}
	v.forms = append(v.forms, fv)
	w := v.app.NewWindow(form.Title)
	run := widget.NewButton("Run", func() { v.run(fv, w) })
	w.SetContent(container.NewBorder(nil, run, nil, nil, container.NewVScroll(fv.content)))
	w.SetOnClosed(func() {
		for i, f := range v.forms {
			if f == fv {
				v.forms = append(v.forms[:i], v.forms[i+1:]...)
				break
			}
		}
	})
	w.Resize(fyne.NewSize(420, 520))
	w.Show()
}

// Validates the form synchronously and dispatches the operator. Results arrive
// on the UI goroutine through the sink
func (v *Viewer) run(fv *formView, w fyne.Window) {
	step, err := fv.step()
	if err != nil {
		dialog.ShowError(err, w)
		return
	}
	in, err := layers.Resolve(v.store, step.Images, step.Labels)
	if err != nil {
		dialog.ShowError(err, w)
		return
	}
	job, err := ops.Dispatch(context.Background(), step.Operator, in, v.c, fyneDeliverer{}, v.sink.Accept)
	if err != nil {
		dialog.ShowError(err, w)
		return
	}
	v.status.SetText(fmt.Sprintf("Running %s...", fv.form.Title))
	go func() {
		if err := job.Wait(); err != nil {
			fyne.Do(func() { dialog.ShowError(err, v.win) })
			return
		}
		fyne.Do(func() { v.status.SetText(fmt.Sprintf("%s done", fv.form.Title)) })
	}()
}
