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
package rest

import (
	"bytes"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/fluolight/internal/fits"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
	_ "github.com/mlnoga/fluolight/internal/ops/all"
	"github.com/mlnoga/fluolight/internal/plot"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	gin.SetMode(gin.TestMode)
	store := layers.NewMemStore()
	stack := fits.NewImageFromNaxisn([]int32{4, 4, 6}, nil)
	stack.Name = "stack"
	for i := range stack.Data {
		stack.Data[i] = float32(i % 7)
	}
	store.Put(&layers.Layer{Name: "stack", Kind: ops.KindImage, Image: stack, Colormap: ops.ColormapGray, Opacity: 1})
	lab := fits.NewImageFromNaxisn([]int32{4, 4}, nil)
	lab.Data[5], lab.Data[6] = 1, 1
	store.Put(&layers.Layer{Name: "lab", Kind: ops.KindLabels, Image: lab, Opacity: 1, Contour: 1})

	c := ops.NewContext(io.Discard, nil)
	s := NewServer(store, c, ops.ColormapTurbo)
	return s, s.Router()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	_, h := newTestServer(t)
	w := do(h, http.MethodGet, "/api/v1/ping", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "pong") {
		t.Errorf("ping=%d %s; want 200 pong", w.Code, w.Body.String())
	}
	w = do(h, http.MethodGet, "/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<html") {
		t.Errorf("index=%d; want 200 with html", w.Code)
	}
}

func TestOperators(t *testing.T) {
	_, h := newTestServer(t)
	w := do(h, http.MethodGet, "/api/v1/operators", "")
	var res struct{ Operators []string }
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"splitChannels": true, "alignStack": true, "eFRET": true, "profileLine": true}
	for _, op := range res.Operators {
		delete(want, op)
	}
	if len(want) != 0 {
		t.Errorf("operators=%v; missing %v", res.Operators, want)
	}
}

func TestLayers(t *testing.T) {
	_, h := newTestServer(t)
	w := do(h, http.MethodGet, "/api/v1/layers", "")
	var list struct{ Layers []layers.Info }
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list.Layers) != 2 || list.Layers[0].Name != "stack" || list.Layers[0].Dimensions != "4x4x6" {
		t.Errorf("layers=%+v; want stack 4x4x6 and lab", list.Layers)
	}

	w = do(h, http.MethodGet, "/api/v1/layers/stack", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"naxisn":[4,4,6]`) {
		t.Errorf("layer=%d %s; want 200 with naxisn", w.Code, w.Body.String())
	}
	w = do(h, http.MethodGet, "/api/v1/layers/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing layer=%d; want 404", w.Code)
	}
}

func TestPreview(t *testing.T) {
	_, h := newTestServer(t)
	w := do(h, http.MethodGet, "/api/v1/layers/stack/preview.png?frame=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("preview=%d %s; want 200", w.Code, w.Body.String())
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 4 {
		t.Errorf("preview bounds=%v; want 4x4", b)
	}
	if w = do(h, http.MethodGet, "/api/v1/layers/stack/preview.png?frame=6", ""); w.Code != http.StatusBadRequest {
		t.Errorf("frame out of range=%d; want 400", w.Code)
	}
	if w = do(h, http.MethodGet, "/api/v1/layers/stack/preview.png?frame=x", ""); w.Code != http.StatusBadRequest {
		t.Errorf("malformed frame=%d; want 400", w.Code)
	}
}

func TestDeleteLayer(t *testing.T) {
	s, h := newTestServer(t)
	if w := do(h, http.MethodDelete, "/api/v1/layers/lab", ""); w.Code != http.StatusNoContent {
		t.Errorf("delete=%d; want 204", w.Code)
	}
	if _, ok := s.Store.Get("lab"); ok {
		t.Errorf("lab still in store")
	}
	if w := do(h, http.MethodDelete, "/api/v1/layers/lab", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete=%d; want 404", w.Code)
	}
}

func TestPathsRestricted(t *testing.T) {
	_, h := newTestServer(t)
	if w := do(h, http.MethodPost, "/api/v1/layers/load", `{"fileNames":["/etc/passwd"]}`); w.Code != http.StatusForbidden {
		t.Errorf("load absolute=%d; want 403", w.Code)
	}
	if w := do(h, http.MethodPost, "/api/v1/layers/stack/save", `{"fileName":"../stack.fits"}`); w.Code != http.StatusForbidden {
		t.Errorf("save parent=%d; want 403", w.Code)
	}
	body := `{"operator":{"type":"profileLine","savingPath":"/tmp"},"images":["stack"],"labels":["lab"]}`
	if w := do(h, http.MethodPost, "/api/v1/run", body); w.Code != http.StatusForbidden {
		t.Errorf("run with absolute savingPath=%d; want 403", w.Code)
	}
}

func TestRun(t *testing.T) {
	s, h := newTestServer(t)
	w := do(h, http.MethodPost, "/api/v1/run", `{"operator":{"type":"redGreen"},"images":["stack"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("run=%d %s; want 200", w.Code, w.Body.String())
	}
	var res struct{ Produced []string }
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if len(res.Produced) != 1 || res.Produced[0] != "stack_red-green" {
		t.Errorf("produced=%v; want [stack_red-green]", res.Produced)
	}
	if l, ok := s.Store.Get("stack_red-green"); !ok || l.Image.Frames() != 3 {
		t.Errorf("result layer missing or wrong frame count")
	}

	// validation failures are client errors
	if w = do(h, http.MethodPost, "/api/v1/run", `{"operator":{"type":"redGreen","leftFrames":5},"images":["stack"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid run=%d; want 400", w.Code)
	}
	if w = do(h, http.MethodPost, "/api/v1/run", `{"operator":{"type":"redGreen"},"images":["missing"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing layer run=%d; want 400", w.Code)
	}
	if w = do(h, http.MethodPost, "/api/v1/run", `{"operator":{"type":"noSuchOp"},"images":["stack"]}`); w.Code != http.StatusBadRequest {
		t.Errorf("unknown operator run=%d; want 400", w.Code)
	}
}

func TestPlots(t *testing.T) {
	s, h := newTestServer(t)
	fig := &plot.Figure{Title: "t", Series: []plot.Series{{Label: "1", X: []float64{0, 1}, Y: []float64{1, 2}}}}
	if err := s.Plots.Show("ROIs Prof.", fig); err != nil {
		t.Fatal(err)
	}
	w := do(h, http.MethodGet, "/api/v1/plots", "")
	if !strings.Contains(w.Body.String(), "ROIs Prof.") {
		t.Errorf("plots=%s; want ROIs Prof.", w.Body.String())
	}
	w = do(h, http.MethodGet, "/api/v1/plots/"+url.PathEscape("ROIs Prof.")+".png", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("plot=%d %s; want 200 image/png", w.Code, w.Header().Get("Content-Type"))
	}
	if w = do(h, http.MethodGet, "/api/v1/plots/none.png", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing plot=%d; want 404", w.Code)
	}
}
