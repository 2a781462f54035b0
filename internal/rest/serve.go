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
// Package rest exposes the layer store and the analysis operators over HTTP.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/mlnoga/fluolight/internal/layers"
	"github.com/mlnoga/fluolight/internal/ops"
	"github.com/mlnoga/fluolight/internal/plot"
	"github.com/mlnoga/fluolight/internal/render"
	"github.com/mlnoga/fluolight/web"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Default maximum edge length of preview images
const previewMaxSize = 1024

// HTTP front end for a layer store
type Server struct {
	Store   layers.Store
	Plots   *plot.MemHost
	Context *ops.Context
	Sink    *layers.Sink
	nextID  int32
}

func NewServer(store layers.Store, c *ops.Context, colormap string) *Server {
	plots := plot.NewMemHost()
	sink := layers.NewSink(store, plots)
	if colormap != "" {
		sink.DefaultColormap = colormap
	}
	return &Server{Store: store, Plots: plots, Context: c, Sink: sink}
}

// Builds the gin router with all API routes
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(s.Context.Log), gin.Recovery())
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.GET("/operators", getOperators)
			v1.GET("/layers", s.getLayers)
			v1.POST("/layers/load", s.postLoad)
			v1.GET("/layers/:name", s.getLayer)
			v1.GET("/layers/:name/preview.png", s.getPreview)
			v1.POST("/layers/:name/save", s.postSave)
			v1.DELETE("/layers/:name", s.deleteLayer)
			v1.POST("/run", s.postRun)
			v1.GET("/plots", s.getPlots)
			v1.GET("/plots/:name", s.getPlot)
		}
	}
	return r
}

// Listens and serves on the given address until the server fails
func (s *Server) Serve(addr string) error {
	s.Context.Notify.Infof("Serving on http://%s", addr)
	return s.Router().Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func getOperators(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"operators": ops.OperatorTypes()})
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) getLayers(c *gin.Context) {
	infos := []layers.Info{}
	for _, name := range s.Store.Names() {
		if l, ok := s.Store.Get(name); ok {
			infos = append(infos, l.Info())
		}
	}
	c.JSON(http.StatusOK, gin.H{"layers": infos})
}

func (s *Server) layer(c *gin.Context) (*layers.Layer, bool) {
	name := c.Param("name")
	l, ok := s.Store.Get(name)
	if !ok {
		abort(c, http.StatusNotFound, fmt.Errorf("no layer named '%s'", name))
	}
	return l, ok
}

func (s *Server) getLayer(c *gin.Context) {
	l, ok := s.layer(c)
	if !ok {
		return
	}
	min, max := l.Image.MinMax()
	c.JSON(http.StatusOK, gin.H{
		"layer":  l,
		"naxisn": l.Image.Naxisn,
		"min":    min,
		"max":    max,
	})
}

func queryInt32(c *gin.Context, key string) (int32, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	i, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", key)
	}
	return int32(i), nil
}

func (s *Server) getPreview(c *gin.Context) {
	l, ok := s.layer(c)
	if !ok {
		return
	}
	frame, err := queryInt32(c, "frame")
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	channel, err := queryInt32(c, "channel")
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	opt := render.Options{
		Frame:    frame,
		Channel:  channel,
		Colormap: l.Colormap,
		Limits:   l.ContrastLimits,
		Labels:   l.Kind == ops.KindLabels,
		MaxSize:  previewMaxSize,
	}
	buf := bytes.Buffer{}
	if err := render.WritePNG(&buf, l.Image, opt); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

type postLoadArgs struct {
	FileNames []string `json:"fileNames"` // one FITS or TIFF file, or a sequence of 2D TIFF frames
	Name      string   `json:"name"`
	Kind      ops.Kind `json:"kind"`
}

func (s *Server) postLoad(c *gin.Context) {
	var args postLoadArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	for _, fileName := range args.FileNames {
		if !ops.IsPathAllowed(fileName) {
			abort(c, http.StatusForbidden, fmt.Errorf("path '%s' not allowed", fileName))
			return
		}
	}
	l, err := layers.Load(args.FileNames, args.Name, args.Kind, int(atomic.AddInt32(&s.nextID, 1)), s.Context)
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	created := s.Store.Put(l)
	c.JSON(http.StatusOK, gin.H{"layer": l.Info(), "created": created})
}

type postSaveArgs struct {
	FileName string `json:"fileName"`
}

func (s *Server) postSave(c *gin.Context) {
	l, ok := s.layer(c)
	if !ok {
		return
	}
	var args postSaveArgs
	if err := c.ShouldBindJSON(&args); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if !ops.IsPathAllowed(args.FileName) {
		abort(c, http.StatusForbidden, fmt.Errorf("path '%s' not allowed", args.FileName))
		return
	}
	if err := layers.Save(l, args.FileName); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	fmt.Fprintf(s.Context.Log, "Saved layer %s to %s\n", l.Name, args.FileName)
	c.JSON(http.StatusOK, gin.H{"fileName": args.FileName})
}

func (s *Server) deleteLayer(c *gin.Context) {
	name := c.Param("name")
	if !s.Store.Remove(name) {
		abort(c, http.StatusNotFound, fmt.Errorf("no layer named '%s'", name))
		return
	}
	c.Status(http.StatusNoContent)
}

// Rejects operators whose parameters name files outside the working tree
func checkOperatorPaths(op ops.Operator) error {
	raw, err := json.Marshal(op)
	if err != nil {
		return err
	}
	var params map[string]interface{}
	if err := json.Unmarshal(raw, &params); err != nil {
		return err
	}
	for key, v := range params {
		if p, ok := v.(string); ok && strings.HasSuffix(key, "Path") && !ops.IsPathAllowed(p) {
			return fmt.Errorf("%s '%s' not allowed", key, p)
		}
	}
	return nil
}

func (s *Server) postRun(c *gin.Context) {
	var step layers.Step
	if err := c.ShouldBindJSON(&step); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if _, err := layers.Resolve(s.Store, step.Images, step.Labels); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err := checkOperatorPaths(step.Operator); err != nil {
		abort(c, http.StatusForbidden, err)
		return
	}

	// collect the status notifications of this run for the response
	hook := &ops.StatusHook{}
	notify := logrus.New()
	notify.SetOutput(s.Context.Notify.Out)
	notify.SetFormatter(s.Context.Notify.Formatter)
	notify.SetLevel(s.Context.Notify.GetLevel())
	notify.AddHook(hook)
	rc := *s.Context
	rc.Notify = notify

	sink := *s.Sink
	sink.Produced = nil
	err := step.Run(context.Background(), s.Store, &rc, nil, &sink)
	status := http.StatusOK
	var verr *ops.ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	} else if err != nil {
		status = http.StatusInternalServerError
	}
	res := gin.H{"produced": sink.Produced, "messages": hook.Collected()}
	if err != nil {
		res["error"] = err.Error()
	}
	c.JSON(status, res)
}

func (s *Server) getPlots(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plots": s.Plots.Panels()})
}

func (s *Server) getPlot(c *gin.Context) {
	name := c.Param("name")
	if filepath.Ext(name) != ".png" {
		abort(c, http.StatusNotFound, fmt.Errorf("plots are served as .png"))
		return
	}
	name = strings.TrimSuffix(name, ".png")
	fig := s.Plots.Get(name)
	if fig == nil {
		abort(c, http.StatusNotFound, fmt.Errorf("no plot named '%s'", name))
		return
	}
	png, err := plot.Render(fig, plot.DefaultWidth, plot.DefaultHeight)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
