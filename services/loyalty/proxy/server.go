// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package proxy is the reference implementation of the key/value sync
// proxy, so development and integration tests run without the hosted one.
// It serves the same REST dialect the remote.HTTPStore client speaks,
// backed by any remote.Store implementation (Redis in production, the
// in-memory store in tests).
package proxy

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/punchcard/services/loyalty/remote"
)

// Handlers contains the HTTP handlers for the proxy.
type Handlers struct {
	backend remote.Store
	logger  *slog.Logger
}

// NewHandlers creates handlers over the given backend.
func NewHandlers(backend remote.Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{backend: backend, logger: logger}
}

// NewRouter builds the proxy router.
//
// Endpoints:
//
//	GET/PUT/DELETE /v1/kv/:key           value get/set/del (raw JSON bodies)
//	GET            /v1/kv/:key/exists
//	GET            /v1/keys?prefix=
//	POST           /v1/kv/mget
//	POST           /v1/kv/mset
//	GET/POST       /v1/sets/:key         smembers/sadd
//	POST           /v1/sets/:key/remove  srem
//	PUT            /v1/records/:customerId
//	GET/PUT        /v1/entities/:type/:id
//	GET            /healthz
//	GET            /metrics
func NewRouter(backend remote.Store, logger *slog.Logger) *gin.Engine {
	h := NewHandlers(backend, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("punchcard-proxy"))

	router.GET("/healthz", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.GET("/kv/:key", h.HandleGet)
		v1.PUT("/kv/:key", h.HandleSet)
		v1.DELETE("/kv/:key", h.HandleDel)
		v1.GET("/kv/:key/exists", h.HandleExists)
		v1.GET("/keys", h.HandleKeys)
		v1.POST("/kv/mget", h.HandleMGet)
		v1.POST("/kv/mset", h.HandleMSet)

		v1.GET("/sets/:key", h.HandleSMembers)
		v1.POST("/sets/:key", h.HandleSAdd)
		v1.POST("/sets/:key/remove", h.HandleSRem)

		v1.PUT("/records/:customerId", h.HandlePutRecord)
		v1.GET("/entities/:type/:id", h.HandleGetEntity)
		v1.PUT("/entities/:type/:id", h.HandlePutEntity)
	}
	return router
}

// fail maps backend errors onto status codes. Unreachable backends are a
// 503 so clients treat the proxy itself as unavailable.
func (h *Handlers) fail(c *gin.Context, err error) {
	h.logger.Warn("proxy backend error", "path", c.FullPath(), "error", err)
	status := http.StatusInternalServerError
	if errors.Is(err, remote.ErrUnavailable) {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// HandleHealth reports backend reachability.
func (h *Handlers) HandleHealth(c *gin.Context) {
	if err := h.backend.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleGet returns the raw value at the key, or 404.
func (h *Handlers) HandleGet(c *gin.Context) {
	value, found, err := h.backend.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "key not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", value)
}

// HandleSet stores the request body verbatim.
func (h *Handlers) HandleSet(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.backend.Set(c.Request.Context(), c.Param("key"), body); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleDel removes the key. Deleting a missing key succeeds.
func (h *Handlers) HandleDel(c *gin.Context) {
	if err := h.backend.Del(c.Request.Context(), c.Param("key")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleExists reports key presence without transferring the value.
func (h *Handlers) HandleExists(c *gin.Context) {
	exists, err := h.backend.Exists(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

// HandleKeys lists keys under the prefix query parameter.
func (h *Handlers) HandleKeys(c *gin.Context) {
	keys, err := h.backend.Keys(c.Request.Context(), c.Query("prefix"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

type mgetRequest struct {
	Keys []string `json:"keys" binding:"required"`
}

// HandleMGet returns the values for the requested keys. Missing keys map
// to null.
func (h *Handlers) HandleMGet(c *gin.Context) {
	var req mgetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	values, err := h.backend.MGet(c.Request.Context(), req.Keys...)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make(map[string]any, len(req.Keys))
	for _, key := range req.Keys {
		if v, ok := values[key]; ok {
			out[key] = json.RawMessage(v)
		} else {
			out[key] = nil
		}
	}
	c.JSON(http.StatusOK, gin.H{"values": out})
}

type msetRequest struct {
	Values map[string]json.RawMessage `json:"values" binding:"required"`
}

// HandleMSet stores all pairs. Not atomic across keys.
func (h *Handlers) HandleMSet(c *gin.Context) {
	var req msetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pairs := make(map[string][]byte, len(req.Values))
	for k, v := range req.Values {
		pairs[k] = []byte(v)
	}
	if err := h.backend.MSet(c.Request.Context(), pairs); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSMembers returns the set's members. A missing set is empty.
func (h *Handlers) HandleSMembers(c *gin.Context) {
	members, err := h.backend.SMembers(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if members == nil {
		members = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type membersRequest struct {
	Members []string `json:"members" binding:"required"`
}

// HandleSAdd adds members to the set.
func (h *Handlers) HandleSAdd(c *gin.Context) {
	var req membersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.backend.SAdd(c.Request.Context(), c.Param("key"), req.Members...); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSRem removes members from the set.
func (h *Handlers) HandleSRem(c *gin.Context) {
	var req membersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.backend.SRem(c.Request.Context(), c.Param("key"), req.Members...); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandlePutRecord is the record-level endpoint: a full customer record
// replaces the value at customer:{id}.
func (h *Handlers) HandlePutRecord(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := "customer:" + c.Param("customerId")
	if err := h.backend.Set(c.Request.Context(), key, body); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleGetEntity serves one typed entity from its {type}:{id} key.
func (h *Handlers) HandleGetEntity(c *gin.Context) {
	key := c.Param("type") + ":" + c.Param("id")
	value, found, err := h.backend.Get(c.Request.Context(), key)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity not found"})
		return
	}
	c.Data(http.StatusOK, "application/json", value)
}

// HandlePutEntity stores one typed entity at its {type}:{id} key.
func (h *Handlers) HandlePutEntity(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := c.Param("type") + ":" + c.Param("id")
	if err := h.backend.Set(c.Request.Context(), key, body); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
