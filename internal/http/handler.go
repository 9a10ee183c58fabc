package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/usecase"
)

// Handler serves the written matchups over HTTP.
type Handler struct {
	catalogUC *usecase.CatalogUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(catalogUC *usecase.CatalogUseCase) *Handler {
	return &Handler{
		catalogUC: catalogUC,
	}
}

// ListMatchups handles GET /v1/matchups.
func (h *Handler) ListMatchups(c *gin.Context) {
	artifacts, err := h.catalogUC.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// Optional filters.
	dom := c.Query("domain")
	variable := c.Query("variable")
	filtered := make([]usecase.Artifact, 0, len(artifacts))
	for _, a := range artifacts {
		if dom != "" && a.Domain != dom {
			continue
		}
		if variable != "" && a.Variable != variable {
			continue
		}
		filtered = append(filtered, a)
	}

	c.JSON(http.StatusOK, gin.H{
		"matchups": filtered,
		"count":    len(filtered),
	})
}

// GetMatchup handles GET /v1/matchups/:domain/:variable.
func (h *Handler) GetMatchup(c *gin.Context) {
	dom, err := domain.ParseDomain(c.Param("domain"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	variable := c.Param("variable")

	details, err := h.catalogUC.Describe(dom, variable)
	if errors.Is(err, usecase.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to read matchups: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"domain":   dom,
		"variable": variable,
		"files":    details,
	})
}

// GetReport handles GET /v1/report.
func (h *Handler) GetReport(c *gin.Context) {
	data, err := h.catalogUC.Report()
	if errors.Is(err, usecase.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
}

// GetVariables handles GET /v1/variables.
func (h *Handler) GetVariables(c *gin.Context) {
	type VariableInfo struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		LongName    string `json:"long_name,omitempty"`
	}

	names := domain.VariableNames()
	response := make([]VariableInfo, 0, len(names))
	for _, n := range names {
		spec, _ := domain.LookupVariable(n)
		response = append(response, VariableInfo{
			Name:        spec.Name,
			DisplayName: spec.Title(),
			LongName:    spec.LongName,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"variables": response,
		"count":     len(response),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
