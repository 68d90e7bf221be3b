package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// RuntimeConfig holds the settings that can change without a restart.
type RuntimeConfig struct {
	RouterThreshold     float64 `json:"router_threshold"`
	AcceptanceThreshold float64 `json:"acceptance_threshold"`
	OllamaBaseURL       string  `json:"ollama_base_url"`
	OllamaModel         string  `json:"ollama_model,omitempty"`
}

var (
	runtimeConfig     RuntimeConfig
	runtimeConfigLock sync.RWMutex
)

// InitRuntimeConfig seeds the runtime config from static config.
func InitRuntimeConfig(cfg RuntimeConfig) {
	runtimeConfigLock.Lock()
	defer runtimeConfigLock.Unlock()
	runtimeConfig = cfg
}

func currentRuntimeConfig() RuntimeConfig {
	runtimeConfigLock.RLock()
	defer runtimeConfigLock.RUnlock()
	return runtimeConfig
}

// GetRuntimeRouterThreshold is the minimum classifier confidence the router
// accepts.
func GetRuntimeRouterThreshold() float64 {
	return currentRuntimeConfig().RouterThreshold
}

// GetRuntimeAcceptanceThreshold is the minimum extraction confidence for a
// mail to become an expense.
func GetRuntimeAcceptanceThreshold() float64 {
	return currentRuntimeConfig().AcceptanceThreshold
}

func GetRuntimeOllamaBaseURL() string {
	return currentRuntimeConfig().OllamaBaseURL
}

func GetRuntimeOllamaModel() string {
	return currentRuntimeConfig().OllamaModel
}

type UpdateThresholdsRequest struct {
	RouterThreshold     *float64 `json:"router_threshold"`
	AcceptanceThreshold *float64 `json:"acceptance_threshold"`
}

type UpdateOllamaSettingsRequest struct {
	OllamaBaseURL string `json:"ollama_base_url" binding:"required"`
	OllamaModel   string `json:"ollama_model,omitempty"`
}

// GetThresholds returns the routing and acceptance thresholds.
// GET /api/settings/thresholds
func GetThresholds(c *gin.Context) {
	cfg := currentRuntimeConfig()
	c.JSON(http.StatusOK, gin.H{
		"router_threshold":     cfg.RouterThreshold,
		"acceptance_threshold": cfg.AcceptanceThreshold,
	})
}

// UpdateThresholds changes either threshold. Values must lie in [0, 1].
// PUT /api/settings/thresholds
func UpdateThresholds(c *gin.Context) {
	var req UpdateThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for _, v := range []*float64{req.RouterThreshold, req.AcceptanceThreshold} {
		if v != nil && (*v < 0 || *v > 1) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "thresholds must be between 0 and 1"})
			return
		}
	}

	runtimeConfigLock.Lock()
	if req.RouterThreshold != nil {
		runtimeConfig.RouterThreshold = *req.RouterThreshold
	}
	if req.AcceptanceThreshold != nil {
		runtimeConfig.AcceptanceThreshold = *req.AcceptanceThreshold
	}
	cfg := runtimeConfig
	runtimeConfigLock.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message":              "Thresholds updated successfully",
		"router_threshold":     cfg.RouterThreshold,
		"acceptance_threshold": cfg.AcceptanceThreshold,
	})
}

// GetOllamaSettings returns current Ollama configuration
// GET /api/settings/ollama
func GetOllamaSettings(c *gin.Context) {
	cfg := currentRuntimeConfig()
	c.JSON(http.StatusOK, gin.H{
		"ollama_base_url": cfg.OllamaBaseURL,
		"ollama_model":    cfg.OllamaModel,
	})
}

// UpdateOllamaSettings updates Ollama configuration at runtime
// PUT /api/settings/ollama
func UpdateOllamaSettings(c *gin.Context) {
	var req UpdateOllamaSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	runtimeConfigLock.Lock()
	runtimeConfig.OllamaBaseURL = strings.TrimRight(req.OllamaBaseURL, "/")
	if req.OllamaModel != "" {
		runtimeConfig.OllamaModel = req.OllamaModel
	}
	cfg := runtimeConfig
	runtimeConfigLock.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"message":         "Ollama settings updated successfully",
		"ollama_base_url": cfg.OllamaBaseURL,
		"ollama_model":    cfg.OllamaModel,
	})
}

// TestOllamaConnection tests if the Ollama server is reachable
// POST /api/settings/ollama/test
func TestOllamaConnection(c *gin.Context) {
	var req struct {
		OllamaBaseURL string `json:"ollama_base_url"`
	}
	// An empty body tests the current config.
	_ = c.ShouldBindJSON(&req)
	if req.OllamaBaseURL == "" {
		req.OllamaBaseURL = GetRuntimeOllamaBaseURL()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(req.OllamaBaseURL, "/")+"/api/tags", nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"connected": false, "error": err.Error()})
		return
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"connected":   false,
			"status_code": resp.StatusCode,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":       true,
		"ollama_base_url": req.OllamaBaseURL,
	})
}
