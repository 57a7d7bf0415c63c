package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"canonvocab/internal/classifier"
	"canonvocab/internal/graph"
	"canonvocab/internal/memstore"
	"canonvocab/internal/reconcile"
	"canonvocab/internal/scanner"
	"canonvocab/internal/stats"
	"canonvocab/internal/vocab"
	"canonvocab/pkg/config"
	apperrors "canonvocab/pkg/errors"
	"canonvocab/pkg/logger"
)

func main() {
	// Initialize logger
	if err := logger.Init(os.Getenv("ENV")); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting vocabulary API server...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	// Wire the storage backend
	var store vocab.Store
	var source scanner.ObservationSource
	if cfg.StoreBackend == config.BackendMemory {
		log.Warn("Using in-memory store; vocabulary state will not survive restarts")
		store = memstore.New()
		source = memstore.NewObservationLog()
	} else {
		driver, err := neo4j.NewDriverWithContext(
			cfg.Neo4jURI,
			neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
		)
		if err != nil {
			log.Fatal("Failed to create Neo4j driver", zap.Error(err))
		}
		defer driver.Close(context.Background())

		if err := driver.VerifyConnectivity(ctx); err != nil {
			log.Fatal("Failed to verify Neo4j connectivity",
				zap.Error(apperrors.NewGraphConnectionFailed(cfg.Neo4jURI, err)))
		}

		graphStore := graph.NewStore(driver)
		if err := graphStore.EnsureSchema(ctx); err != nil {
			log.Fatal("Failed to ensure vocabulary schema", zap.Error(err))
		}
		store = graphStore
		source = graph.NewObservationReader(driver)
	}

	// Wire the components
	scan := scanner.New(source, store)
	suggester := classifier.NewClient(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID)
	reconciler := reconcile.New(store, suggester, cfg.SuggestBatchLimit)
	aggregator := stats.New(store, scan)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(log, serverDeps{
		store:      store,
		scanner:    scan,
		reconciler: reconciler,
		stats:      aggregator,
	})

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("store_backend", cfg.StoreBackend),
	)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// serverDeps bundles what the handlers need.
type serverDeps struct {
	store      vocab.Store
	scanner    *scanner.Scanner
	reconciler *reconcile.Reconciler
	stats      *stats.Aggregator
}

func newRouter(log *zap.Logger, deps serverDeps) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		scope := api.Group("/projects/:project/attributes/:slug")

		// List terms
		scope.GET("/terms", func(c *gin.Context) {
			terms, err := deps.store.ListTerms(c.Request.Context(), c.Param("project"), c.Param("slug"), vocab.TermFilter{
				Category: c.Query("category"),
				Search:   c.Query("search"),
			})
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, terms)
		})

		// Create term
		scope.POST("/terms", func(c *gin.Context) {
			var req struct {
				Name     string `json:"name" binding:"required"`
				Category string `json:"category"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			term, err := deps.store.CreateTerm(c.Request.Context(), c.Param("project"), c.Param("slug"), req.Name, req.Category)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusCreated, term)
		})

		// Unmapped raw values
		scope.GET("/unmapped", func(c *gin.Context) {
			unmapped, err := deps.scanner.ComputeUnmapped(c.Request.Context(), c.Param("project"), c.Param("slug"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"unmapped": unmapped})
		})

		// Categories in use
		scope.GET("/categories", func(c *gin.Context) {
			categories, err := deps.store.ListCategories(c.Request.Context(), c.Param("project"), c.Param("slug"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"categories": categories})
		})

		// Vocabulary stats
		scope.GET("/stats", func(c *gin.Context) {
			result, err := deps.stats.Compute(c.Request.Context(), c.Param("project"), c.Param("slug"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Classifier suggestions
		scope.POST("/suggest", func(c *gin.Context) {
			var req struct {
				RawValues []string `json:"raw_values" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			suggestions, err := deps.reconciler.Suggest(c.Request.Context(), c.Param("project"), c.Param("slug"), req.RawValues)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
		})

		// Apply suggestions, best-effort per item
		scope.POST("/suggestions/apply", func(c *gin.Context) {
			var req struct {
				Suggestions []vocab.Suggestion `json:"suggestions" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			outcomes := deps.reconciler.ApplyAll(c.Request.Context(), c.Param("project"), c.Param("slug"), req.Suggestions)
			c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
		})

		// Get term with mappings
		api.GET("/terms/:id", func(c *gin.Context) {
			detail, err := deps.store.GetTerm(c.Request.Context(), c.Param("id"))
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, detail)
		})

		// Update term
		api.PUT("/terms/:id", func(c *gin.Context) {
			var req vocab.TermUpdate
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			term, err := deps.store.UpdateTerm(c.Request.Context(), c.Param("id"), req)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, term)
		})

		// Delete term (cascades mappings); confirmation policy is the caller's
		api.DELETE("/terms/:id", func(c *gin.Context) {
			if err := deps.store.DeleteTerm(c.Request.Context(), c.Param("id")); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		// Add mapping
		api.POST("/terms/:id/mappings", func(c *gin.Context) {
			var req struct {
				RawValue string `json:"raw_value" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			mapping, err := deps.store.AddMapping(c.Request.Context(), c.Param("id"), req.RawValue)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusCreated, mapping)
		})

		// Merge source terms into target
		api.POST("/terms/:id/merge", func(c *gin.Context) {
			var req struct {
				SourceIDs []string `json:"source_ids" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			result, err := deps.store.MergeTerms(c.Request.Context(), c.Param("id"), req.SourceIDs)
			if err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		// Remove mapping
		api.DELETE("/mappings/:id", func(c *gin.Context) {
			if err := deps.store.RemoveMapping(c.Request.Context(), c.Param("id")); err != nil {
				respondError(c, log, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "removed"})
		})
	}

	return router
}

// respondError maps domain errors onto HTTP statuses. Uniqueness violations
// are caller-facing decisions, not transient faults, so they come back as
// conflicts rather than retries.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	var status int
	switch {
	case isAny[*apperrors.ErrDuplicateTerm](err), isAny[*apperrors.ErrDuplicateMapping](err):
		status = http.StatusConflict
	case isAny[*apperrors.ErrTermNotFound](err), isAny[*apperrors.ErrMappingNotFound](err):
		status = http.StatusNotFound
	case isAny[*apperrors.ErrInvalidMergeRequest](err), isAny[*apperrors.ErrBatchTooLarge](err):
		status = http.StatusBadRequest
	case isAny[*apperrors.ErrSuggestionServiceUnavailable](err):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
		log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func isAny[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
