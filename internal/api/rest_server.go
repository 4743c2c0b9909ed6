package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/annel0/voxmesh/internal/auth"
	"github.com/annel0/voxmesh/internal/cache"
	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/meshstore"
	"github.com/annel0/voxmesh/internal/middleware"
	"github.com/annel0/voxmesh/internal/storage"
	"github.com/annel0/voxmesh/internal/vec"
)

// MeshSource источник сохранённой геометрии чанков
type MeshSource interface {
	Load(root vec.Vec3) (*meshstore.Record, error)
	Roots() ([]vec.Vec3, error)
}

// MaterialSource таблица материалов, отдаваемая клиентам
type MaterialSource interface {
	material.Lookup
	Codes() []uint16
}

// RestServer представляет REST API для чтения построенной геометрии
type RestServer struct {
	router    *gin.Engine
	httpSrv   *http.Server
	meshes    MeshSource
	materials MaterialSource
	port      string
	metrics   *ServerMetrics
	cache     MeshCache
	deleter   ChunkDeleter
	issuer    *auth.Issuer
	builds    storage.BuildRepo
	webhooks  *OutboundWebhookManager
	logger    *logging.Logger
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port      string                // адрес для запуска сервера, например ":8088"
	Meshes    MeshSource            // хранилище геометрии
	Materials MaterialSource        // таблица материалов, может быть nil
	Registry  prometheus.Registerer // куда регистрировать HTTP-метрики (nil = default)
	Gatherer  prometheus.Gatherer   // откуда отдавать /metrics (nil = default)
	Logger    *logging.Logger       // nil = логгер компонента "api"
	Tracing   trace.TracerProvider  // nil = глобальный провайдер otel
	Cache     MeshCache             // кеш геометрии, может быть nil
	Deleter   ChunkDeleter          // удаление чанков, может быть nil
	Auth      *auth.Issuer          // nil = административные маршруты выключены
	Builds    storage.BuildRepo     // история сборок, может быть nil
	Webhooks  *OutboundWebhookManager
}

// MeshCache кеш перед хранилищем геометрии
type MeshCache interface {
	Metrics() cache.CacheMetrics
	Invalidate(ctx context.Context) (int, error)
}

// ChunkDeleter удаляет сохранённый чанк
type ChunkDeleter interface {
	Delete(root vec.Vec3) error
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ChunkSummary краткое описание чанка без геометрии
type ChunkSummary struct {
	Root      vec.Vec3 `json:"root"`
	Size      vec.Vec3 `json:"size"`
	Surfaces  int      `json:"surfaces"`
	Faces     int      `json:"faces"`
	Vertices  int      `json:"vertices"`
	Triangles int      `json:"triangles"`
	BuildID   string   `json:"build_id"`
}

// MaterialView материал в ответе API
type MaterialView struct {
	ID          uint16 `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Visible     bool   `json:"visible"`
	Transparent bool   `json:"transparent"`
	Style       string `json:"style"`
}

// NewRestServer создает новый REST API сервер
func NewRestServer(config Config) (*RestServer, error) {
	if config.Meshes == nil {
		return nil, errors.New("не задано хранилище геометрии")
	}
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Logger == nil {
		config.Logger = logging.GetAPILogger()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()        // без стандартного logger/recovery
	router.Use(gin.Recovery()) // добавим только recovery

	var otelOpts []otelgin.Option
	if config.Tracing != nil {
		otelOpts = append(otelOpts, otelgin.WithTracerProvider(config.Tracing))
	}
	router.Use(otelgin.Middleware("voxmesh_api", otelOpts...))
	router.Use(middleware.NewRequestLogger(config.Logger).Handler())

	promMw := middleware.NewPrometheusMiddleware("voxmesh_api", config.Registry)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, config.Gatherer)

	server := &RestServer{
		router:    router,
		meshes:    config.Meshes,
		materials: config.Materials,
		port:      config.Port,
		metrics:   NewServerMetrics(),
		cache:     config.Cache,
		deleter:   config.Deleter,
		issuer:    config.Auth,
		builds:    config.Builds,
		webhooks:  config.Webhooks,
		logger:    config.Logger,
	}
	server.httpSrv = &http.Server{
		Addr:              config.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	server.setupRoutes()
	return server, nil
}

// setupRoutes настраивает маршруты REST API
func (rs *RestServer) setupRoutes() {
	// Геометрию читают браузерные клиенты
	rs.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/materials", rs.handleMaterials)
		api.GET("/chunks", rs.handleChunks)
		api.GET("/chunks/:x/:y/:z", rs.handleChunk)
		api.GET("/cache", rs.handleCache)
		api.GET("/builds", rs.handleBuilds)
		api.GET("/builds/:id", rs.handleBuild)
	}

	if rs.issuer != nil {
		admin := api.Group("/admin")
		admin.Use(rs.jwtMiddleware(), rs.adminMiddleware())
		{
			admin.DELETE("/chunks/:x/:y/:z", rs.handleDeleteChunk)
			admin.POST("/cache/invalidate", rs.handleInvalidateCache)
			if rs.webhooks != nil {
				admin.GET("/webhooks", rs.handleListWebhooks)
				admin.POST("/webhooks", rs.handleAddWebhook)
				admin.DELETE("/webhooks/:id", rs.handleDeleteWebhook)
			}
		}
	}

	rs.router.GET("/health", rs.handleHealth)
}

// Handler возвращает http.Handler сервера (удобно для httptest)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// parseRoot разбирает координаты корня чанка из пути
func parseRoot(c *gin.Context) (vec.Vec3, error) {
	var coords [3]int
	for i, name := range []string{"x", "y", "z"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			return vec.Vec3{}, fmt.Errorf("некорректная координата %s: %q", name, c.Param(name))
		}
		coords[i] = v
	}
	return vec.New(coords[0], coords[1], coords[2]), nil
}

// handleChunks возвращает список сохранённых чанков
func (rs *RestServer) handleChunks(c *gin.Context) {
	roots, err := rs.meshes.Roots()
	if err != nil {
		rs.logger.Error("Ошибка чтения списка чанков: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось получить список чанков",
		})
		return
	}

	summaries := make([]ChunkSummary, 0, len(roots))
	if c.Query("summary") == "true" {
		for _, root := range roots {
			rec, err := rs.meshes.Load(root)
			if err != nil {
				rs.logger.Warn("Чанк %s пропущен: %v", root, err)
				continue
			}
			summaries = append(summaries, summarize(rec))
		}
	}

	data := map[string]interface{}{
		"roots": roots,
		"total": len(roots),
	}
	if len(summaries) > 0 {
		data["chunks"] = summaries
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список чанков получен",
		Data:    data,
	})
}

// handleChunk возвращает геометрию одного чанка
func (rs *RestServer) handleChunk(c *gin.Context) {
	root, err := parseRoot(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	facing, filterFacing := vec.Direction(0), c.Query("facing") != ""
	if filterFacing {
		if facing, err = vec.ParseDirection(c.Query("facing")); err != nil {
			c.JSON(http.StatusBadRequest, GenericResponse{
				Success: false,
				Message: err.Error(),
			})
			return
		}
	}

	rec, err := rs.meshes.Load(root)
	switch {
	case errors.Is(err, meshstore.ErrNotFound):
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Чанк %s не найден", root),
		})
		return
	case errors.Is(err, meshstore.ErrNotReady):
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Хранилище недоступно",
		})
		return
	case err != nil:
		rs.logger.Error("Ошибка чтения чанка %s: %v", root, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось прочитать чанк",
		})
		return
	}

	if filterFacing {
		mesh, err := rec.Mesh.Facing(facing)
		if err != nil {
			rs.logger.Error("Геометрия чанка %s повреждена: %v", root, err)
			c.JSON(http.StatusInternalServerError, GenericResponse{
				Success: false,
				Message: "Не удалось отфильтровать геометрию",
			})
			return
		}
		filtered := *rec
		filtered.Mesh = mesh
		rec = &filtered
	}

	if c.Query("mesh") == "false" {
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Чанк получен",
			Data:    summarize(rec),
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Чанк получен",
		Data:    rec,
	})
}

// handleMaterials возвращает таблицу материалов
func (rs *RestServer) handleMaterials(c *gin.Context) {
	views := []MaterialView{}
	if rs.materials != nil {
		for _, code := range rs.materials.Codes() {
			p, ok := rs.materials.Lookup(code)
			if !ok {
				continue
			}
			views = append(views, MaterialView{
				ID:          p.ID,
				Name:        p.Name,
				Description: p.Description,
				Visible:     p.Visible,
				Transparent: p.Transparent,
				Style:       p.Style.String(),
			})
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Таблица материалов получена",
		Data:    views,
	})
}

// handleStats возвращает статистику процесса и хранилища
func (rs *RestServer) handleStats(c *gin.Context) {
	memoryMB, _ := rs.metrics.GetMemoryUsage()
	cpuPercent, err := rs.metrics.GetCPUUsage()
	if err != nil {
		rs.logger.Debug("CPU недоступен: %v", err)
	}

	chunks := -1
	if roots, err := rs.meshes.Roots(); err == nil {
		chunks = len(roots)
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: map[string]interface{}{
			"uptime":      rs.metrics.GetUptime(),
			"memory_mb":   memoryMB,
			"cpu_percent": cpuPercent,
			"chunks":      chunks,
			"memory":      rs.metrics.GetDetailedMemoryStats(),
		},
	})
}

// handleCache возвращает статистику кеша геометрии
func (rs *RestServer) handleCache(c *gin.Context) {
	if rs.cache == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Кеш не настроен",
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика кеша получена",
		Data:    rs.cache.Metrics(),
	})
}

// handleDeleteChunk удаляет чанк из хранилища и сбрасывает кеш
func (rs *RestServer) handleDeleteChunk(c *gin.Context) {
	if rs.deleter == nil {
		c.JSON(http.StatusNotImplemented, GenericResponse{
			Success: false,
			Message: "Удаление не поддерживается",
		})
		return
	}

	root, err := parseRoot(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	if _, err := rs.meshes.Load(root); errors.Is(err, meshstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Чанк %s не найден", root),
		})
		return
	}

	if err := rs.deleter.Delete(root); err != nil {
		rs.logger.Error("Ошибка удаления чанка %s: %v", root, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось удалить чанк",
		})
		return
	}
	if rs.cache != nil {
		if _, err := rs.cache.Invalidate(c.Request.Context()); err != nil {
			rs.logger.Warn("Кеш не сброшен после удаления %s: %v", root, err)
		}
	}

	rs.logger.Info("Чанк %s удалён оператором %s", root, c.GetString("operator"))
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Чанк %s удалён", root),
	})
}

// handleInvalidateCache сбрасывает весь кеш геометрии
func (rs *RestServer) handleInvalidateCache(c *gin.Context) {
	if rs.cache == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Кеш не настроен",
		})
		return
	}

	n, err := rs.cache.Invalidate(c.Request.Context())
	if err != nil {
		rs.logger.Error("Ошибка сброса кеша: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось сбросить кеш",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Кеш сброшен",
		Data:    map[string]int{"removed": n},
	})
}

// handleBuilds возвращает последние сборки (?limit=N)
func (rs *RestServer) handleBuilds(c *gin.Context) {
	if rs.builds == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "История сборок не настроена",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	list, err := rs.builds.List(c.Request.Context(), limit)
	if err != nil {
		rs.logger.Error("Ошибка чтения истории сборок: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось получить историю сборок",
		})
		return
	}
	if list == nil {
		list = []storage.BuildRecord{}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "История сборок получена",
		Data:    list,
	})
}

// handleBuild возвращает одну сборку
func (rs *RestServer) handleBuild(c *gin.Context) {
	if rs.builds == nil {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "История сборок не настроена",
		})
		return
	}

	id := c.Param("id")
	rec, ok, err := rs.builds.Get(c.Request.Context(), id)
	switch {
	case err != nil:
		rs.logger.Error("Ошибка чтения сборки %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Не удалось прочитать сборку",
		})
	case !ok:
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Сборка %s не найдена", id),
		})
	default:
		c.JSON(http.StatusOK, GenericResponse{
			Success: true,
			Message: "Сборка получена",
			Data:    rec,
		})
	}
}

// handleListWebhooks список webhook'ов без секретов
func (rs *RestServer) handleListWebhooks(c *gin.Context) {
	webhooks := rs.webhooks.GetWebhooks()
	for i := range webhooks {
		webhooks[i].Secret = ""
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Список webhook'ов получен",
		Data:    webhooks,
	})
}

// handleAddWebhook регистрирует webhook
func (rs *RestServer) handleAddWebhook(c *gin.Context) {
	var req OutboundWebhook
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный формат данных: " + err.Error(),
		})
		return
	}

	webhook := rs.webhooks.AddWebhook(req)
	webhook.Secret = ""
	rs.logger.Info("Webhook %s (%s) добавлен оператором %s", webhook.Name, webhook.URL, c.GetString("operator"))
	c.JSON(http.StatusCreated, GenericResponse{
		Success: true,
		Message: "Webhook добавлен",
		Data:    webhook,
	})
}

// handleDeleteWebhook удаляет webhook
func (rs *RestServer) handleDeleteWebhook(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Некорректный ID webhook'а",
		})
		return
	}
	if !rs.webhooks.DeleteWebhook(id) {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: fmt.Sprintf("Webhook %d не найден", id),
		})
		return
	}
	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Webhook удалён",
	})
}

// handleHealth простая проверка живости
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// Start запускает REST сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.logger.Info("REST API слушает %s", rs.port)
	if err := rs.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop останавливает сервер, дожидаясь завершения активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.httpSrv.Shutdown(ctx)
}

func summarize(rec *meshstore.Record) ChunkSummary {
	return ChunkSummary{
		Root:      rec.Root,
		Size:      rec.Size,
		Surfaces:  rec.Surfaces,
		Faces:     rec.Faces,
		Vertices:  rec.Mesh.VertexCount(),
		Triangles: rec.Mesh.TriangleCount(),
		BuildID:   rec.BuildID,
	}
}
