package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/voxmesh/internal/api"
	"github.com/annel0/voxmesh/internal/app"
	"github.com/annel0/voxmesh/internal/auth"
	"github.com/annel0/voxmesh/internal/cache"
	"github.com/annel0/voxmesh/internal/config"
	"github.com/annel0/voxmesh/internal/eventbus"
	"github.com/annel0/voxmesh/internal/logging"
	"github.com/annel0/voxmesh/internal/material"
	"github.com/annel0/voxmesh/internal/mesher"
	"github.com/annel0/voxmesh/internal/meshstore"
	"github.com/annel0/voxmesh/internal/observability"
	"github.com/annel0/voxmesh/internal/storage"
)

// newBuildRepo MariaDB, затем MongoDB, иначе история в памяти
func newBuildRepo(cfg *config.HistoryConfig) storage.BuildRepo {
	if dsn := cfg.GetMySQLDSN(); dsn != "" {
		repo, err := storage.NewMariaBuildRepo(dsn)
		if err == nil {
			logging.Info("🗃️ История сборок: MariaDB")
			return repo
		}
		logging.Warn("⚠️ MariaDB недоступна (%v)", err)
	}
	if uri := cfg.GetMongoURI(); uri != "" {
		repo, err := storage.NewMongoBuildRepo(storage.MongoConfig{URI: uri, Database: cfg.GetMongoDatabase()})
		if err == nil {
			logging.Info("🗃️ История сборок: MongoDB %s", uri)
			return repo
		}
		logging.Warn("⚠️ MongoDB недоступна (%v)", err)
	}
	return storage.NewMemoryBuildRepo()
}

// newEventBus JetStream при заданном nats_url, иначе шина в памяти
func newEventBus(cfg *config.EventBusConfig) eventbus.EventBus {
	if url := cfg.GetNATSURL(); url != "" {
		bus, err := eventbus.NewJetStreamBus(url, cfg.GetStream(), cfg.GetRetention())
		if err == nil {
			logging.Info("📨 Шина событий: NATS JetStream %s (поток %s)", url, cfg.GetStream())
			return bus
		}
		logging.Warn("⚠️ NATS недоступен (%v), используется шина в памяти", err)
	}
	return eventbus.NewMemoryBus(cfg.GetBuffer())
}

// newCache Redis при заданном redis_url, иначе кеш в памяти
func newCache(cfg *config.CacheConfig) cache.CacheRepo {
	cacheCfg := cache.CacheConfig{
		RedisURL:   cfg.GetRedisURL(),
		DefaultTTL: cfg.GetTTL(),
	}
	if cacheCfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cacheCfg)
		if err == nil {
			logging.Info("🗄️ Кеш геометрии: Redis %s", cacheCfg.RedisURL)
			return redisCache
		}
		logging.Warn("⚠️ Redis недоступен (%v), используется кеш в памяти", err)
	}
	return cache.NewMemoryCache(cacheCfg)
}

func main() {
	var (
		configPath = flag.String("config", "", "Путь к YAML конфигурации (по умолчанию $VOXMESH_CONFIG)")
		skipBuild  = flag.Bool("serve-only", false, "Не перестраивать геометрию, только отдавать сохранённую")
		noServe    = flag.Bool("build-only", false, "Построить геометрию и выйти")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	// === ЛОГИРОВАНИЕ ===
	logging.SetLogDir(cfg.Logging.Dir)
	if err := logging.InitDefaultLogger("voxmesh"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	level := logging.ParseLevel(cfg.Logging.GetLevel())
	logging.Default().SetLevels(level, logging.TRACE)
	for _, component := range []string{"mesher", "storage", "api", "cache", "eventbus"} {
		logging.GetComponentLogger(component).SetLevels(level, logging.TRACE)
	}

	logging.Info("🧊 Запуск voxmesh: мир %s, чанк %s, сид %d",
		cfg.World.Dims(), cfg.World.ChunkDims(), cfg.World.GetSeed())

	// === КОМПОНЕНТЫ ===
	materials, err := material.LoadFile(cfg.Materials.GetPath())
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки материалов: %v", err)
	}

	store, err := meshstore.Open(cfg.Storage.GetDataPath(), meshstore.WithCompression(cfg.Storage.CompressEnabled()))
	if err != nil {
		log.Fatalf("❌ Ошибка открытия хранилища: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// === ТРАССИРОВКА ===
	shutdownTracing, err := observability.InitTelemetry(ctx, cfg.Telemetry.GetService(), cfg.Telemetry.GetEndpoint())
	if err != nil {
		logging.Warn("⚠️ OpenTelemetry не инициализирован: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer shutdownTracing(context.Background())

	// === ШИНА СОБЫТИЙ И КЕШ ===
	webhooks := api.NewOutboundWebhookManager(cfg.Telemetry.GetService(), logging.GetAPILogger())
	for _, hook := range cfg.Server.Webhooks {
		webhooks.AddWebhook(api.OutboundWebhook{Name: hook.Name, URL: hook.URL, Secret: hook.Secret, Events: hook.Events, RetryCount: 3})
	}

	bus := newEventBus(&cfg.EventBus)
	defer func() {
		bus.Close()
		webhooks.Wait()
	}()
	if _, err := eventbus.StartLoggingListener(bus, logging.GetComponentLogger("eventbus")); err != nil {
		logging.Warn("⚠️ Логгер событий не запущен: %v", err)
	}
	prometheus.MustRegister(eventbus.NewStatsCollector(bus))

	builds := newBuildRepo(&cfg.History)
	defer builds.Close()
	if _, err := storage.RecordBuilds(ctx, bus, builds, logging.GetStorageLogger()); err != nil {
		logging.Warn("⚠️ История сборок не подключена: %v", err)
	}

	if _, err := webhooks.Attach(ctx, bus); err != nil {
		logging.Warn("⚠️ Webhook'и не подключены: %v", err)
	}

	meshCache := newCache(&cfg.Cache)
	defer meshCache.Close()
	cached := cache.NewCachedMeshes(store, meshCache, cfg.Cache.GetTTL(), logging.GetComponentLogger("cache"))
	if _, err := cached.InvalidateOnBuild(ctx, bus); err != nil {
		logging.Warn("⚠️ Сброс кеша по событиям не подключён: %v", err)
	}

	if !*skipBuild {
		metrics := mesher.NewMetrics(prometheus.DefaultRegisterer)
		pipeline, err := app.NewPipeline(cfg, materials, store,
			app.WithMetrics(metrics),
			app.WithLogger(logging.Default()),
			app.WithEventBus(bus),
		)
		if err != nil {
			log.Fatalf("❌ Ошибка создания прогона: %v", err)
		}
		res, err := pipeline.Run(ctx)
		if err != nil {
			logging.Error("❌ Ошибка построения геометрии: %v", err)
			bus.Close()
			store.Close()
			os.Exit(1)
		}
		logging.Info("✅ Геометрия сохранена: сборка %s, %d вершин", res.BuildID, res.Vertices)
	}

	if *noServe || !cfg.Server.Enabled {
		logging.Info("👋 REST API выключен, завершение работы")
		return
	}

	// === REST API ===
	var issuer *auth.Issuer
	if secret := cfg.Server.GetAdminSecret(); secret != "" {
		issuer, err = auth.NewIssuerFromBase64(secret, 0)
		if err != nil {
			log.Fatalf("❌ Некорректный admin_secret: %v", err)
		}
		logging.Info("🔐 Административные маршруты /api/admin включены")
	}

	restPort := ":" + strconv.Itoa(cfg.Server.GetAPIPort())
	server, err := api.NewRestServer(api.Config{
		Port:      restPort,
		Meshes:    cached,
		Materials: materials,
		Cache:     cached,
		Deleter:   store,
		Auth:      issuer,
		Builds:    builds,
		Webhooks:  webhooks,
	})
	if err != nil {
		log.Fatalf("❌ Ошибка создания REST API: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	logging.Info("   🌐 REST API: http://localhost%s", restPort)
	logging.Info("   ❤️  Health check: http://localhost%s/health", restPort)
	logging.Info("   💡 curl http://localhost%s/api/chunks/0/0/0", restPort)

	select {
	case <-ctx.Done():
		logging.Info("📡 Получен сигнал, завершение работы...")
	case err := <-errCh:
		if err != nil {
			logging.Error("❌ REST API остановлен с ошибкой: %v", err)
		}
	}

	// === GRACEFUL SHUTDOWN ===
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("❌ Ошибка остановки REST API: %v", err)
	}

	logging.Info("👋 Сервер успешно остановлен")
}
