// Copyright 2025 PayRail
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package router

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"payrail/platform/cache"
	"payrail/platform/facilitator"
	"payrail/platform/policy"
	"payrail/platform/routing"
)

// Prometheus metrics
var (
	promPlansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payrail_router_plans_total",
			Help: "Total number of plan requests by outcome",
		},
		[]string{"outcome"},
	)
	promPlanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payrail_router_plan_duration_milliseconds",
			Help:    "Plan request duration in milliseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		},
	)
)

func init() {
	prometheus.MustRegister(promPlansTotal)
	prometheus.MustRegister(promPlanDuration)
}

const healthProbeInterval = 30 * time.Second

// Run starts the router service. It blocks until the HTTP server exits.
func Run() {
	port := getEnv("PORT", "8081")

	db, err := sql.Open("postgres", databaseURL())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Facilitator registry: stored configs first, then the optional file.
	registry := facilitator.NewRegistry(facilitator.WithStore(facilitator.NewPostgresStore(db)))
	if err := registry.LoadFromStore(ctx); err != nil {
		log.Printf("Failed to load facilitators from store: %v", err)
	}
	if configFile := os.Getenv("FACILITATOR_CONFIG_FILE"); configFile != "" {
		if err := registry.LoadFromFile(configFile); err != nil {
			log.Fatalf("Failed to load facilitator config %s: %v", configFile, err)
		}
	}
	if len(registry.List()) == 0 {
		log.Println("No facilitators configured - plans will return empty candidate sets")
	}
	registry.StartHealthLoop(context.Background(), healthProbeInterval, routing.DefaultProbeTimeout)

	// Cache: postgres store with an optional redis hot layer.
	cacheOpts := []cache.ServiceOption{}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		hot, err := cache.NewRedisLayer(redisURL, 0)
		if err != nil {
			log.Printf("Redis unavailable - cache runs postgres-only: %v", err)
		} else {
			cacheOpts = append(cacheOpts, cache.WithHotLayer(hot))
			log.Println("Cache hot layer connected")
		}
	}
	if embedder := cache.NewHTTPEmbedderFromEnv(); embedder != nil {
		cacheOpts = append(cacheOpts, cache.WithEmbedder(embedder))
		log.Println("Semantic cache embedder configured")
	}
	cacheService := cache.NewService(cache.NewPostgresStore(db), cacheOpts...)

	// Analytics sink is optional; without it events are dropped.
	var analytics AnalyticsSink
	if mongoURI := os.Getenv("MONGO_URL"); mongoURI != "" {
		sink, err := NewMongoSink(ctx, mongoURI, getEnv("MONGO_DATABASE", "payrail_analytics"))
		if err != nil {
			log.Printf("Analytics store unavailable - events will be dropped: %v", err)
		} else {
			analytics = sink
			log.Println("Analytics sink connected")
		}
	}

	policyRepo := policy.NewPostgresRepository(db)
	policyEngine := policy.NewEngine(policyRepo, policy.NewTokenParserFromEnv())
	mandates := policy.NewMandateService(policyRepo, NewBudgetNotifier(analytics))

	engineOpts := []routing.EngineOption{
		routing.WithCache(cacheService),
		routing.WithRepository(routing.NewPostgresRepository(db)),
	}
	if scanner := routing.NewHTTPRiskScannerFromEnv(); scanner != nil {
		engineOpts = append(engineOpts, routing.WithScanner(scanner))
		log.Println("Risk scanner configured")
	}
	engine := routing.NewEngine(registry, engineOpts...)

	service := NewService(policyEngine, mandates, engine, WithAnalytics(analytics))

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/plan", planHandler(service)).Methods("POST")
	router.HandleFunc("/api/v1/mandates/verify", mandateVerifyHandler(mandates)).Methods("POST")
	router.HandleFunc("/api/v1/mandates/usage", mandateUsageHandler(mandates)).Methods("POST")
	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.HandleFunc("/metrics", metricsHandler()).Methods("GET")
	router.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	log.Printf("Router service listening on :%s", port)
	if err := http.ListenAndServe(":"+port, corsHandler.Handler(router)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// databaseURL builds the connection string from separate env vars, falling
// back to DATABASE_URL.
func databaseURL() string {
	host := os.Getenv("DATABASE_HOST")
	password := os.Getenv("DATABASE_PASSWORD")
	if host == "" || password == "" {
		return os.Getenv("DATABASE_URL")
	}

	dbPort := getEnv("DATABASE_PORT", "5432")
	name := getEnv("DATABASE_NAME", "payrail")
	user := getEnv("DATABASE_USER", "payrail_app")
	sslMode := getEnv("DATABASE_SSLMODE", "require")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(user), url.QueryEscape(password), host, dbPort, name, sslMode)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
