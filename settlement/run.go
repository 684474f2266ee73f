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

package settlement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
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

	"payrail/platform/shared/types"
)

// Prometheus metrics
var (
	promSettlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payrail_settlements_total",
			Help: "Total number of settlement attempts by outcome code",
		},
		[]string{"code"},
	)
	promSettlementDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payrail_settlement_duration_milliseconds",
			Help:    "Settlement duration in milliseconds",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"path"},
	)
	promReplaysDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payrail_settlement_replays_total",
			Help: "Total number of replayed transaction identifiers rejected",
		},
	)
)

func init() {
	prometheus.MustRegister(promSettlementsTotal)
	prometheus.MustRegister(promSettlementDuration)
	prometheus.MustRegister(promReplaysDetected)
}

// chainRPCEnv maps supported networks to their RPC endpoint env vars.
var chainRPCEnv = map[types.Network]string{
	types.NetworkBase:        "CHAIN_RPC_BASE",
	types.NetworkBaseSepolia: "CHAIN_RPC_BASE_SEPOLIA",
	types.NetworkPolygon:     "CHAIN_RPC_POLYGON",
}

// Run starts the settlement service. It blocks until the HTTP server exits.
func Run() {
	port := getEnv("PORT", "8082")

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

	signer, err := LoadSignerFromEnv(ctx)
	if err != nil {
		log.Fatalf("Failed to load settlement signer: %v", err)
	}
	if signer == nil {
		log.Println("No settlement signer configured - gasless execution disabled")
	} else {
		log.Printf("Settlement signer loaded: %s", signer.Address.Hex())
	}

	opts := []Option{}
	if signer != nil {
		opts = append(opts, WithSigner(signer))
	}
	for network, envVar := range chainRPCEnv {
		rpcURL := os.Getenv(envVar)
		if rpcURL == "" {
			continue
		}
		config, err := types.GetNetworkConfig(network)
		if err != nil {
			continue
		}
		chain, err := NewEthChain(rpcURL, signer, config.ChainID)
		if err != nil {
			log.Fatalf("Failed to connect to %s: %v", network, err)
		}
		opts = append(opts, WithChain(network, chain))
		log.Printf("Chain client ready for %s", network)
	}

	service := NewService(
		NewPostgresClaimStore(db),
		NewPostgresEventStore(db),
		NewPostgresTreasuryStore(db),
		opts...,
	)

	router := mux.NewRouter()
	router.HandleFunc("/api/v1/settle", settleHandler(service)).Methods("POST")
	router.HandleFunc("/health", healthHandler(db)).Methods("GET")
	router.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	log.Printf("Settlement service listening on :%s", port)
	if err := http.ListenAndServe(":"+port, corsHandler.Handler(router)); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func settleHandler(service *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		var req SettleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.TenantID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
			return
		}

		path := "onchain"
		if req.Authorization != nil {
			path = "gasless"
		}

		resp, err := service.Settle(r.Context(), &req)
		promSettlementDuration.WithLabelValues(path).Observe(float64(time.Since(start).Milliseconds()))

		if err != nil {
			var serr *SettlementError
			if errors.As(err, &serr) {
				promSettlementsTotal.WithLabelValues(serr.Code).Inc()
				if serr.Code == CodeReplayDetected {
					promReplaysDetected.Inc()
				}
				writeJSON(w, serr.Status, map[string]interface{}{"error": serr})
				return
			}
			promSettlementsTotal.WithLabelValues(CodeInternal).Inc()
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			return
		}

		promSettlementsTotal.WithLabelValues("SETTLED").Inc()
		writeJSON(w, http.StatusOK, resp)
	}
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		code := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{
			"status":    status,
			"service":   "settlement",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
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
