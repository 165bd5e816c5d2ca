package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"voltcare/domain"
	"voltcare/handlers"
	"voltcare/kafka"
	"voltcare/logging"
	"voltcare/service"

	"log/slog"

	"github.com/gorilla/mux"
	"github.com/hashicorp/consul/api"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// initTracer initializes OpenTelemetry tracing against the OTLP endpoint.
func initTracer(logger *slog.Logger) (func(), error) {
	endpoint := os.Getenv("OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "jaeger:4318"
	}
	logger.Info("Initializing tracer", "otlp_endpoint", endpoint)

	exporter, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath("/v1/traces"),
	)
	if err != nil {
		logger.Error("Failed to create OTLP exporter", "error", err)
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	resources := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String("voltcare"),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter, sdktrace.WithExportTimeout(5*time.Second))),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		logger.Info("Shutting down tracer provider")
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}, nil
}

func connectToMongoDB(uri string, retries int, delay time.Duration, logger *slog.Logger) (*mongo.Client, error) {
	var client *mongo.Client
	var err error

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		client, err = mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err == nil {
			err = client.Ping(ctx, nil)
			if err == nil {
				cancel()
				logger.Info("Connected to MongoDB", "uri", uri)
				return client, nil
			}
		}
		cancel()
		logger.Error("Failed to connect to MongoDB", "attempt", i+1, "max_attempts", retries, "error", err)
		if i < retries-1 {
			time.Sleep(delay)
		}
	}
	return nil, fmt.Errorf("failed to connect to MongoDB after %d retries: %w", retries, err)
}

// registerWithConsul registers the service with the local Consul agent so the
// gateway can discover it. Skipped when CONSUL_ADDRESS is unset.
func registerWithConsul(serviceName, servicePort string, logger *slog.Logger) {
	consulAddr := os.Getenv("CONSUL_ADDRESS")
	if consulAddr == "" {
		logger.Info("CONSUL_ADDRESS not set, skipping service registration")
		return
	}
	consulConfig := api.DefaultConfig()
	consulConfig.Address = consulAddr
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		logger.Error("Failed to create Consul client", "error", err)
		return
	}

	registration := &api.AgentServiceRegistration{
		ID:      serviceName + "-" + servicePort,
		Name:    serviceName,
		Port:    8080,
		Address: serviceName,
		Check: &api.AgentServiceCheck{
			HTTP:     fmt.Sprintf("http://%s:%s/health", serviceName, servicePort),
			Interval: "10s",
			Timeout:  "5s",
		},
	}
	if err := consulClient.Agent().ServiceRegister(registration); err != nil {
		logger.Error("Failed to register with Consul", "error", err)
		return
	}
	logger.Info("Registered with Consul", "service", serviceName, "consul", consulAddr)
}

func main() {
	logger, logFile, err := logging.NewLogger()
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	logger.Info("Starting voltcare", "app", "voltcare", "timestamp", time.Now().Unix())

	shutdown, err := initTracer(logger)
	if err != nil {
		logger.Error("Failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer shutdown()

	// Pick the store backend. MONGO_URI selects MongoDB; the default is the
	// in-memory store used in development and tests.
	var store domain.Store
	if mongoURI := os.Getenv("MONGO_URI"); mongoURI != "" {
		client, err := connectToMongoDB(mongoURI, 5, 2*time.Second, logger)
		if err != nil {
			logger.Error("Failed to connect to MongoDB", "error", err)
			os.Exit(1)
		}
		store = domain.NewMongoStore(client)
		logger.Info("Using MongoDB store")
	} else {
		store = domain.NewMemoryStore()
		logger.Info("Using in-memory store")
	}

	notifier := service.NewStoreNotifier(store, logger)
	dispatcher := service.NewDispatcher(store, notifier, logger)
	wallet := service.NewWalletLedger(store, logger)
	tracking := service.NewTrackingFeed(store, logger)

	// Event pipeline. Outbox events accumulate in the store either way; the
	// processor drains them when a broker is configured.
	if bootstrap := os.Getenv("KAFKA_BOOTSTRAP"); bootstrap != "" {
		schemaRegistryURL := os.Getenv("SCHEMA_REGISTRY_URL")
		if schemaRegistryURL == "" {
			schemaRegistryURL = "http://schema-registry:8081"
		}
		topic := os.Getenv("KAFKA_TOPIC")
		if topic == "" {
			topic = "service-events"
		}
		producer, err := kafka.NewProducer(bootstrap, schemaRegistryURL, topic, logger)
		if err != nil {
			logger.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		processor := kafka.NewOutboxProcessor(store, producer, logger)
		go func() {
			if err := processor.Start(context.Background()); err != nil {
				logger.Error("Outbox processor stopped", "error", err)
			}
		}()
	} else {
		logger.Info("KAFKA_BOOTSTRAP not set, event publishing disabled")
	}

	serviceName := os.Getenv("SERVICE_NAME")
	if serviceName == "" {
		serviceName = "voltcare"
	}
	servicePort := os.Getenv("SERVICE_PORT")
	if servicePort == "" {
		servicePort = "8080"
	}
	registerWithConsul(serviceName, servicePort, logger)

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("voltcare"))
	handlers.NewHandler(store, dispatcher, wallet, tracking, notifier, logger).Register(r)

	logger.Info("Starting voltcare", "port", servicePort)
	if err := http.ListenAndServe(":"+servicePort, r); err != nil {
		logger.Error("Failed to start server", "error", err)
		os.Exit(1)
	}
}
