package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Logger is the structured logger used on the message-scoring hot path.
	// A no-op until Init runs, so library users and tests never nil-check it.
	Logger = zap.NewNop()

	scamMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardy_scam_messages_total",
			Help: "Total number of messages flagged as likely scam",
		},
		[]string{"outcome"},
	)

	moderationActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guardy_moderation_actions_total",
			Help: "Total number of moderation actions issued",
		},
		[]string{"action"},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guardy_message_processing_duration_seconds",
			Help:    "Time spent processing group messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(ctx context.Context, metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(scamMessagesTotal)
	prometheus.MustRegister(moderationActionsTotal)
	prometheus.MustRegister(messageProcessingDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

func RecordScamMessage(outcome string) {
	scamMessagesTotal.WithLabelValues(outcome).Inc()
}

func RecordModerationAction(action string) {
	moderationActionsTotal.WithLabelValues(action).Inc()
}

// StartMessageProcessing returns a func to be deferred with the final status.
func StartMessageProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		messageProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
