// Package main implements a small producer tool for development and
// operations: it persists a pending content request and publishes the
// matching queue message, in that order, so a worker never sees a
// message without a committed row.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/rich1edwards/vividly-mvp-sub007/internal/config"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/domain"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/logger"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/platform/postgres"
	"github.com/rich1edwards/vividly-mvp-sub007/internal/queue"
)

func main() {
	var (
		studentID  = flag.String("student", "", "student identifier (required)")
		query      = flag.String("query", "", "student query (required)")
		grade      = flag.Int("grade", 0, "grade level, 1-12 (required)")
		interest   = flag.String("interest", "", "student interest for personalization")
		modalities = flag.String("modalities", "text_only", "comma-separated requested modalities")
		preferred  = flag.String("preferred", "text_only", "preferred modality")
		corrID     = flag.String("correlation-id", "", "correlation id (defaults to the request id)")
	)
	flag.Parse()

	if *studentID == "" || *query == "" || *grade <= 0 {
		flag.Usage()
		log.Fatal("student, query and a positive grade are required")
	}

	if err := run(*studentID, *query, *grade, *interest, *modalities, *preferred, *corrID); err != nil {
		log.Fatalf("enqueue failed: %v", err)
	}
}

func run(studentID, query string, grade int, interest, modalities, preferred, corrID string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Worker.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := domain.NewContentRequest(corrID, studentID, query, grade)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Interest = interest
	req.PreferredModality = domain.Modality(preferred)
	req.RequestedModalities = parseModalities(modalities)

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	requestStore := postgres.NewPostgresRequestStore(db, appLogger)
	if err := requestStore.Create(ctx, req); err != nil {
		return fmt.Errorf("persisting request: %w", err)
	}

	payload := queue.RequestPayload{
		RequestID:           req.ID.String(),
		CorrelationID:       req.CorrelationID,
		StudentID:           req.StudentID,
		StudentQuery:        req.StudentQuery,
		GradeLevel:          req.GradeLevel,
		Interest:            req.Interest,
		RequestedModalities: modalityStrings(req.RequestedModalities),
		PreferredModality:   string(req.PreferredModality),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	queueClient, err := queue.Connect(ctx, cfg.Queue, appLogger)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer queueClient.Close()

	if err := queueClient.Publish(ctx, cfg.Queue.Subject, data); err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}

	fmt.Printf("enqueued request %s (correlation %s)\n", req.ID, req.CorrelationID)
	return nil
}

func parseModalities(raw string) []domain.Modality {
	var out []domain.Modality
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, domain.Modality(part))
	}
	if len(out) == 0 {
		out = []domain.Modality{domain.ModalityTextOnly}
	}
	return out
}

func modalityStrings(ms []domain.Modality) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = string(m)
	}
	return out
}
