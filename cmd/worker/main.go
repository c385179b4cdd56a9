package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/bru-digital/qteria/internal/bootstrap"
	"github.com/bru-digital/qteria/internal/shared/config"
	"github.com/bru-digital/qteria/internal/shared/metrics"
	"github.com/bru-digital/qteria/internal/shared/telemetry"
	"github.com/bru-digital/qteria/internal/workerproc"
)

const (
	defaultVisibilitySeconds  = 1500
	defaultPollConcurrency    = 4
	defaultShutdownTimeoutSec = 30
)

func main() {
	cfg := config.Load()

	queueURL := strings.TrimSpace(os.Getenv("QT_SQS_QUEUE_URL"))
	if queueURL == "" {
		log.Fatal("QT_SQS_QUEUE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visibilitySeconds := envInt("QT_SQS_VISIBILITY_TIMEOUT_SECONDS", defaultVisibilitySeconds)
	concurrency := envInt("QT_POLL_CONCURRENCY", defaultPollConcurrency)
	shutdownTimeout := time.Duration(envInt("QT_SHUTDOWN_TIMEOUT_SECONDS", defaultShutdownTimeoutSec)) * time.Second

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}
	var sqsClient sqsAPI = sqs.NewFromConfig(awsCfg)

	app, err := bootstrap.Build(cfg, bootstrap.RoleWorker)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}

	sem := make(chan struct{}, max(1, concurrency))
	var wg sync.WaitGroup

	log.Printf("worker started queue=%s concurrency=%d visibility=%ds", queueURL, concurrency, visibilitySeconds)

pollLoop:
	for {
		select {
		case <-ctx.Done():
			break pollLoop
		default:
		}

		resp, err := sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
			VisibilityTimeout:   int32(visibilitySeconds),
			AttributeNames:      []sqstypes.QueueAttributeName{sqstypes.QueueAttributeName("ApproximateReceiveCount")},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				break pollLoop
			}
			log.Printf("receive message: %v", err)
			continue
		}

		for _, msg := range resp.Messages {
			select {
			case <-ctx.Done():
				break pollLoop
			case sem <- struct{}{}:
			}
			metrics.IncJobsReceived()
			wg.Add(1)
			go func(m sqstypes.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				handleMessage(ctx, sqsClient, queueURL, app.Runner, m)
			}(msg)
		}
	}

	log.Printf("shutdown requested, waiting up to %s for in-flight jobs", shutdownTimeout)
	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(shutdownTimeout):
		log.Printf("shutdown timeout reached; exiting with in-flight jobs")
	}
}

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func handleMessage(ctx context.Context, client sqsAPI, queueURL string, proc workerproc.AssessmentProcessor, msg sqstypes.Message) {
	body := aws.ToString(msg.Body)

	decoded, meta, parseErr := workerproc.ParseMessage(body)
	if parseErr != nil {
		// A payload that does not parse never gets better on redelivery.
		fields := baseFields(msg, decoded.AssessmentID, decoded.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = parseErr.Error()
		telemetry.Error("worker.assessment.parse_failed", fields)
		if deleteMessage(ctx, client, queueURL, msg, decoded.AssessmentID, decoded.RequestID) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	telemetry.Info("worker.assessment.received", baseFields(msg, decoded.AssessmentID, decoded.RequestID))

	if err := workerproc.HandleMessage(ctx, proc, body); err != nil {
		fields := baseFields(msg, decoded.AssessmentID, decoded.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.assessment.failed", fields)
		metrics.IncJobsFailed()
		if workerproc.Unrecoverable(err) {
			if deleteMessage(ctx, client, queueURL, msg, decoded.AssessmentID, decoded.RequestID) {
				metrics.IncJobsDeletedUnrecoverable()
			}
		}
		return
	}

	if deleteMessage(ctx, client, queueURL, msg, decoded.AssessmentID, decoded.RequestID) {
		telemetry.Info("worker.assessment.completed", baseFields(msg, decoded.AssessmentID, decoded.RequestID))
		metrics.IncJobsCompleted()
	}
}

func deleteMessage(ctx context.Context, client sqsAPI, queueURL string, msg sqstypes.Message, assessmentID, requestID string) bool {
	receipt := aws.ToString(msg.ReceiptHandle)
	if receipt == "" {
		fields := baseFields(msg, assessmentID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.assessment.delete_failed", fields)
		return false
	}
	if _, err := client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receipt),
	}); err != nil {
		fields := baseFields(msg, assessmentID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.assessment.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(msg sqstypes.Message, assessmentID, requestID string) map[string]any {
	fields := map[string]any{
		"assessment_id":  assessmentID,
		"request_id":     requestID,
		"sqs_message_id": aws.ToString(msg.MessageId),
		"receive_count":  receiveCount(msg),
	}
	return fields
}

func receiveCount(msg sqstypes.Message) int {
	raw, ok := msg.Attributes["ApproximateReceiveCount"]
	if !ok {
		return 0
	}
	count, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return count
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("%s invalid int: %v", key, err)
		return def
	}
	return val
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
