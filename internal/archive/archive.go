// Package archive uploads a JSONL session report to S3-compatible storage
// when a session ends.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/groblegark/tempo/internal/model"
	"github.com/groblegark/tempo/internal/store"
)

// header is the first JSONL record in a session report.
type header struct {
	Version   string    `json:"version"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	UnitCount int       `json:"unit_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// S3Archiver writes session reports to an S3-compatible bucket.
type S3Archiver struct {
	client *s3.Client
	store  store.Store
	bucket string
	prefix string
}

// NewS3Archiver creates an archiver. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Archiver(ctx context.Context, st store.Store, bucket, prefix, region, endpoint string) (*S3Archiver, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Archiver{
		client: s3.NewFromConfig(cfg, s3opts...),
		store:  st,
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// ArchiveSession builds the session report and uploads it as
// <prefix>/<session-id>.jsonl.
func (a *S3Archiver) ArchiveSession(ctx context.Context, session *model.Session, stats *model.SessionStats) error {
	data, err := BuildReport(ctx, a.store, session, stats)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s/%s.jsonl", a.prefix, session.ID)

	contentType := "application/x-ndjson"
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// BuildReport renders a session as JSONL: a header line, a stats line, then
// one line per break, activity unit, and analysis record.
func BuildReport(ctx context.Context, st store.Store, session *model.Session, stats *model.SessionStats) ([]byte, error) {
	units, err := st.GetActivities(ctx, session.ID, model.ActivityFilter{})
	if err != nil {
		return nil, fmt.Errorf("get activities: %w", err)
	}
	breaks, err := st.GetBreaks(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("get breaks: %w", err)
	}
	analyses, err := st.GetAnalyses(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("get analyses: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	lines := []any{
		header{
			Version:   "1",
			Type:      "header",
			Timestamp: time.Now().UTC(),
			SessionID: session.ID,
			UnitCount: len(units),
		},
		record{Type: "session", Data: session},
		record{Type: "stats", Data: stats},
	}
	for _, b := range breaks {
		lines = append(lines, record{Type: "break", Data: b})
	}
	for _, u := range units {
		lines = append(lines, record{Type: "activity", Data: u})
	}
	for _, an := range analyses {
		lines = append(lines, record{Type: "analysis", Data: an})
	}
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode report line: %w", err)
		}
	}
	return buf.Bytes(), nil
}
