// Package archive implements the cold-storage drain for ring-buffered
// trade and quote events: on each cycle it drains every tracked symbol's
// ring buffers and uploads the drained contents as gzipped NDJSON objects
// to S3, keyed by symbol and drain timestamp.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/reflexcore/ingestcore/internal/model"
	"github.com/reflexcore/ingestcore/internal/ringbuffer"
)

// Uploader is the subset of the S3 client the archiver needs; satisfied by
// *s3.Client.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver periodically drains a ring buffer Set and uploads the drained
// events to S3 as gzipped NDJSON.
type Archiver struct {
	s3       Uploader
	buffers  *ringbuffer.Set
	bucket   string
	prefix   string
	interval time.Duration
}

// New creates an Archiver. It is a no-op (Run returns immediately) if
// bucket is empty, so archival stays opt-in.
func New(uploader Uploader, buffers *ringbuffer.Set, bucket, prefix string, interval time.Duration) *Archiver {
	return &Archiver{s3: uploader, buffers: buffers, bucket: bucket, prefix: prefix, interval: interval}
}

// Run starts the periodic drain loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	if a.bucket == "" {
		log.Println("archive: no bucket configured; cold archival disabled")
		return
	}
	log.Printf("archive: draining to s3://%s/%s every %v", a.bucket, a.prefix, a.interval)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.cycle(context.Background())
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	now := time.Now().UTC()
	for _, sym := range a.buffers.Symbols() {
		pair := a.buffers.GetOrCreate(sym)

		trades := pair.Trades.Drain()
		if len(trades) > 0 {
			if err := a.upload(ctx, sym, "trades", now, trades); err != nil {
				log.Printf("archive: upload trades for %s: %v", sym, err)
			}
		}

		quotes := pair.Quotes.Drain()
		if len(quotes) > 0 {
			if err := a.upload(ctx, sym, "quotes", now, quotes); err != nil {
				log.Printf("archive: upload quotes for %s: %v", sym, err)
			}
		}
	}
}

func (a *Archiver) upload(ctx context.Context, sym model.Symbol, kind string, ts time.Time, items any) error {
	body, err := gzipNDJSON(items)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s/%s.jsonl.gz", a.prefix, kind, sym, ts.Format("20060102T150405.000000000"))
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// gzipNDJSON encodes items, which must be a slice, as newline-delimited
// JSON and gzips the result.
func gzipNDJSON(items any) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	switch v := items.(type) {
	case []model.TradeEvent:
		for _, item := range v {
			if err := enc.Encode(item); err != nil {
				gz.Close()
				return nil, err
			}
		}
	case []model.QuoteEvent:
		for _, item := range v {
			if err := enc.Encode(item); err != nil {
				gz.Close()
				return nil, err
			}
		}
	default:
		gz.Close()
		return nil, fmt.Errorf("archive: unsupported item type %T", items)
	}

	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
