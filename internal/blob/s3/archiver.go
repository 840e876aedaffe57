package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/vantagegraph/vantage/internal/domain"
)

const (
	// archivePageLimit caps how many signals one archive object holds. Large
	// retention sweeps are split into multiple uploads.
	archivePageLimit = 5000

	// multipartThreshold is the payload size at or above which the multipart
	// uploader is preferred over a single PutObject.
	multipartThreshold = 8 * 1024 * 1024

	contentTypeJSONL = "application/x-ndjson"
)

// SignalArchiveStore provides the read and delete access the archiver needs.
// The Postgres SignalStore satisfies it.
type SignalArchiveStore interface {
	// ListBefore returns signals with a timestamp strictly before the cutoff,
	// oldest first, up to limit rows.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Quote, error)

	// DeleteBefore removes exactly the identified rows older than the cutoff
	// and returns the number deleted.
	DeleteBefore(ctx context.Context, before time.Time, ids []string) (int64, error)
}

// multipartPutter is the optional fast path for large archive objects. The
// concrete Writer in this package implements it.
type multipartPutter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ObjectChecker confirms an uploaded object is visible. The Reader in this
// package implements it.
type ObjectChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves market signals older than a cutoff from the primary store to
// object storage as JSONL, then deletes the uploaded rows. Deletion happens
// only after the upload succeeded, and only for the exact rows uploaded, so a
// failed run never loses data.
type Archiver struct {
	writer  domain.BlobWriter
	signals SignalArchiveStore
	check   ObjectChecker
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, signals SignalArchiveStore) *Archiver {
	return &Archiver{
		writer:  writer,
		signals: signals,
	}
}

// WithVerifier makes the archiver confirm each uploaded object is visible
// before the source rows are deleted. Returns the archiver for chaining.
func (a *Archiver) WithVerifier(c ObjectChecker) *Archiver {
	a.check = c
	return a
}

// archiveRecord is the JSONL serialisation of one archived signal.
type archiveRecord struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"ts"`
	Platform          domain.Platform `json:"platform"`
	EventID           string          `json:"event_id"`
	PropositionName   string          `json:"proposition_name"`
	Price             float64         `json:"price"`
	Side              string          `json:"side"`
	Size              float64         `json:"size"`
	ProbabilityPct    float64         `json:"probability_pct"`
	LiquidityDepthUSD float64         `json:"liquidity_depth_usd"`
	BidAskSpreadPct   *float64        `json:"bid_ask_spread_pct,omitempty"`
	Volume24h         *float64        `json:"volume_24h,omitempty"`
	Confidence        int             `json:"confidence"`
	ConfidenceFlag    string          `json:"confidence_flag,omitempty"`
	RawPayload        json.RawMessage `json:"raw_payload,omitempty"`
}

func toArchiveRecord(q domain.Quote) archiveRecord {
	return archiveRecord{
		ID:                q.ID,
		Timestamp:         q.Timestamp,
		Platform:          q.Platform,
		EventID:           q.EventID,
		PropositionName:   q.PropositionName,
		Price:             q.Price.Float(),
		Side:              string(q.Side),
		Size:              q.Size,
		ProbabilityPct:    q.ProbabilityPct(),
		LiquidityDepthUSD: q.LiquidityDepthUSD,
		BidAskSpreadPct:   q.BidAskSpreadPct,
		Volume24h:         q.Volume24h,
		Confidence:        q.Confidence,
		ConfidenceFlag:    q.ConfidenceFlag,
		RawPayload:        json.RawMessage(q.RawPayload),
	}
}

// ArchiveSignals pages through signals older than the cutoff, uploads each
// page as one JSONL object, deletes the uploaded rows, and returns the total
// number of rows archived.
func (a *Archiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for {
		quotes, err := a.signals.ListBefore(ctx, before, archivePageLimit)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive signals query: %w", err)
		}
		if len(quotes) == 0 {
			return total, nil
		}

		buf, err := marshalSignals(quotes)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive signals marshal: %w", err)
		}

		path := signalPath(quotes[0].Timestamp)
		if err := a.upload(ctx, path, buf); err != nil {
			return total, fmt.Errorf("s3blob: archive signals upload: %w", err)
		}
		if a.check != nil {
			ok, err := a.check.Exists(ctx, path)
			if err != nil {
				return total, fmt.Errorf("s3blob: archive signals verify: %w", err)
			}
			if !ok {
				return total, fmt.Errorf("s3blob: archive signals verify: %s not visible after upload", path)
			}
		}

		ids := make([]string, len(quotes))
		for i, q := range quotes {
			ids[i] = q.ID
		}
		deleted, err := a.signals.DeleteBefore(ctx, before, ids)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive signals delete: %w", err)
		}
		total += deleted

		if len(quotes) < archivePageLimit {
			return total, nil
		}
	}
}

func (a *Archiver) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		if mp, ok := a.writer.(multipartPutter); ok {
			return mp.PutMultipart(ctx, path, bytes.NewReader(buf), int64(len(buf)/4))
		}
	}
	return a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
}

// signalPath builds the object key for an archive page, partitioned by the
// UTC day of the page's oldest signal.
//
//	signals/2026/01/31/8f7d7f2e-....jsonl
func signalPath(ts time.Time) string {
	return fmt.Sprintf("signals/%s/%s.jsonl", ts.UTC().Format("2006/01/02"), uuid.NewString())
}

// marshalSignals serialises quotes as newline-delimited JSON, one compact
// object per line.
func marshalSignals(quotes []domain.Quote) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, q := range quotes {
		if err := enc.Encode(toArchiveRecord(q)); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
