package s3blob

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stakevault/internal/domain"
	"github.com/alanyoungcy/stakevault/internal/ledger"
)

// memWriter captures uploaded blobs in memory.
type memWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemWriter() *memWriter {
	return &memWriter{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(data); err != nil {
		return err
	}
	m.objects[path] = buf.Bytes()
	m.types[path] = contentType
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "application/octet-stream")
}

// memAudit is a minimal in-memory audit store.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, domain.AuditEntry{
		ID:        int64(len(m.entries)) + 1,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (m *memAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if opts.Until != nil && !e.CreatedAt.Before(*opts.Until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func TestArchiveLiquidated(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewMemoryStore()
	writer := newMemWriter()
	audit := &memAudit{}
	holder := common.HexToAddress("0xAAAA00000000000000000000000000000000AAAA")

	old := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rec, err := store.CreateStake(ctx, &domain.Stake{
		Owner: holder, Amount: big.NewInt(1000), Reward: big.NewInt(50),
		DurationDays: 90, CreatedAt: old,
	})
	require.NoError(t, err)
	_, err = store.Liquidate(ctx, holder, rec.ID, func(*domain.Stake) error { return nil })
	require.NoError(t, err)

	// A second, still-active stake must not be archived.
	_, err = store.CreateStake(ctx, &domain.Stake{
		Owner: holder, Amount: big.NewInt(500), Reward: big.NewInt(25),
		DurationDays: 30, CreatedAt: old,
	})
	require.NoError(t, err)

	arch := NewArchiver(writer, store, audit)
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	count, err := arch.ArchiveLiquidated(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	body, ok := writer.objects["archive/liquidated/2026-08.jsonl"]
	require.True(t, ok)
	assert.Equal(t, "application/x-ndjson", writer.types["archive/liquidated/2026-08.jsonl"])

	line := strings.TrimSpace(string(body))
	assert.NotContains(t, line, "\n")
	assert.Contains(t, line, `"holder":"0xaaaa00000000000000000000000000000000aaaa"`)
	assert.Contains(t, line, `"amount":1000`)
	assert.Contains(t, line, `"reward":50`)

	// The archival itself lands in the audit log.
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "archive.liquidated", audit.entries[0].Event)
	assert.Equal(t, int64(1), audit.entries[0].Detail["count"])
}

func TestArchiveLiquidatedEmpty(t *testing.T) {
	ctx := context.Background()
	writer := newMemWriter()
	arch := NewArchiver(writer, ledger.NewMemoryStore(), &memAudit{})

	count, err := arch.ArchiveLiquidated(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.objects)
}

func TestArchiveAudit(t *testing.T) {
	ctx := context.Background()
	writer := newMemWriter()
	audit := &memAudit{}
	require.NoError(t, audit.Log(ctx, "stake.opened", map[string]any{"stake_id": uint64(1)}))
	require.NoError(t, audit.Log(ctx, "stake.closed", map[string]any{"stake_id": uint64(1)}))

	arch := NewArchiver(writer, ledger.NewMemoryStore(), audit)
	cutoff := time.Now().UTC().Add(time.Hour)

	count, err := arch.ArchiveAudit(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	body := writer.objects[archivePath("audit", cutoff)]
	require.NotEmpty(t, body)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.Len(t, lines, 2)
}
