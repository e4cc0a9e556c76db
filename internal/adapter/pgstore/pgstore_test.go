package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"finrag/internal/adapter/embedding"
	"finrag/internal/domain"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	c, err := tcpostgres.Run(ctx, "pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("finrag"),
		tcpostgres.WithUsername("finrag"),
		tcpostgres.WithPassword("finrag"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestPgstoreBuildLoadRetrieve(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	dsn := startPostgres(t)

	builder, err := Open(ctx, dsn, embedding.NewHashEmbedder(0))
	require.NoError(t, err)
	defer builder.Close()

	chunks := []domain.Chunk{
		{ID: "c1", DocID: "d1", Text: "Revenue grew 10%.", Metadata: map[string]string{domain.MetaReportName: "a.pdf", domain.MetaReportID: "report_0"}},
		{ID: "c2", DocID: "d2", Text: "Costs fell 5%.", Metadata: map[string]string{domain.MetaReportName: "b.pdf", domain.MetaReportID: "report_1"}},
	}

	idx, err := builder.Build(ctx, "financial_reports", chunks)
	require.NoError(t, err)

	results, err := idx.Retrieve(ctx, "What was revenue growth?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Revenue grew 10%.", results[0].Text)
	assert.Equal(t, "a.pdf", results[0].ReportName())
	assert.Greater(t, results[0].Score, results[1].Score)

	loaded, found, err := builder.Load(ctx, "financial_reports")
	require.NoError(t, err)
	require.True(t, found)
	again, err := loaded.Retrieve(ctx, "What was revenue growth?", 2)
	require.NoError(t, err)
	assert.Equal(t, results, again)

	_, found, err = builder.Load(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	other, err := Open(ctx, dsn, embedding.NewHashEmbedder(64))
	require.NoError(t, err)
	defer other.Close()
	_, _, err = other.Load(ctx, "financial_reports")
	assert.ErrorIs(t, err, domain.ErrIndexIncompatible)
}

func TestTableName(t *testing.T) {
	name, err := tableName("financial_reports")
	require.NoError(t, err)
	assert.Equal(t, "finrag_idx_financial_reports", name)

	for _, bad := range []string{"", "drop table;", "1abc", "a-b"} {
		_, err := tableName(bad)
		assert.Error(t, err, bad)
	}
}
