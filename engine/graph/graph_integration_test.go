//go:build integration

package graph

import (
	"context"
	"os"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDriver(t *testing.T) neo4j.DriverWithContext {
	t.Helper()
	url := os.Getenv("NEO4J_URL")
	if url == "" {
		url = "neo4j://localhost:7687"
	}
	driver, err := neo4j.NewDriverWithContext(url, neo4j.NoAuth())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, driver.VerifyConnectivity(ctx))
	t.Cleanup(func() {
		_ = New(driver).Reset(ctx)
		_ = driver.Close(ctx)
	})
	return driver
}

func TestNeo4j_SaveCorpusAndThread(t *testing.T) {
	g := New(testDriver(t))
	ctx := context.Background()
	require.NoError(t, g.Reset(ctx))

	n, err := g.SaveCorpus(ctx, sampleRows())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	th, err := g.Thread(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "crash", th.Issue.Title)
	require.Len(t, th.Comments, 2)
	assert.Equal(t, "workaround", th.Comments[1].Body)

	issues, comments, err := g.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), issues)
	assert.Equal(t, int64(3), comments)
}
