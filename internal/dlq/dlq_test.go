package dlq_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/rtc-telemetry/internal/dlq"
)

func TestNewFileQueue(t *testing.T) {
	t.Run("creates base directory", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "nested", "dlq")
		queue, err := dlq.NewFileQueue(base)

		require.NoError(t, err)
		require.NotNil(t, queue)
		defer queue.Close()

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestFileQueue_Write(t *testing.T) {
	base := t.TempDir()
	queue, err := dlq.NewFileQueue(base)
	require.NoError(t, err)
	defer queue.Close()

	payload := map[string]any{
		"type":       float64(1),
		"session_id": float64(12345),
		"event":      map[string]any{"name": "created"},
	}

	err = queue.Write(context.Background(), payload, errors.New("insert failed"), "persistence")
	require.NoError(t, err)

	files, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(base, files[0].Name()))
	require.NoError(t, err)

	var entry dlq.FailedEvent
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "insert failed", entry.Error)
	assert.Equal(t, "persistence", entry.Reason)
	assert.Equal(t, payload, entry.Payload)
	assert.False(t, entry.Timestamp.IsZero())
	assert.WithinDuration(t, time.Now().UTC(), entry.Timestamp, time.Minute)
}

func TestFileQueue_Write_AppendsLines(t *testing.T) {
	base := t.TempDir()
	queue, err := dlq.NewFileQueue(base)
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := queue.Write(ctx, map[string]any{"seq": float64(i)}, errors.New("boom"), "persistence")
		require.NoError(t, err)
	}

	files, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, files, 1, "same-day writes share one file")

	f, err := os.Open(filepath.Join(base, files[0].Name()))
	require.NoError(t, err)
	defer f.Close()

	lines := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry dlq.FailedEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines++
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, 5, lines)
}

func TestFileQueue_ConcurrentWrites(t *testing.T) {
	base := t.TempDir()
	queue, err := dlq.NewFileQueue(base)
	require.NoError(t, err)
	defer queue.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, queue.Write(ctx, map[string]any{"type": float64(2)}, errors.New("boom"), "persistence"))
		}()
	}
	wg.Wait()

	files, err := os.ReadDir(base)
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(filepath.Join(base, files[0].Name()))
	require.NoError(t, err)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lines := 0
	for scanner.Scan() {
		lines++
	}
	assert.Equal(t, 10, lines)
}
