package id

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	assert.NotEqual(t, gen.Generate().String(), gen.Generate().String())
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{ConnPrefix, SessionPrefix} {
		got := gen.GenerateWithPrefix(prefix)

		require.True(t, strings.HasPrefix(got, prefix+"_"), got)
		parts := strings.Split(got, "_")
		require.Len(t, parts, 2)
		_, err := ulid.Parse(parts[1])
		assert.NoError(t, err)
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewConnID().String(), "conn_"))
	assert.True(t, strings.HasPrefix(NewSessionID().String(), "gen_"))

	_, err := uuid.Parse(NewRequestID().String())
	assert.NoError(t, err)
}

func TestSessionIDCarriesCreationTime(t *testing.T) {
	before := time.Now().Add(-time.Second)
	sid := NewSessionID()

	parsed, err := ulid.Parse(strings.TrimPrefix(sid.String(), SessionPrefix+"_"))
	require.NoError(t, err)
	assert.True(t, ulid.Time(parsed.Time()).After(before))
}

func TestConcurrentGeneration(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var (
		mu   sync.Mutex
		seen = make(map[ConnID]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				cid := NewConnID()
				mu.Lock()
				seen[cid] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}
