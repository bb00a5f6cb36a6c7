package id

import (
	"bytes"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUnique(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	assert.NotEqual(t, id1.String(), id2.String())
	assert.Len(t, id1.String(), 26)
}

func TestGenerateMonotonicWithinMillisecond(t *testing.T) {
	gen := NewGenerator()
	fixed := time.Unix(1_700_000_000, 0)
	gen.now = func() time.Time { return fixed }

	ids := make([]string, 100)
	for i := range ids {
		ids[i] = gen.GenerateString()
	}

	assert.True(t, sort.StringsAreSorted(ids), "ids from one millisecond must stay ordered")
}

func TestGenerateWithPrefix(t *testing.T) {
	gen := NewGenerator()

	for _, prefix := range []string{CapturePrefix, TracePrefix, SpanPrefix} {
		id := gen.GenerateWithPrefix(prefix)

		require.True(t, strings.HasPrefix(id, prefix+"_"), id)
		parts := strings.Split(id, "_")
		require.Len(t, parts, 2)
		assert.True(t, IsValid(parts[1]))
		assert.True(t, IsValid(id))
	}
}

func TestTypedIDs(t *testing.T) {
	assert.True(t, strings.HasPrefix(NewCaptureID().String(), "cap_"))
	assert.True(t, strings.HasPrefix(NewTraceID().String(), "trace_"))
	assert.True(t, strings.HasPrefix(NewSpanID().String(), "span_"))
}

func TestCaptureIDsOrderedAcrossGoroutines(t *testing.T) {
	var (
		mu  sync.Mutex
		ids = make(map[CaptureID]struct{})
		wg  sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				capID := NewCaptureID()
				mu.Lock()
				ids[capID] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 400)
}

func TestTimestamp(t *testing.T) {
	gen := NewGenerator()
	fixed := time.UnixMilli(1_700_000_000_123)
	gen.now = func() time.Time { return fixed }

	ts, err := Timestamp(gen.GenerateWithPrefix(CapturePrefix))
	require.NoError(t, err)
	assert.True(t, fixed.Equal(ts))

	_, err = Timestamp("cap_not-a-ulid")
	assert.Error(t, err)
}

func TestDeterministicEntropy(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 64)
	fixed := time.UnixMilli(1_700_000_000_000)

	a := NewGeneratorWithEntropy(bytes.NewReader(seed))
	a.now = func() time.Time { return fixed }
	b := NewGeneratorWithEntropy(bytes.NewReader(seed))
	b.now = func() time.Time { return fixed }

	assert.Equal(t, a.GenerateString(), b.GenerateString())
}
