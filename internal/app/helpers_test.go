package app

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docintell/internal/model"
)

func TestConversationTitle(t *testing.T) {
	assert.Equal(t, "New conversation", conversationTitle("   "))
	assert.Equal(t, "short question", conversationTitle("  short \n question "))

	long := strings.Repeat("é", 60)
	got := conversationTitle(long)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
}

func TestTrimHistory(t *testing.T) {
	msgs := func(sizes ...int) []model.Message {
		out := make([]model.Message, len(sizes))
		for i, n := range sizes {
			out[i] = model.Message{ID: string(rune('a' + i)), Content: strings.Repeat("x", n)}
		}
		return out
	}

	got := trimHistory(msgs(1, 1, 1, 1), 2, 100)
	assert.Equal(t, []string{"c", "d"}, ids(got))

	got = trimHistory(msgs(50, 30, 30), 10, 70)
	assert.Equal(t, []string{"b", "c"}, ids(got))

	got = trimHistory(msgs(200), 10, 100)
	assert.Empty(t, got)
}

func ids(ms []model.Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("doc")
			defer unlock()
			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, km.len())
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := newKeyedMutex()
	unlockA := km.Lock("a")
	done := make(chan struct{})
	go func() {
		unlock := km.Lock("b")
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	unlockA()
}
