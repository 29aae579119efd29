package handoff

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/docquiz-backend/internal/config"
	"github.com/stemsi/docquiz-backend/internal/model"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s, err := NewRedisStore(rdb, testSecret, 10*time.Minute, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}
	return s, mr
}

func sampleRecord(title string) *Record {
	return &Record{
		ExportID: uuid.New(),
		Title:    title,
		Document: model.QuizDocument{
			Summary: "Summary with unicode: café, 数学",
			Mcqs: []model.McqItem{
				{Question: "2+2?", Options: []string{"3", "4"}, CorrectAnswer: "4", Reference: "p.1"},
				{Question: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris"},
			},
		},
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	in := sampleRecord("Biology")

	handle, err := s.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load(ctx, handle)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !reflect.DeepEqual(out.Document, in.Document) {
		t.Errorf("document = %+v, want %+v", out.Document, in.Document)
	}
	if out.ExportID != in.ExportID || out.Title != in.Title || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Errorf("record = %+v, want %+v", out, in)
	}
}

func TestLoadConsumesRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	handle, err := s.Save(ctx, sampleRecord("once"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := s.Load(ctx, handle); err != nil {
		t.Fatalf("first Load: %v", err)
	}
	if _, err := s.Load(ctx, handle); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Load err = %v, want ErrNotFound", err)
	}
}

func TestRecordExpires(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	handle, err := s.Save(ctx, sampleRecord("late"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	mr.FastForward(11 * time.Minute)

	if _, err := s.Load(ctx, handle); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after ttl err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentSavesDoNotOverwrite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	const n = 20
	handles := make([]string, n)
	titles := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			titles[i] = uuid.NewString()
			h, err := s.Save(ctx, sampleRecord(titles[i]))
			if err != nil {
				t.Errorf("Save %d: %v", i, err)
				return
			}
			handles[i] = h
		}()
	}
	wg.Wait()

	for i, h := range handles {
		rec, err := s.Load(ctx, h)
		if err != nil {
			t.Fatalf("Load %d: %v", i, err)
		}
		if rec.Title != titles[i] {
			t.Errorf("handle %d returned title %q, want %q", i, rec.Title, titles[i])
		}
	}
}

func TestTamperedRecordIsRejected(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	handle, err := s.Save(ctx, sampleRecord("secret"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	key := config.CacheKey.HandoffKey(handle)

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("read raw value: %v", err)
	}
	if raw == "" || strings.Contains(raw, "secret") {
		t.Fatalf("stored value should be sealed, got %q", raw)
	}

	b := []byte(raw)
	b[len(b)-1] ^= 0xff
	mr.Set(key, string(b))

	if _, err := s.Load(ctx, handle); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load tampered err = %v, want ErrNotFound", err)
	}
}

func TestRecordCannotMoveBetweenHandles(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	h1, _ := s.Save(ctx, sampleRecord("one"))
	h2, _ := s.Save(ctx, sampleRecord("two"))

	raw, _ := mr.Get(config.CacheKey.HandoffKey(h1))
	mr.Set(config.CacheKey.HandoffKey(h2), raw)

	if _, err := s.Load(ctx, h2); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load swapped err = %v, want ErrNotFound", err)
	}
}

func TestLoadRejectsMalformedHandle(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Load(context.Background(), "../../etc"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestWeakSecret(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()
	if _, err := NewRedisStore(rdb, "short", time.Minute, zerolog.Nop()); !errors.Is(err, ErrWeakSecret) {
		t.Errorf("err = %v, want ErrWeakSecret", err)
	}
}
