package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"

	"storyline/pkg/session"
	"storyline/pkg/session/storetest"
	"storyline/pkg/store/redis"
)

func newTestStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	store := redis.NewFromClient(client, opts...)
	t.Cleanup(func() { store.Close() })

	return store, mr
}

func TestRedisStoreContract(t *testing.T) {
	store, _ := newTestStore(t)
	storetest.RunStoreContract(t, store)
}

func TestSaveUsesPrefixedKeys(t *testing.T) {
	store, mr := newTestStore(t, redis.WithPrefix("bot:session:"))
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	if !mr.Exists("bot:session:" + sess.ID) {
		t.Fatal("expected session key under configured prefix")
	}
}

func TestSessionsExpireWithTTL(t *testing.T) {
	store, mr := newTestStore(t, redis.WithTTL(time.Minute))
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Load(ctx, sess.ID); err != session.ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound after TTL", err)
	}
}
