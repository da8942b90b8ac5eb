package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_ScopesByUserAndRoute(t *testing.T) {
	a := Key("1", "POST", "/v1/problems", "abc")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key("1", "POST", "/v1/problems", "abc"))
	assert.NotEqual(t, a, Key("2", "POST", "/v1/problems", "abc"))
	assert.NotEqual(t, a, Key("1", "PUT", "/v1/problems", "abc"))
	assert.NotEqual(t, RequestHash([]byte("a")), RequestHash([]byte("b")))
}

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test:idem"), mr
}

func TestRedisStore_ReserveCompleteReplay(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	rec := NewPending("k1", "7", "h1", time.Now(), time.Hour)

	existing, err := s.Reserve(ctx, rec)
	require.NoError(t, err)
	assert.Nil(t, existing)
	assert.True(t, mr.Exists("test:idem:k1"))

	existing, err = s.Reserve(ctx, rec)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, StatusPending, existing.Status)

	rec.Status = StatusCompleted
	rec.ResponseStatus = 201
	rec.ContentType = "application/json"
	rec.ResponseBody = []byte(`{"id":1}`)
	require.NoError(t, s.Complete(ctx, rec))

	existing, err = s.Reserve(ctx, NewPending("k1", "7", "h1", time.Now(), time.Hour))
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, StatusCompleted, existing.Status)
	assert.Equal(t, 201, existing.ResponseStatus)
	assert.JSONEq(t, `{"id":1}`, string(existing.ResponseBody))
}

func TestRedisStore_ReleaseAndExpiry(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Reserve(ctx, NewPending("k2", "7", "h", time.Now(), time.Minute))
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k2"))
	existing, err := s.Reserve(ctx, NewPending("k2", "7", "h", time.Now(), time.Minute))
	require.NoError(t, err)
	assert.Nil(t, existing)

	mr.FastForward(2 * time.Minute)
	existing, err = s.Reserve(ctx, NewPending("k2", "7", "h", time.Now(), time.Minute))
	require.NoError(t, err)
	assert.Nil(t, existing, "expired record must not block a new reservation")
}

func TestRedisStore_ConcurrentReserveHasOneWinner(t *testing.T) {
	s, _ := newRedisStore(t)
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			existing, err := s.Reserve(ctx, NewPending("race", "1", "h", time.Now(), time.Minute))
			if err == nil && existing == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newRedisStore(t)
	mr.Close()
	_, err := s.Reserve(context.Background(), NewPending("k", "1", "h", time.Now(), time.Minute))
	require.ErrorIs(t, err, ErrUnavailable)
}

// fakeDynamo implements the conditional put used by DynamoStore.
type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	now   time.Time
	fail  error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}, now: time.Now()}
}

func itemKey(m map[string]types.AttributeValue) string {
	return m["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	k := itemKey(in.Item)
	if in.ConditionExpression != nil {
		if cur, ok := f.items[k]; ok {
			var rec Record
			if err := attributevalue.UnmarshalMap(cur, &rec); err != nil {
				return nil, err
			}
			if rec.TTL >= f.now.Unix() {
				return nil, &types.ConditionalCheckFailedException{Message: aws.String("exists")}
			}
		}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, itemKey(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStore_ReserveCompleteRelease(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStoreWithClient(fake, "idem")
	s.now = func() time.Time { return fake.now }
	ctx := context.Background()

	rec := NewPending("d1", "3", "hash", fake.now, time.Hour)
	existing, err := s.Reserve(ctx, rec)
	require.NoError(t, err)
	assert.Nil(t, existing)

	existing, err = s.Reserve(ctx, rec)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "hash", existing.RequestHash)
	assert.Equal(t, StatusPending, existing.Status)

	rec.Status = StatusCompleted
	rec.ResponseStatus = 200
	rec.ResponseBody = []byte("ok")
	require.NoError(t, s.Complete(ctx, rec))
	existing, err = s.Reserve(ctx, rec)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, StatusCompleted, existing.Status)
	assert.Equal(t, []byte("ok"), existing.ResponseBody)

	require.NoError(t, s.Release(ctx, "d1"))
	existing, err = s.Reserve(ctx, rec)
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestDynamoStore_ExpiredRecordIsReplaced(t *testing.T) {
	fake := newFakeDynamo()
	s := NewDynamoStoreWithClient(fake, "idem")
	ctx := context.Background()

	old := NewPending("d2", "3", "old", fake.now.Add(-2*time.Hour), time.Hour)
	_, err := s.Reserve(ctx, old)
	require.NoError(t, err)

	existing, err := s.Reserve(ctx, NewPending("d2", "3", "new", fake.now, time.Hour))
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestDynamoStore_BackendError(t *testing.T) {
	fake := newFakeDynamo()
	fake.fail = errors.New("throttled")
	s := NewDynamoStoreWithClient(fake, "idem")
	_, err := s.Reserve(context.Background(), NewPending("d3", "1", "h", time.Now(), time.Hour))
	require.ErrorIs(t, err, ErrUnavailable)
}
