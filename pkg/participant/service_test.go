package participant

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/Geniuskaa/participant_registry/pkg/collection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
)

type countingRecorder struct {
	mu   sync.Mutex
	seen map[string]int
}

func (c *countingRecorder) Observe(op, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string]int)
	}
	c.seen[op+"/"+outcome]++
}

// brokenStore fails every call, optionally after letting Get succeed or miss.
type brokenStore struct {
	collection.Store
	getErr error
	sets   int
}

func (b *brokenStore) List(context.Context) ([]collection.Item, error) {
	return nil, errors.New("connection refused")
}

func (b *brokenStore) Get(context.Context, string) (collection.Item, error) {
	return collection.Item{}, b.getErr
}

func (b *brokenStore) Set(context.Context, string, collection.Props) (collection.Item, error) {
	b.sets++
	return collection.Item{}, errors.New("connection refused")
}

func newTestService(t *testing.T) (*Service, *collection.Memory) {
	store := collection.NewMemory("participants")
	return NewService(store, zaptest.NewLogger(t)), store
}

func TestAddThenGet(t *testing.T) {
	ctx := context.Background()
	serv, _ := newTestService(t)

	added, err := serv.Add(ctx, validRequest())
	require.NoError(t, err)

	got, err := serv.GetByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, added, got)
	assert.Equal(t, Validate(validRequest()).Participant, got)
}

func TestAddConflictWinsOverValidation(t *testing.T) {
	ctx := context.Background()
	serv, _ := newTestService(t)

	_, err := serv.Add(ctx, validRequest())
	require.NoError(t, err)

	_, err = serv.Add(ctx, validRequest())
	assert.ErrorIs(t, err, ErrConflict)

	bad := Request{Email: "a@b.com"}
	_, err = serv.Add(ctx, bad)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAddInvalidDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	serv, store := newTestService(t)

	req := validRequest()
	req.DOB = "2000-01-01"

	_, err := serv.Add(ctx, req)
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "dob", verr.Fields[0].Field)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestAddDropsUnknownFields(t *testing.T) {
	ctx := context.Background()
	serv, store := newTestService(t)

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{
		"email": "a@b.com", "firstName": "A", "lastName": "B", "dob": "2000/01/01",
		"work": {"companyName": "X", "salary": 100, "currency": "USD", "bonus": 5},
		"home": {"country": "C", "city": "D", "street": "E"},
		"active": true, "admin": true
	}`), &req))

	_, err := serv.Add(ctx, req)
	require.NoError(t, err)

	item, err := store.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.NotContains(t, item.Props, "admin")
	assert.NotContains(t, item.Props["work"], "bonus")
	assert.NotContains(t, item.Props["home"], "street")
}

func TestSoftDeleteLifecycle(t *testing.T) {
	ctx := context.Background()
	serv, store := newTestService(t)

	_, err := serv.Add(ctx, validRequest())
	require.NoError(t, err)

	snapshot, err := serv.SoftDelete(ctx, "a@b.com")
	require.NoError(t, err)
	assert.True(t, snapshot.Active, "returns the record as it was")

	item, err := store.Get(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, false, item.Props["active"])
	assert.Equal(t, "A", item.Props["firstName"], "other fields untouched")

	_, err = serv.SoftDelete(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrAlreadyDeleted)

	_, err = serv.GetByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrGone)
	_, err = serv.GetWork(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrGone)
	_, err = serv.GetHome(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrGone)
}

func TestSoftDeleteMissing(t *testing.T) {
	serv, _ := newTestService(t)

	_, err := serv.SoftDelete(context.Background(), "nobody@b.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFragments(t *testing.T) {
	ctx := context.Background()
	serv, _ := newTestService(t)

	_, err := serv.Add(ctx, validRequest())
	require.NoError(t, err)

	work, err := serv.GetWork(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, Work{CompanyName: "X", Salary: 100, Currency: "USD"}, work)

	home, err := serv.GetHome(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, Home{Country: "C", City: "D"}, home)

	_, err = serv.GetWork(ctx, "nobody@b.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	serv, _ := newTestService(t)

	t.Run("missing record", func(t *testing.T) {
		_, err := serv.Update(ctx, "a@b.com", validRequest())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	_, err := serv.Add(ctx, validRequest())
	require.NoError(t, err)

	t.Run("full replace", func(t *testing.T) {
		req := validRequest()
		req.FirstName = "Alice"
		req.Home = &HomeRequest{Country: "NZ", City: "Wellington"}

		p, err := serv.Update(ctx, "a@b.com", req)
		require.NoError(t, err)
		assert.Equal(t, "Alice", p.FirstName)
		assert.Equal(t, Home{Country: "NZ", City: "Wellington"}, p.Home)
	})

	t.Run("invalid payload", func(t *testing.T) {
		req := validRequest()
		req.Work = nil

		_, err := serv.Update(ctx, "a@b.com", req)
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("email cannot change", func(t *testing.T) {
		req := validRequest()
		req.Email = "other@b.com"

		_, err := serv.Update(ctx, "a@b.com", req)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{"email"}, fields(verr.Fields))
	})

	t.Run("active flag follows payload", func(t *testing.T) {
		req := validRequest()
		req.Active = json.RawMessage("false")
		_, err := serv.Update(ctx, "a@b.com", req)
		require.NoError(t, err)

		_, err = serv.GetByEmail(ctx, "a@b.com")
		assert.ErrorIs(t, err, ErrGone)

		req.Active = json.RawMessage("true")
		_, err = serv.Update(ctx, "a@b.com", req)
		require.NoError(t, err, "deleted records can still be updated")

		_, err = serv.GetByEmail(ctx, "a@b.com")
		assert.NoError(t, err)
	})
}

func TestListDetailsPartitions(t *testing.T) {
	ctx := context.Background()
	serv, store := newTestService(t)

	for _, email := range []string{"a@b.com", "c@d.com", "e@f.com"} {
		req := validRequest()
		req.Email = email
		_, err := serv.Add(ctx, req)
		require.NoError(t, err)
	}
	_, err := serv.SoftDelete(ctx, "c@d.com")
	require.NoError(t, err)

	// Written by hand without an active prop: counts as active.
	_, err = store.Set(ctx, "g@h.com", collection.Props{"firstName": "G"})
	require.NoError(t, err)

	active, err := serv.ListDetails(ctx, FilterActive)
	require.NoError(t, err)
	deleted, err := serv.ListDetails(ctx, FilterDeleted)
	require.NoError(t, err)

	keys := func(entries []Entry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Key
		}
		return out
	}

	assert.Equal(t, []string{"a@b.com", "e@f.com", "g@h.com"}, keys(active))
	assert.Equal(t, []string{"c@d.com"}, keys(deleted))
	assert.Equal(t, "g@h.com", active[2].Participant.Email)

	all, err := serv.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(active)+len(deleted))
}

func TestListDetailsEmpty(t *testing.T) {
	serv, _ := newTestService(t)

	entries, err := serv.ListDetails(context.Background(), FilterDeleted)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStoreFailuresSurface(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	store := &brokenStore{getErr: errors.New("timeout")}
	serv := NewService(store, zaptest.NewLogger(t), WithRecorder(rec))

	_, err := serv.List(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = serv.ListDetails(ctx, FilterActive)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = serv.GetByEmail(ctx, "a@b.com")
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = serv.Add(ctx, validRequest())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, store.sets, "no write after a failed existence check")

	store.getErr = collection.ErrNotFound
	_, err = serv.Add(ctx, validRequest())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, 1, store.sets)

	assert.Equal(t, 2, rec.seen["Add/error"])
	assert.Equal(t, 1, rec.seen["List/error"])
	assert.Equal(t, "error", Outcome(err))
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "invalid", Outcome(&ValidationError{}))
	assert.Equal(t, "not_found", Outcome(ErrNotFound))
	assert.Equal(t, "gone", Outcome(ErrGone))
	assert.Equal(t, "conflict", Outcome(ErrConflict))
	assert.Equal(t, "already_deleted", Outcome(ErrAlreadyDeleted))
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	serv, _ := newTestService(t)

	dup := validRequest()
	bad := validRequest()
	bad.Email = "c@d.com"
	bad.DOB = "01.01.2000"

	results := serv.Import(ctx, []ImportRow{
		{Row: 2, Request: validRequest()},
		{Row: 3, Request: dup},
		{Row: 4, Request: bad},
	})

	require.Len(t, results, 3)
	assert.Equal(t, ImportAdded, results[0].Status)
	assert.Equal(t, ImportFailed, results[1].Status)
	assert.Equal(t, ErrConflict.Error(), results[1].Message)
	assert.Equal(t, ImportFailed, results[2].Status)
	assert.Equal(t, []string{"dob"}, fields(results[2].Errors))
}
