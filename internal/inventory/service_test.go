package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy_inventory/internal/events"
	"pharmacy_inventory/internal/store"
	"pharmacy_inventory/internal/validation"
)

type sinkStub struct {
	mu     sync.Mutex
	events []events.StockEvent
	err    error
}

func (s *sinkStub) Emit(_ context.Context, ev events.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

func setup(t *testing.T) (*Service, *store.Store, *sinkStub) {
	t.Helper()

	st, err := store.Open(store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "inventory.db")})
	require.NoError(t, err)
	require.NoError(t, st.Initialize(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	sink := &sinkStub{}
	return NewService(st, sink), st, sink
}

func TestSampleProductsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range SampleProducts {
		_, err := validation.ValidateName(p.Name)
		assert.NoError(t, err, p.Name)
		assert.Greater(t, p.Price, 0.0, p.Name)
		assert.NoError(t, validation.CheckQuantity(p.Quantity), p.Name)
		assert.False(t, seen[p.Name], "duplicate sample %s", p.Name)
		seen[p.Name] = true
	}
	assert.Len(t, SampleProducts, 31)
}

func TestAddProduct(t *testing.T) {
	ctx := context.Background()
	svc, _, sink := setup(t)

	p, err := svc.AddProduct(ctx, "  Aspirin ", "7.50", "300")
	require.NoError(t, err)
	assert.Equal(t, "Aspirin", p.Name)
	require.Len(t, sink.events, 1)
	assert.Equal(t, events.KindAdded, sink.events[0].Kind)
	assert.Equal(t, 300, sink.events[0].Quantity)

	t.Run("duplicate", func(t *testing.T) {
		_, err := svc.AddProduct(ctx, "Aspirin", "1", "1")
		assert.ErrorIs(t, err, ErrDuplicateName)
		assert.Equal(t, "A product with this name already exists", UserMessage(err))
		assert.Len(t, sink.events, 1)
	})

	t.Run("validation message passes through", func(t *testing.T) {
		_, err := svc.AddProduct(ctx, "Ibuprofen", "free", "1")
		var verr *validation.Error
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, "Price must be a valid number", UserMessage(err))
	})
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _, sink := setup(t)
	_, err := svc.Seed(ctx, false)
	require.NoError(t, err)
	sink.events = nil

	qty, err := svc.SetQuantity(ctx, "Aspirin", "280")
	require.NoError(t, err)
	assert.Equal(t, 280, qty)

	got, err := svc.QuantityOf(ctx, "Aspirin")
	require.NoError(t, err)
	assert.Equal(t, 280, got)

	got, err = svc.QuantityOf(ctx, "Ibuprofen")
	require.NoError(t, err)
	assert.Equal(t, 250, got)

	require.Len(t, sink.events, 1)
	assert.Equal(t, events.KindSet, sink.events[0].Kind)
	assert.Equal(t, -20, sink.events[0].Delta)

	_, err = svc.SetQuantity(ctx, "Nonexistent", "5")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.SetQuantity(ctx, "Aspirin", "-5")
	assert.Equal(t, "Quantity must be 0 or greater", UserMessage(err))
}

func TestSetQuantity_ConcurrentDeltas(t *testing.T) {
	ctx := context.Background()
	svc, _, sink := setup(t)
	_, err := svc.AddProduct(ctx, "Aspirin", "7.50", "300")
	require.NoError(t, err)
	sink.events = nil

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			_, err := svc.SetQuantity(ctx, "Aspirin", strconv.Itoa(qty))
			assert.NoError(t, err)
		}(100 + i)
	}
	wg.Wait()

	final, err := svc.QuantityOf(ctx, "Aspirin")
	require.NoError(t, err)

	// each delta is taken against the level it replaced, so they add up
	require.Len(t, sink.events, 20)
	sum := 0
	for _, ev := range sink.events {
		sum += ev.Delta
	}
	assert.Equal(t, final-300, sum)
}

func TestAdjustQuantity(t *testing.T) {
	ctx := context.Background()
	svc, _, sink := setup(t)
	_, err := svc.AddProduct(ctx, "Aspirin", "7.50", "300")
	require.NoError(t, err)
	sink.events = nil

	qty, err := svc.AdjustQuantity(ctx, "Aspirin", "-25")
	require.NoError(t, err)
	assert.Equal(t, 275, qty)
	require.Len(t, sink.events, 1)
	assert.Equal(t, -25, sink.events[0].Delta)

	_, err = svc.AdjustQuantity(ctx, "Aspirin", "0")
	require.NoError(t, err)
	assert.Len(t, sink.events, 1, "no event for a zero delta")

	_, err = svc.AdjustQuantity(ctx, "Aspirin", "-276")
	assert.ErrorIs(t, err, store.ErrQuantityOutOfRange)
	assert.Equal(t, "Quantity must stay between 0 and 999999", UserMessage(err))

	_, err = svc.AdjustQuantity(ctx, "Ghost", "1")
	assert.ErrorIs(t, err, ErrProductNotFound)

	_, err = svc.AdjustQuantity(ctx, "Aspirin", "x")
	assert.Equal(t, "Quantity change must be a valid integer", UserMessage(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)
	for _, in := range [][3]string{{"Lisinopril", "25.99", "120"}, {"Aspirin", "7.50", "300"}, {"Ibuprofen", "9.75", "250"}} {
		_, err := svc.AddProduct(ctx, in[0], in[1], in[2])
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, "price", true)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 25.99, list[0].Price)
	assert.Equal(t, 7.50, list[2].Price)

	_, err = svc.List(ctx, "id", false)
	assert.ErrorIs(t, err, store.ErrInvalidSortKey)

	names, err := svc.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Aspirin", "Ibuprofen", "Lisinopril"}, names)

	_, err = svc.Get(ctx, "Ghost")
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	svc, _, sink := setup(t)

	n, err := svc.Seed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, len(SampleProducts), n)
	assert.Len(t, sink.events, len(SampleProducts))

	_, err = svc.AdjustQuantity(ctx, "Aspirin", "-100")
	require.NoError(t, err)

	n, err = svc.Seed(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, n, "non-empty store is left alone")
	qty, err := svc.QuantityOf(ctx, "Aspirin")
	require.NoError(t, err)
	assert.Equal(t, 200, qty)

	n, err = svc.Seed(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, len(SampleProducts), n)
	qty, err = svc.QuantityOf(ctx, "Aspirin")
	require.NoError(t, err)
	assert.Equal(t, 300, qty)
}

func TestSinkFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	svc, _, sink := setup(t)
	sink.err = errors.New("redis down")

	_, err := svc.AddProduct(ctx, "Aspirin", "7.50", "300")
	require.NoError(t, err)
	qty, err := svc.AdjustQuantity(ctx, "Aspirin", "5")
	require.NoError(t, err)
	assert.Equal(t, 305, qty)
}

func TestStorageFaults(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := setup(t)
	require.NoError(t, st.Close())

	_, err := svc.AddProduct(ctx, "Aspirin", "7.50", "300")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, "Inventory storage is unavailable, please try again", UserMessage(err))
	assert.Error(t, svc.Ping(ctx))

	assert.Equal(t, "Products to load must have distinct names", UserMessage(store.ErrDuplicateRecords))
	assert.Equal(t, "Unexpected error", UserMessage(errors.New("boom")))
	assert.Empty(t, UserMessage(nil))
}
