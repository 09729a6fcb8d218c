package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmacy_inventory/internal/inventory"
	"pharmacy_inventory/internal/store"
)

func run(t *testing.T, db, stdin string, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--db", db}, args...))

	err := root.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	out, err := run(t, db, "", "init")
	require.NoError(t, err)
	assert.Equal(t, "Database initialized\n", out)

	out, err = run(t, db, "", "seed")
	require.NoError(t, err)
	assert.Equal(t, "Initialized database with 31 sample products\n", out)

	out, err = run(t, db, "", "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "use --force")

	t.Run("list sorted", func(t *testing.T) {
		out, err := run(t, db, "", "list", "--sort", "price", "--desc")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		require.Len(t, lines, len(inventory.SampleProducts)+1)
		assert.True(t, strings.HasPrefix(lines[0], "ID"))
		assert.Contains(t, lines[1], "Albuterol Inhaler")
		assert.Contains(t, lines[len(lines)-1], "Aspirin")
	})

	t.Run("list bad sort key", func(t *testing.T) {
		_, err := run(t, db, "", "list", "--sort", "id")
		require.Error(t, err)
		assert.Equal(t, "Sort key must be one of name, price, quantity", err.Error())
	})

	t.Run("add set show", func(t *testing.T) {
		out, err := run(t, db, "", "add", "Test Drug", "12.5", "40")
		require.NoError(t, err)
		assert.Contains(t, out, "Added Test Drug")

		_, err = run(t, db, "", "add", "Test Drug", "1", "1")
		require.Error(t, err)
		assert.Equal(t, "A product with this name already exists", err.Error())

		_, err = run(t, db, "", "add", "Other Drug", "0", "1")
		require.Error(t, err)
		assert.Equal(t, "Price must be greater than 0", err.Error())

		out, err = run(t, db, "", "set", "Test Drug", "9")
		require.NoError(t, err)
		assert.Equal(t, "Test Drug quantity set to 9\n", out)

		out, err = run(t, db, "", "show", "Test Drug")
		require.NoError(t, err)
		assert.Contains(t, out, "Quantity: 9")
		assert.Contains(t, out, "Price:    12.50")

		_, err = run(t, db, "", "show", "Ghost")
		require.Error(t, err)
		assert.Equal(t, "Product not found", err.Error())
	})

	t.Run("names", func(t *testing.T) {
		out, err := run(t, db, "", "names")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		assert.Equal(t, "Acetaminophen", lines[0])
	})

	t.Run("adjust", func(t *testing.T) {
		out, err := run(t, db, "1\nAspirin\n-20\n2\n", "adjust")
		require.NoError(t, err)
		assert.Contains(t, out, "Aspirin quantity is now 280")
		assert.Contains(t, out, "Goodbye")
	})

	t.Run("history without audits", func(t *testing.T) {
		out, err := run(t, db, "", "history", "Aspirin")
		require.NoError(t, err)
		assert.Equal(t, "No recorded changes\n", out)
	})
}

func TestCommands_Args(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cli.db")

	_, err := run(t, db, "", "add", "OnlyName")
	assert.Error(t, err)

	_, err = run(t, db, "", "--driver", "oracle", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

type adjusterStub struct {
	calls []string
	err   error
	qty   int
}

func (s *adjusterStub) AdjustQuantity(_ context.Context, name, deltaRaw string) (int, error) {
	s.calls = append(s.calls, name+" "+deltaRaw)
	return s.qty, s.err
}

func setupLoop(t *testing.T) *inventory.Service {
	t.Helper()
	st, err := store.Open(store.Config{DSN: filepath.Join(t.TempDir(), "loop.db")})
	require.NoError(t, err)
	require.NoError(t, st.Initialize(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	svc := inventory.NewService(st, nil)
	_, err = svc.AddProduct(context.Background(), "Aspirin", "7.50", "300")
	require.NoError(t, err)
	return svc
}

func TestRunAdjustLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("transcript", func(t *testing.T) {
		svc := setupLoop(t)
		in := strings.NewReader("1\nAspirin\n-20\n1\nAspirin\n5\n1\nAspirin\n-1000\n1\nGhost\n1\n1\nAspirin\nabc\n7\n2\n")
		var out bytes.Buffer

		require.NoError(t, RunAdjustLoop(ctx, in, &out, svc))

		got := out.String()
		assert.Contains(t, got, "1) Update quantity by delta")
		assert.Contains(t, got, "2) Exit")
		assert.Contains(t, got, "Aspirin quantity is now 280")
		assert.Contains(t, got, "Aspirin quantity is now 285")
		assert.Contains(t, got, "Not updated: Quantity must stay between 0 and 999999")
		assert.Contains(t, got, "Not updated: Product not found")
		assert.Contains(t, got, "Not updated: Quantity change must be a valid integer")
		assert.Contains(t, got, "Please enter 1 or 2")
		assert.True(t, strings.HasSuffix(got, "Goodbye\n"))

		qty, err := svc.QuantityOf(ctx, "Aspirin")
		require.NoError(t, err)
		assert.Equal(t, 285, qty)
	})

	t.Run("end of input exits cleanly", func(t *testing.T) {
		stub := &adjusterStub{}
		var out bytes.Buffer
		assert.NoError(t, RunAdjustLoop(ctx, strings.NewReader(""), &out, stub))
		assert.NoError(t, RunAdjustLoop(ctx, strings.NewReader("1\nAspirin\n"), &out, stub))
		assert.Empty(t, stub.calls)
	})

	t.Run("storage fault ends the loop", func(t *testing.T) {
		stub := &adjusterStub{err: &store.Error{Op: "adjust quantity", Err: errors.New("disk I/O error")}}
		var out bytes.Buffer
		err := RunAdjustLoop(ctx, strings.NewReader("1\nAspirin\n5\n2\n"), &out, stub)
		require.Error(t, err)
		assert.Equal(t, "Inventory storage is unavailable, please try again", err.Error())
		assert.Equal(t, []string{"Aspirin 5"}, stub.calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RunAdjustLoop(cctx, strings.NewReader("2\n"), &bytes.Buffer{}, &adjusterStub{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
