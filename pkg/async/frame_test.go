package async

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunFrame_AwaitsForkedWork(t *testing.T) {
	pool := NewPool(2)

	frame := RunFrame(context.Background(), pool, func(ctx context.Context, pool *Pool) error {
		r := Fork(pool, func(ctx context.Context) (int, error) { return 10, nil })
		v, err := Await(ctx, r)
		if err != nil {
			return err
		}
		if v != 10 {
			return errors.New("unexpected value")
		}
		return nil
	})

	_, err := frame.Wait(context.Background())
	require.NoError(t, err)
}

func TestRunFrame_PropagatesAwaitedError(t *testing.T) {
	pool := NewPool(2)
	boom := errors.New("boom")

	frame := RunFrame(context.Background(), pool, func(ctx context.Context, pool *Pool) error {
		r := Fork(pool, func(ctx context.Context) (int, error) { return 0, boom })
		_, err := Await(ctx, r)
		return err
	})

	_, err := frame.Wait(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunFrame_RecoversPanic(t *testing.T) {
	pool := NewPool(1)
	frame := RunFrame(context.Background(), pool, func(ctx context.Context, pool *Pool) error {
		panic("frame exploded")
	})

	_, err := frame.Wait(context.Background())
	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
}
