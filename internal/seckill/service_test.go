package seckill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeIDGen struct {
	next int64
	err  error
}

func (g *fakeIDGen) NextID(_ context.Context, _ string) (int64, error) {
	if g.err != nil {
		return 0, g.err
	}
	g.next++
	return g.next, nil
}

type fakeReserver struct {
	code int
	err  error

	gotVoucher int64
	gotUser    int64
	gotOrder   int64
}

func (r *fakeReserver) Reserve(_ context.Context, voucherID, userID, orderID int64) (int, error) {
	r.gotVoucher, r.gotUser, r.gotOrder = voucherID, userID, orderID
	return r.code, r.err
}

func TestSeckillVoucherSuccess(t *testing.T) {
	ids := &fakeIDGen{}
	reserver := &fakeReserver{code: 0}
	svc := NewService(ids, reserver)

	orderID, err := svc.SeckillVoucher(context.Background(), 7, 1001)
	require.NoError(t, err)
	require.Equal(t, int64(1), orderID)

	// 脚本收到的就是返回给调用方的订单 ID
	require.Equal(t, int64(7), reserver.gotVoucher)
	require.Equal(t, int64(1001), reserver.gotUser)
	require.Equal(t, orderID, reserver.gotOrder)
}

func TestSeckillVoucherStockInsufficient(t *testing.T) {
	svc := NewService(&fakeIDGen{}, &fakeReserver{code: 1})

	_, err := svc.SeckillVoucher(context.Background(), 7, 1001)
	require.ErrorIs(t, err, ErrStockInsufficient)
}

func TestSeckillVoucherDuplicate(t *testing.T) {
	svc := NewService(&fakeIDGen{}, &fakeReserver{code: 2})

	_, err := svc.SeckillVoucher(context.Background(), 7, 1001)
	require.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestSeckillVoucherIDGenFailure(t *testing.T) {
	wantErr := errors.New("redis unreachable")
	svc := NewService(&fakeIDGen{err: wantErr}, &fakeReserver{})

	_, err := svc.SeckillVoucher(context.Background(), 7, 1001)
	require.ErrorIs(t, err, wantErr)
}

func TestSeckillVoucherScriptFailure(t *testing.T) {
	wantErr := errors.New("redis unreachable")
	svc := NewService(&fakeIDGen{}, &fakeReserver{err: wantErr})

	_, err := svc.SeckillVoucher(context.Background(), 7, 1001)
	require.ErrorIs(t, err, wantErr)
}

func TestSeckillVoucherUnexpectedCode(t *testing.T) {
	svc := NewService(&fakeIDGen{}, &fakeReserver{code: 42})

	_, err := svc.SeckillVoucher(context.Background(), 7, 1001)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrStockInsufficient)
	require.NotErrorIs(t, err, ErrDuplicateOrder)
}
