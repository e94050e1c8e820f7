package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/platefare/restaurant-payouts/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBankInfoRequestValidate(t *testing.T) {
	valid := BankInfoRequest{
		RestaurantID:      uuid.New(),
		BankName:          "First Federal",
		AccountNumber:     "000123456",
		RoutingNumber:     "021000021",
		AccountHolderName: "Restaurant LLC",
	}

	cases := []struct {
		name   string
		mutate func(*BankInfoRequest)
		ok     bool
	}{
		{name: "valid", mutate: func(r *BankInfoRequest) {}, ok: true},
		{name: "missing_restaurant", mutate: func(r *BankInfoRequest) { r.RestaurantID = uuid.Nil }},
		{name: "missing_bank_name", mutate: func(r *BankInfoRequest) { r.BankName = " " }},
		{name: "missing_account", mutate: func(r *BankInfoRequest) { r.AccountNumber = "" }},
		{name: "short_routing", mutate: func(r *BankInfoRequest) { r.RoutingNumber = "12345" }},
		{name: "alpha_routing", mutate: func(r *BankInfoRequest) { r.RoutingNumber = "02100002a" }},
		{name: "missing_holder", mutate: func(r *BankInfoRequest) { r.AccountHolderName = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			err := req.Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func TestSaveBankInfoReplacesActive(t *testing.T) {
	store := repository.NewMemory()
	svc := NewBankService(store)
	ctx := context.Background()
	restaurant := uuid.New()

	first, err := svc.SaveBankInfo(ctx, BankInfoRequest{
		RestaurantID:      restaurant,
		BankName:          "First Federal",
		AccountNumber:     "111",
		RoutingNumber:     "021000021",
		AccountHolderName: "Owner",
	})
	require.NoError(t, err)
	assert.True(t, first.IsActive)

	second, err := svc.SaveBankInfo(ctx, BankInfoRequest{
		RestaurantID:      restaurant,
		BankName:          "Second National",
		AccountNumber:     "222",
		RoutingNumber:     "021000021",
		AccountHolderName: "Owner",
	})
	require.NoError(t, err)

	// Exactly one active record, and it is the most recent save.
	total, active := store.BankInfoCount(restaurant)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)

	got, err := svc.GetActiveBankInfo(ctx, restaurant)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Equal(t, "Second National", got.BankName)
}

func TestGetActiveBankInfoNotFound(t *testing.T) {
	svc := NewBankService(repository.NewMemory())
	_, err := svc.GetActiveBankInfo(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrBankInfoNotFound)
}
