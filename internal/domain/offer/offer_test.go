package offer

import (
	"testing"
	"time"

	"marketplace-offer-service/internal/domain/shared"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDecideOutcome(t *testing.T) {
	tests := []struct {
		name    string
		leading string
		amount  string
		want    Outcome
	}{
		{name: "higher_wins", leading: "50.00", amount: "60.00", want: OutcomeWin},
		{name: "one_cent_higher_wins", leading: "60.00", amount: "60.01", want: OutcomeWin},
		{name: "tie_loses", leading: "60.00", amount: "60", want: OutcomeLose},
		{name: "lower_loses", leading: "60.00", amount: "55.00", want: OutcomeLose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideOutcome(decimal.RequireFromString(tt.leading), decimal.RequireFromString(tt.amount))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr error
	}{
		{name: "valid_two_decimals", amount: "60.25"},
		{name: "valid_integer", amount: "75"},
		{name: "trailing_zero_is_fine", amount: "60.100"},
		{name: "zero", amount: "0", wantErr: shared.ErrAmountNotPositive},
		{name: "negative", amount: "-1.00", wantErr: shared.ErrAmountNotPositive},
		{name: "three_decimals", amount: "60.125", wantErr: shared.ErrAmountPrecision},
		{name: "largest_storable", amount: "9999999999.99"},
		{name: "beyond_storable", amount: "10000000000.00", wantErr: shared.ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAmount(decimal.RequireFromString(tt.amount))
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, shared.KindValidation, shared.KindOf(err))
		})
	}
}

func TestTransition(t *testing.T) {
	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	later := created.Add(time.Minute)

	pending := New(uuid.New(), uuid.New(), decimal.RequireFromString("60.00"), "first", created)

	t.Run("pending_to_terminal", func(t *testing.T) {
		for _, to := range []Status{StatusAccepted, StatusRejected, StatusOutbid} {
			next, err := Transition(pending, to, later)
			require.NoError(t, err)
			require.Equal(t, to, next.Status)
			require.Equal(t, later, next.UpdatedAt)
			require.Equal(t, StatusPending, pending.Status, "source snapshot must not change")
		}
	})

	t.Run("terminal_source_rejected", func(t *testing.T) {
		accepted, err := Transition(pending, StatusAccepted, later)
		require.NoError(t, err)

		for _, to := range []Status{StatusAccepted, StatusRejected, StatusOutbid} {
			_, err := Transition(accepted, to, later)
			require.ErrorIs(t, err, shared.ErrInvalidTransition)
			require.Equal(t, shared.KindInvalidTransition, shared.KindOf(err))
		}
	})

	t.Run("pending_target_rejected", func(t *testing.T) {
		_, err := Transition(pending, StatusPending, later)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})
}

func TestSupersede(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	itemID := uuid.New()

	winner := New(itemID, uuid.New(), decimal.RequireFromString("75.00"), "", now)
	loserA := New(itemID, uuid.New(), decimal.RequireFromString("60.00"), "", now)
	loserB := New(itemID, uuid.New(), decimal.RequireFromString("65.00"), "", now)
	alreadyOutbid, err := Transition(New(itemID, uuid.New(), decimal.RequireFromString("55.00"), "", now), StatusOutbid, now)
	require.NoError(t, err)

	got := Supersede(winner.ID, []Offer{winner, loserA, alreadyOutbid, loserB}, StatusOutbid, now.Add(time.Second))

	require.Len(t, got, 2)
	require.Equal(t, loserA.ID, got[0].ID)
	require.Equal(t, loserB.ID, got[1].ID)
	for _, o := range got {
		require.Equal(t, StatusOutbid, o.Status)
	}
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus(" pending ")
	require.NoError(t, err)
	require.Equal(t, StatusPending, status)

	_, err = ParseStatus("WITHDRAWN")
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}
