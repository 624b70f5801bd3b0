package pgstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codemavricks/zerohunger/internal/auth"
	"github.com/codemavricks/zerohunger/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "zerohunger_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/zerohunger_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func mustUser(t *testing.T, st *Storage, email string, roles []string) *models.User {
	t.Helper()
	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	u, err := st.CreateUser(context.Background(), &models.User{
		Name: "User " + email, Email: email, PasswordHash: hash, Roles: roles,
	})
	require.NoError(t, err)
	return u
}

func mustDonation(t *testing.T, st *Storage, donorID uint64, title string, qty float64) *models.Donation {
	t.Helper()
	d, err := st.CreateDonation(context.Background(), donorID, models.DonationCreateInput{
		Title: title, Description: "test", QuantityKg: qty, Latitude: 46.05, Longitude: 14.51,
	})
	require.NoError(t, err)
	return d
}

func TestStorage_ClaimAndFulfillmentFlow(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	donor := mustUser(t, st, "donor@example.com", []string{models.RoleDonor})
	vol := mustUser(t, st, "vol@example.com", []string{models.RoleVolunteer})
	other := mustUser(t, st, "vol2@example.com", []string{models.RoleVolunteer})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := st.CreateUser(ctx, &models.User{
			Name: "Dup", Email: "donor@example.com", PasswordHash: "x", Roles: []string{models.RoleDonor},
		})
		require.ErrorIs(t, err, models.ErrEmailTaken)
	})

	t.Run("concurrent claims yield one winner", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Race", 3)

		const n = 8
		var wg sync.WaitGroup
		results := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, results[i] = st.ReserveDonation(ctx, d.ID, vol.ID, "111111")
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
			} else {
				require.ErrorIs(t, err, models.ErrAlreadyClaimed)
			}
		}
		require.Equal(t, 1, wins)

		got, err := st.GetDonationByID(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, models.DonationStatusReserved, got.Status)
		require.NotNil(t, got.PickupCode)
	})

	t.Run("claim writes donor notification with code", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Soup", 2)
		_, err := st.ReserveDonation(ctx, d.ID, vol.ID, "222333")
		require.NoError(t, err)

		ns, err := st.ListNotifications(ctx, donor.ID, 50)
		require.NoError(t, err)
		require.NotEmpty(t, ns)
		require.Equal(t, models.NotificationDonationClaimed, ns[0].Type)
		require.Contains(t, ns[0].Data, "222333")
		require.Contains(t, ns[0].Data, "Soup")
	})

	t.Run("cancel releases donation and clears code", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Apples", 4)
		c, err := st.ReserveDonation(ctx, d.ID, vol.ID, "444444")
		require.NoError(t, err)

		require.ErrorIs(t, st.CancelClaim(ctx, c.ID, other.ID), models.ErrForbidden)
		require.NoError(t, st.CancelClaim(ctx, c.ID, vol.ID))

		got, err := st.GetDonationByID(ctx, d.ID)
		require.NoError(t, err)
		require.Equal(t, models.DonationStatusAvailable, got.Status)
		require.Nil(t, got.PickupCode)

		// Claimable again: a fresh claim with a fresh code wins.
		c2, err := st.ReserveDonation(ctx, d.ID, other.ID, "555555")
		require.NoError(t, err)
		require.NotEqual(t, c.ID, c2.ID)

		// Closed claims cannot be cancelled twice.
		require.ErrorIs(t, st.CancelClaim(ctx, c.ID, vol.ID), models.ErrInvalidState)
	})

	t.Run("pickup requires the exact code", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Rice", 6)
		c, err := st.ReserveDonation(ctx, d.ID, vol.ID, "987654")
		require.NoError(t, err)

		_, err = st.MarkPickedUp(ctx, c.ID, other.ID, "987654")
		require.ErrorIs(t, err, models.ErrForbidden)

		_, err = st.MarkPickedUp(ctx, c.ID, vol.ID, "000000")
		require.ErrorIs(t, err, models.ErrInvalidCredential)

		// The wrong attempt changed nothing; the stored code still works.
		got, err := st.GetClaimByID(ctx, c.ID)
		require.NoError(t, err)
		require.Equal(t, models.ClaimStatusActive, got.Status)

		picked, err := st.MarkPickedUp(ctx, c.ID, vol.ID, "987654")
		require.NoError(t, err)
		require.Equal(t, models.ClaimStatusPickedUp, picked.Status)
		require.NotNil(t, picked.PickedUpAt)

		// No going back.
		_, err = st.MarkPickedUp(ctx, c.ID, vol.ID, "987654")
		require.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("deliver requires pickup first and awards points", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Pasta", 5)
		c, err := st.ReserveDonation(ctx, d.ID, vol.ID, "112233")
		require.NoError(t, err)

		_, err = st.MarkDelivered(ctx, c.ID, vol.ID, "")
		require.ErrorIs(t, err, models.ErrWorkflowViolation)

		_, err = st.MarkPickedUp(ctx, c.ID, vol.ID, "112233")
		require.NoError(t, err)

		volBefore, err := st.GetUserByID(ctx, vol.ID)
		require.NoError(t, err)
		donorBefore, err := st.GetUserByID(ctx, donor.ID)
		require.NoError(t, err)

		delivered, err := st.MarkDelivered(ctx, c.ID, vol.ID, "left at shelter")
		require.NoError(t, err)
		require.Equal(t, models.ClaimStatusDelivered, delivered.Status)
		require.NotNil(t, delivered.DeliveredAt)

		// 5.0 kg: volunteer +10, donor +5.
		volAfter, err := st.GetUserByID(ctx, vol.ID)
		require.NoError(t, err)
		require.Equal(t, volBefore.ImpactScore+10, volAfter.ImpactScore)
		donorAfter, err := st.GetUserByID(ctx, donor.ID)
		require.NoError(t, err)
		require.Equal(t, donorBefore.ImpactScore+5, donorAfter.ImpactScore)

		// Double delivery is impossible.
		_, err = st.MarkDelivered(ctx, c.ID, vol.ID, "")
		require.ErrorIs(t, err, models.ErrWorkflowViolation)
	})

	t.Run("delivered donations cannot be cancelled", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Beans", 1)
		c, err := st.ReserveDonation(ctx, d.ID, vol.ID, "665544")
		require.NoError(t, err)
		_, err = st.MarkPickedUp(ctx, c.ID, vol.ID, "665544")
		require.NoError(t, err)
		_, err = st.MarkDelivered(ctx, c.ID, vol.ID, "")
		require.NoError(t, err)

		require.ErrorIs(t, st.CancelClaim(ctx, c.ID, vol.ID), models.ErrInvalidState)
	})
}

func TestStorage_DonationsRepo(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	donor := mustUser(t, st, "donor@example.com", []string{models.RoleDonor})
	stranger := mustUser(t, st, "other@example.com", []string{models.RoleDonor})
	vol := mustUser(t, st, "vol@example.com", []string{models.RoleVolunteer})

	t.Run("listing excludes claimed and past-expiry rows", func(t *testing.T) {
		fresh := mustDonation(t, st, donor.ID, "Fresh", 1)
		claimed := mustDonation(t, st, donor.ID, "Claimed", 1)
		_, err := st.ReserveDonation(ctx, claimed.ID, vol.ID, "121212")
		require.NoError(t, err)

		past := time.Now().UTC().Add(-time.Hour)
		stale, err := st.CreateDonation(ctx, donor.ID, models.DonationCreateInput{
			Title: "Stale", QuantityKg: 1, ExpiresAt: &past,
		})
		require.NoError(t, err)

		listing, err := st.ListAvailableDonations(ctx)
		require.NoError(t, err)
		ids := map[uint64]bool{}
		for _, d := range listing {
			ids[d.ID] = true
		}
		require.True(t, ids[fresh.ID])
		require.False(t, ids[claimed.ID])
		require.False(t, ids[stale.ID])
	})

	t.Run("update and delete are owner-gated and available-only", func(t *testing.T) {
		d := mustDonation(t, st, donor.ID, "Editable", 2)

		title := "Renamed"
		_, err := st.UpdateDonation(ctx, d.ID, stranger.ID, models.DonationUpdateInput{Title: &title})
		require.ErrorIs(t, err, models.ErrForbidden)

		got, err := st.UpdateDonation(ctx, d.ID, donor.ID, models.DonationUpdateInput{Title: &title})
		require.NoError(t, err)
		require.Equal(t, "Renamed", got.Title)

		_, err = st.ReserveDonation(ctx, d.ID, vol.ID, "131313")
		require.NoError(t, err)

		_, err = st.UpdateDonation(ctx, d.ID, donor.ID, models.DonationUpdateInput{Title: &title})
		require.ErrorIs(t, err, models.ErrInvalidState)
		require.ErrorIs(t, st.DeleteDonation(ctx, d.ID, donor.ID), models.ErrInvalidState)

		d2 := mustDonation(t, st, donor.ID, "Gone", 1)
		require.ErrorIs(t, st.DeleteDonation(ctx, d2.ID, stranger.ID), models.ErrForbidden)
		require.NoError(t, st.DeleteDonation(ctx, d2.ID, donor.ID))
		_, err = st.GetDonationByID(ctx, d2.ID)
		require.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("expiry sweep flips only due available rows", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Minute)
		future := time.Now().UTC().Add(time.Hour)

		due, err := st.CreateDonation(ctx, donor.ID, models.DonationCreateInput{Title: "Due", QuantityKg: 1, ExpiresAt: &past})
		require.NoError(t, err)
		keep, err := st.CreateDonation(ctx, donor.ID, models.DonationCreateInput{Title: "Keep", QuantityKg: 1, ExpiresAt: &future})
		require.NoError(t, err)

		claimedDue, err := st.CreateDonation(ctx, donor.ID, models.DonationCreateInput{Title: "ClaimedDue", QuantityKg: 1, ExpiresAt: &future})
		require.NoError(t, err)
		_, err = st.ReserveDonation(ctx, claimedDue.ID, vol.ID, "141414")
		require.NoError(t, err)

		expired, err := st.ExpireDueDonations(ctx, time.Now().UTC(), 100)
		require.NoError(t, err)

		expiredIDs := map[uint64]bool{}
		for _, d := range expired {
			expiredIDs[d.ID] = true
			require.Equal(t, models.DonationStatusExpired, d.Status)
		}
		require.True(t, expiredIDs[due.ID])
		require.False(t, expiredIDs[keep.ID])
		require.False(t, expiredIDs[claimedDue.ID])

		// Sweep is idempotent.
		again, err := st.ExpireDueDonations(ctx, time.Now().UTC(), 100)
		require.NoError(t, err)
		for _, d := range again {
			require.NotEqual(t, due.ID, d.ID)
		}
	})
}

func TestStorage_Notifications(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	donor := mustUser(t, st, "donor@example.com", []string{models.RoleDonor})
	vol := mustUser(t, st, "vol@example.com", []string{models.RoleVolunteer})

	d := mustDonation(t, st, donor.ID, "Bread", 2)
	c, err := st.ReserveDonation(ctx, d.ID, vol.ID, "151617")
	require.NoError(t, err)
	_, err = st.MarkPickedUp(ctx, c.ID, vol.ID, "151617")
	require.NoError(t, err)
	_, err = st.MarkDelivered(ctx, c.ID, vol.ID, "")
	require.NoError(t, err)

	ns, err := st.ListNotifications(ctx, donor.ID, 50)
	require.NoError(t, err)
	require.Len(t, ns, 2)
	// Newest first.
	require.Equal(t, models.NotificationDonationDelivered, ns[0].Type)

	n, err := st.CountUnreadNotifications(ctx, donor.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	require.ErrorIs(t, st.MarkNotificationRead(ctx, ns[0].ID, vol.ID), models.ErrForbidden)
	require.NoError(t, st.MarkNotificationRead(ctx, ns[0].ID, donor.ID))

	n, err = st.CountUnreadNotifications(ctx, donor.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, st.MarkAllNotificationsRead(ctx, donor.ID))
	n, err = st.CountUnreadNotifications(ctx, donor.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStorage_ClaimsListing(t *testing.T) {
	st := newTestStorage(t)
	ctx := context.Background()

	donor := mustUser(t, st, "donor@example.com", []string{models.RoleDonor})
	vol := mustUser(t, st, "vol@example.com", []string{models.RoleVolunteer})

	d1 := mustDonation(t, st, donor.ID, "First", 1)
	d2 := mustDonation(t, st, donor.ID, "Second", 2)
	_, err := st.ReserveDonation(ctx, d1.ID, vol.ID, "181818")
	require.NoError(t, err)
	_, err = st.ReserveDonation(ctx, d2.ID, vol.ID, "191919")
	require.NoError(t, err)

	cs, err := st.ListClaimsByVolunteer(ctx, vol.ID)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	for _, c := range cs {
		require.NotNil(t, c.Donation)
		require.Equal(t, c.DonationID, c.Donation.ID)
	}
}
