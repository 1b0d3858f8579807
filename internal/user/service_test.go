package user

import (
	"context"
	"sync"
	"testing"
	"time"

	"storefront/internal/auth"
	"storefront/internal/model"
	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubRefresher struct {
	mu       sync.Mutex
	products []uint
}

func (s *stubRefresher) RefreshRating(_ context.Context, productID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = append(s.products, productID)
	return nil
}

func setup(t *testing.T) (*Service, *gorm.DB, *stubRefresher) {
	t.Helper()
	db := storetest.New(t)
	ref := &stubRefresher{}
	svc := NewService(db, auth.NewIssuer([]byte("secret"), time.Hour), ref, zap.NewNop())
	return svc, db, ref
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	u, token, err := svc.Register(ctx, "Alice", " Alice@Example.com ", "password1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, model.RoleUser, u.Role)
	assert.True(t, u.IsActive)

	_, _, err = svc.Register(ctx, "Alice 2", "alice@example.com", "password2")
	assert.ErrorIs(t, err, ErrEmailTaken)

	logged, token, err := svc.Login(ctx, "alice@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, logged.ID)
	assert.NotEmpty(t, token)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCreds)
	_, _, err = svc.Login(ctx, "nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCreds)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := setup(t)

	_, _, err := svc.Register(context.Background(), "", "a@b.c", "password")
	assert.Error(t, err)
	_, _, err = svc.Register(context.Background(), "A", "a@b.c", "short")
	assert.Error(t, err)
}

func TestLoginDisabledAccount(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	u, _, err := svc.Register(ctx, "Bob", "bob@example.com", "password1")
	require.NoError(t, err)
	require.NoError(t, db.Model(u).Update("is_active", false).Error)

	_, _, err = svc.Login(ctx, "bob@example.com", "password1")
	assert.ErrorIs(t, err, ErrAccountDisabled)
}

func TestAdminCannotModifySelf(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	admin, _, err := svc.Register(ctx, "Root", "root@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, admin.ID, admin.ID, model.RoleUser)
	assert.ErrorIs(t, err, ErrSelfRole)

	_, err = svc.ToggleActive(ctx, admin.ID, admin.ID)
	assert.ErrorIs(t, err, ErrSelfStatus)

	_, err = svc.Delete(ctx, admin.ID, admin.ID)
	assert.ErrorIs(t, err, ErrSelfDelete)
}

func TestUpdateRoleAndToggle(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()
	admin, _, err := svc.Register(ctx, "Root", "root@example.com", "password1")
	require.NoError(t, err)
	other, _, err := svc.Register(ctx, "Other", "other@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.UpdateRole(ctx, admin.ID, other.ID, "owner")
	assert.ErrorIs(t, err, ErrInvalidRole)

	u, err := svc.UpdateRole(ctx, admin.ID, other.ID, model.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)

	u, err = svc.ToggleActive(ctx, admin.ID, other.ID)
	require.NoError(t, err)
	assert.False(t, u.IsActive)
	u, err = svc.ToggleActive(ctx, admin.ID, other.ID)
	require.NoError(t, err)
	assert.True(t, u.IsActive)

	_, err = svc.ToggleActive(ctx, admin.ID, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDeleteCascades(t *testing.T) {
	svc, db, ref := setup(t)
	ctx := context.Background()
	admin, _, err := svc.Register(ctx, "Root", "root@example.com", "password1")
	require.NoError(t, err)
	victim, _, err := svc.Register(ctx, "Victim", "victim@example.com", "password1")
	require.NoError(t, err)

	for i, num := range []string{"CMD-1", "CMD-2"} {
		require.NoError(t, db.Create(&model.Order{
			OrderNumber: num, UserID: victim.ID, TotalAmount: decimal.NewFromInt(int64(10 * (i + 1))),
			Items: []model.OrderItem{}, ShippingAddress: model.ShippingAddress{},
			PaymentMethod: "Card", Status: model.OrderPending, PaymentStatus: model.PaymentPaid,
		}).Error)
	}
	require.NoError(t, db.Create(&model.Review{ProductID: 5, UserID: victim.ID, Rating: 4, Approved: true}).Error)
	require.NoError(t, db.Create(&model.Review{ProductID: 5, UserID: admin.ID, Rating: 2, Approved: true}).Error)

	d, err := svc.Detail(ctx, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Stats.OrderCount)
	assert.Equal(t, int64(1), d.Stats.ReviewCount)
	assert.Equal(t, "30.00", d.Stats.TotalSpent)
	assert.Len(t, d.RecentOrders, 2)

	res, err := svc.Delete(ctx, admin.ID, victim.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.OrdersDeleted)
	assert.Equal(t, int64(1), res.ReviewsDeleted)
	assert.Equal(t, []uint{5}, ref.products)

	_, err = svc.Get(ctx, victim.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)

	var remaining int64
	require.NoError(t, db.Model(&model.Review{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
