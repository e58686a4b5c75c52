package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/clubgate/internal/clock"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	userrepo "github.com/smallbiznis/clubgate/internal/user/repository"
	userservice "github.com/smallbiznis/clubgate/internal/user/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&userdomain.User{}, &userdomain.LinkCode{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newService(t *testing.T) (userdomain.Service, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := userservice.New(userservice.Params{
		DB:    setupTestDB(t),
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  userrepo.Provide(),
	}, userservice.Config{LinkCodeTTL: 15 * time.Minute})
	return svc, clk
}

func TestRegisterReturnsExistingTelegramIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	tgID := int64(555001)
	first, err := svc.Register(ctx, userdomain.RegisterRequest{TelegramUserID: &tgID})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := svc.Register(ctx, userdomain.RegisterRequest{TelegramUserID: &tgID})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same user, got %s and %s", first.ID, second.ID)
	}
}

func TestRegisterWithoutTelegramCreatesDistinctUsers(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	first, err := svc.Register(ctx, userdomain.RegisterRequest{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := svc.Register(ctx, userdomain.RegisterRequest{})
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("anonymous registrations must not collapse")
	}
}

func TestGetByIDNotFound(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.GetByID(context.Background(), 123456); err != userdomain.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.GetByID(context.Background(), 0); err != userdomain.ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestLinkCodeHappyPath(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	user, err := svc.Register(ctx, userdomain.RegisterRequest{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	code, err := svc.IssueLinkCode(ctx, int64(user.ID), 777002)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if len(code.Code) != 8 {
		t.Fatalf("expected an 8-char code, got %q", code.Code)
	}

	linked, err := svc.ConfirmLinkCode(ctx, int64(user.ID), code.Code)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if linked.TelegramUserID == nil || *linked.TelegramUserID != 777002 {
		t.Fatalf("expected telegram id bound, got %+v", linked.TelegramUserID)
	}
}

func TestLinkCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	user, _ := svc.Register(ctx, userdomain.RegisterRequest{})
	code, err := svc.IssueLinkCode(ctx, int64(user.ID), 777003)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	if _, err := svc.ConfirmLinkCode(ctx, int64(user.ID), code.Code); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	if _, err := svc.ConfirmLinkCode(ctx, int64(user.ID), code.Code); err != userdomain.ErrCodeConsumed {
		t.Fatalf("expected ErrCodeConsumed, got %v", err)
	}
}

func TestConfirmLinkCodeStampsClockTime(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	svc := userservice.New(userservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  userrepo.Provide(),
	}, userservice.Config{LinkCodeTTL: 15 * time.Minute})

	user, err := svc.Register(ctx, userdomain.RegisterRequest{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	code, err := svc.IssueLinkCode(ctx, int64(user.ID), 777010)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	clk.Advance(10 * time.Minute)
	if _, err := svc.ConfirmLinkCode(ctx, int64(user.ID), code.Code); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var usedAt time.Time
	if err := db.Raw(
		`SELECT used_at FROM telegram_link_codes WHERE id = ?`, code.ID,
	).Scan(&usedAt).Error; err != nil {
		t.Fatalf("read used_at: %v", err)
	}
	if !usedAt.Equal(clk.Now()) {
		t.Fatalf("used_at = %v, want clock time %v", usedAt, clk.Now())
	}

	var updatedAt time.Time
	if err := db.Raw(
		`SELECT updated_at FROM users WHERE id = ?`, user.ID,
	).Scan(&updatedAt).Error; err != nil {
		t.Fatalf("read updated_at: %v", err)
	}
	if !updatedAt.Equal(clk.Now()) {
		t.Fatalf("updated_at = %v, want clock time %v", updatedAt, clk.Now())
	}
}

func TestLinkCodeExpiry(t *testing.T) {
	ctx := context.Background()
	svc, clk := newService(t)

	user, _ := svc.Register(ctx, userdomain.RegisterRequest{})
	code, err := svc.IssueLinkCode(ctx, int64(user.ID), 777004)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}

	clk.Advance(16 * time.Minute)
	if _, err := svc.ConfirmLinkCode(ctx, int64(user.ID), code.Code); err != userdomain.ErrCodeExpired {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestLinkCodeWrongCode(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	user, _ := svc.Register(ctx, userdomain.RegisterRequest{})
	if _, err := svc.ConfirmLinkCode(ctx, int64(user.ID), "NOPE1234"); err != userdomain.ErrCodeNotFound {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestIssueLinkCodeAlreadyLinked(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	tgID := int64(777005)
	user, _ := svc.Register(ctx, userdomain.RegisterRequest{TelegramUserID: &tgID})
	if _, err := svc.IssueLinkCode(ctx, int64(user.ID), 777006); err != userdomain.ErrAlreadyLinked {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}
}

func TestRequestLinkCode(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	user, _ := svc.Register(ctx, userdomain.RegisterRequest{})
	instruction, err := svc.RequestLinkCode(ctx, int64(user.ID))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if instruction.AlreadyLinked || instruction.Message == "" {
		t.Fatalf("expected linking instruction, got %+v", instruction)
	}

	tgID := int64(777007)
	linkedUser, _ := svc.Register(ctx, userdomain.RegisterRequest{TelegramUserID: &tgID})
	instruction, err = svc.RequestLinkCode(ctx, int64(linkedUser.ID))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !instruction.AlreadyLinked {
		t.Fatalf("expected already-linked instruction")
	}
}
