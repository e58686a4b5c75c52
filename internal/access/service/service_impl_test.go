package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	accessrepo "github.com/smallbiznis/clubgate/internal/access/repository"
	accessservice "github.com/smallbiznis/clubgate/internal/access/service"
	"github.com/smallbiznis/clubgate/internal/clock"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	userrepo "github.com/smallbiznis/clubgate/internal/user/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testChatID = int64(-100123)

type fakeGroup struct {
	inviteErr error
	kickErr   error

	invites int
	kicks   []int64
}

func (g *fakeGroup) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	if g.inviteErr != nil {
		return "", g.inviteErr
	}
	g.invites++
	return fmt.Sprintf("https://t.me/+invite%d", g.invites), nil
}

func (g *fakeGroup) Kick(ctx context.Context, chatID int64, telegramUserID int64) error {
	if g.kickErr != nil {
		return g.kickErr
	}
	g.kicks = append(g.kicks, telegramUserID)
	return nil
}

type fakeSubscriptions struct {
	subscriptiondomain.Service
	entitled map[int64]bool
}

func (s *fakeSubscriptions) HasActiveSubscription(ctx context.Context, userID int64) (bool, error) {
	return s.entitled[userID], nil
}

type fixture struct {
	db    *gorm.DB
	svc   accessdomain.Service
	repo  accessdomain.Repository
	group *fakeGroup
	subs  *fakeSubscriptions
	node  *snowflake.Node
	clk   *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&userdomain.User{}, &accessdomain.AccessGrant{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	group := &fakeGroup{}
	subs := &fakeSubscriptions{entitled: map[int64]bool{}}
	repo := accessrepo.Provide()
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	svc := accessservice.New(accessservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Clock:         clk,
		Repo:          repo,
		UserRepo:      userrepo.Provide(),
		Subscriptions: subs,
		Group:         group,
		Config:        accessservice.Config{GroupChatID: testChatID},
	})

	return &fixture{db: db, svc: svc, repo: repo, group: group, subs: subs, node: node, clk: clk}
}

func (f *fixture) seedLinkedUser(t *testing.T, telegramUserID int64) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	err := f.db.Exec(
		`INSERT INTO users (id, telegram_user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, telegramUserID, f.clk.Now(), f.clk.Now(),
	).Error
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id
}

func TestGrantCreatesRowWithInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900001)

	link, err := f.svc.Grant(ctx, int64(userID))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if link == "" {
		t.Fatalf("expected an invite link")
	}

	grant, err := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if err != nil {
		t.Fatalf("find grant: %v", err)
	}
	if grant == nil || grant.InviteLink == nil || *grant.InviteLink != link {
		t.Fatalf("expected grant row carrying the minted link, got %+v", grant)
	}
	if grant.RemovedAt != nil {
		t.Fatalf("fresh grant must not be removed")
	}
	if grant.JoinedAt == nil || !grant.JoinedAt.Equal(f.clk.Now()) {
		t.Fatalf("fresh grant must stamp joined_at, got %+v", grant.JoinedAt)
	}
	if grant.LastVerifiedAt == nil || !grant.LastVerifiedAt.Equal(f.clk.Now()) {
		t.Fatalf("fresh grant must stamp last_verified_at, got %+v", grant.LastVerifiedAt)
	}
}

func TestGrantInviteFailureLeavesNoRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900002)
	f.group.inviteErr = errors.New("telegram down")

	_, err := f.svc.Grant(ctx, int64(userID))
	if !errors.Is(err, accessdomain.ErrGroupFailure) {
		t.Fatalf("expected ErrGroupFailure, got %v", err)
	}

	grant, err := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if err != nil {
		t.Fatalf("find grant: %v", err)
	}
	if grant != nil {
		t.Fatalf("invite failure must not persist a row, got %+v", grant)
	}
}

func TestGrantReinstatesRemovedRow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900003)

	firstLink, err := f.svc.Grant(ctx, int64(userID))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.svc.Revoke(ctx, int64(userID), 900003); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	f.clk.Advance(time.Hour)
	secondLink, err := f.svc.Grant(ctx, int64(userID))
	if err != nil {
		t.Fatalf("regrant: %v", err)
	}
	if secondLink == firstLink {
		t.Fatalf("regrant must mint a fresh link")
	}

	var count int64
	if err := f.db.Raw(
		`SELECT COUNT(*) FROM telegram_access WHERE user_id = ? AND chat_id = ?`,
		userID, testChatID,
	).Scan(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("regrant must reuse the row, got %d rows", count)
	}

	grant, _ := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if grant.RemovedAt != nil {
		t.Fatalf("reinstated row must clear removed_at")
	}
	if grant.InviteLink == nil || *grant.InviteLink != secondLink {
		t.Fatalf("reinstated row must carry the new link")
	}
	if grant.LastVerifiedAt == nil || !grant.LastVerifiedAt.Equal(f.clk.Now()) {
		t.Fatalf("reinstate must refresh last_verified_at, got %+v", grant.LastVerifiedAt)
	}
}

func TestRevokeMarksRemoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900004)

	if _, err := f.svc.Grant(ctx, int64(userID)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := f.svc.Revoke(ctx, int64(userID), 900004); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	grant, _ := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if grant.RemovedAt == nil {
		t.Fatalf("revoke must stamp removed_at")
	}
	if len(f.group.kicks) != 1 || f.group.kicks[0] != 900004 {
		t.Fatalf("expected one kick for the member, got %v", f.group.kicks)
	}
}

func TestRevokeAlreadyAbsentStillRemoves(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900005)

	if _, err := f.svc.Grant(ctx, int64(userID)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	f.group.kickErr = accessdomain.ErrAlreadyAbsent

	if err := f.svc.Revoke(ctx, int64(userID), 900005); err != nil {
		t.Fatalf("revoke of absent member must succeed: %v", err)
	}
	grant, _ := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if grant.RemovedAt == nil {
		t.Fatalf("absent member must still be marked removed")
	}
}

func TestRevokeGroupFailureKeepsRowLive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900006)

	if _, err := f.svc.Grant(ctx, int64(userID)); err != nil {
		t.Fatalf("grant: %v", err)
	}
	f.group.kickErr = errors.New("telegram down")

	err := f.svc.Revoke(ctx, int64(userID), 900006)
	if !errors.Is(err, accessdomain.ErrGroupFailure) {
		t.Fatalf("expected ErrGroupFailure, got %v", err)
	}

	// Row stays live so the next sweep retries the kick.
	grant, _ := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if grant.RemovedAt != nil {
		t.Fatalf("failed kick must not mark the row removed")
	}
}

func TestVerifyJoinKicksUnknownMember(t *testing.T) {
	f := newFixture(t)

	ok, err := f.svc.VerifyJoin(context.Background(), 123456789)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("unknown member must not be accepted")
	}
	if len(f.group.kicks) != 1 {
		t.Fatalf("unknown member must be kicked")
	}
}

func TestVerifyJoinKicksUnentitledMember(t *testing.T) {
	f := newFixture(t)
	f.seedLinkedUser(t, 900007)

	ok, err := f.svc.VerifyJoin(context.Background(), 900007)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatalf("unentitled member must not be accepted")
	}
	if len(f.group.kicks) != 1 {
		t.Fatalf("unentitled member must be kicked")
	}
}

func TestVerifyJoinStampsJoinedAt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900008)
	f.subs.entitled[int64(userID)] = true

	if _, err := f.svc.Grant(ctx, int64(userID)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	ok, err := f.svc.VerifyJoin(ctx, 900008)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("entitled member must be accepted")
	}
	if len(f.group.kicks) != 0 {
		t.Fatalf("entitled member must not be kicked")
	}

	grant, _ := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if grant.JoinedAt == nil || grant.LastVerifiedAt == nil {
		t.Fatalf("expected joined/verified stamps, got %+v", grant)
	}
}

func TestVerifyJoinWithoutGrantRecordsMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900009)
	f.subs.entitled[int64(userID)] = true

	ok, err := f.svc.VerifyJoin(ctx, 900009)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("entitled member must be accepted")
	}

	grant, _ := f.repo.FindByUserAndChat(ctx, f.db, userID, testChatID)
	if grant == nil || grant.JoinedAt == nil {
		t.Fatalf("expected a recorded membership row, got %+v", grant)
	}
}

func TestCurrentInvite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	userID := f.seedLinkedUser(t, 900010)

	link, err := f.svc.CurrentInvite(ctx, int64(userID))
	if err != nil {
		t.Fatalf("current invite: %v", err)
	}
	if link != "" {
		t.Fatalf("no grant means no link, got %q", link)
	}

	granted, err := f.svc.Grant(ctx, int64(userID))
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	link, err = f.svc.CurrentInvite(ctx, int64(userID))
	if err != nil {
		t.Fatalf("current invite: %v", err)
	}
	if link != granted {
		t.Fatalf("expected %q, got %q", granted, link)
	}

	if err := f.svc.Revoke(ctx, int64(userID), 900010); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	link, err = f.svc.CurrentInvite(ctx, int64(userID))
	if err != nil {
		t.Fatalf("current invite: %v", err)
	}
	if link != "" {
		t.Fatalf("removed grant must yield no link, got %q", link)
	}
}
