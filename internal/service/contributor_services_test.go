package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/moracollect-api/internal/models"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
)

func TestRankContributorsBreaksTiesByNameThenID(t *testing.T) {
	rows := []models.LeaderboardRow{
		{ContributorID: "u9", DisplayName: "", ContributionCount: 3},
		{ContributorID: "u3", DisplayName: "Bea", ContributionCount: 3},
		{ContributorID: "u2", DisplayName: "Bea", ContributionCount: 3},
		{ContributorID: "u1", DisplayName: "Ari", ContributionCount: 3},
		{ContributorID: "u5", DisplayName: "Zed", ContributionCount: 7},
		{ContributorID: "u6", DisplayName: "Ghost", ContributionCount: 0},
		{ContributorID: "u7", DisplayName: "Cal", ContributionCount: 1},
	}

	entries := rankContributors(rows)
	require.Len(t, entries, 6)

	ids := make([]string, len(entries))
	ranks := make([]int, len(entries))
	for i, e := range entries {
		ids[i] = e.ContributorID
		ranks[i] = e.Rank
	}
	assert.Equal(t, []string{"u5", "u1", "u2", "u3", "u9", "u7"}, ids)
	assert.Equal(t, []int{1, 2, 2, 2, 2, 6}, ranks)
	assert.Equal(t, "u9", entries[4].DisplayName)
}

func TestLeaderboardLimits(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveTotals(ctx, []models.ContributorTotal{
		{ContributorID: "u1", ContributionCount: 5},
		{ContributorID: "u2", ContributionCount: 9},
		{ContributorID: "u3", ContributionCount: 2},
	}))
	require.NoError(t, store.UpsertProfile(ctx, &models.ContributorProfile{ContributorID: "u2", DisplayName: "Hidden", LeaderboardHidden: true}))

	svc := NewLeaderboardService(store, nil, 2, 50)
	entries, err := svc.Top(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].ContributorID)
	assert.Equal(t, "u3", entries[1].ContributorID)

	for _, limit := range []int{-1, 51} {
		_, err := svc.Top(ctx, limit)
		assert.True(t, errors.Is(err, appErrors.ErrInvalidRequest), "limit %d", limit)
	}
}

func TestMirrorPagesNewestFirst(t *testing.T) {
	h := newContributionHarness(t)
	ctx := context.Background()
	for _, id := range []string{subA, subB, subC} {
		_, err := h.registration.Register(ctx, contributor("u1"), h.upload(t, "u1", id, "i1", "c1"))
		require.NoError(t, err)
	}
	_, err := h.registration.Register(ctx, contributor("u2"), h.upload(t, "u2", "0b7c1a52-1f1e-4a36-9d36-1a0c8f6a0009", "i1", "c1"))
	require.NoError(t, err)

	svc := NewMirrorService(h.store, 20, 50)
	page, pagination, err := svc.ListOwn(ctx, "u1", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, subC, page[0].SubmissionID)
	assert.Equal(t, subB, page[1].SubmissionID)
	assert.Equal(t, "text i1", page[0].ItemLabel)
	assert.True(t, pagination.HasMore)
	require.NotEmpty(t, pagination.NextCursor)

	rest, pagination, err := svc.ListOwn(ctx, "u1", pagination.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, subA, rest[0].SubmissionID)
	assert.False(t, pagination.HasMore)
	assert.Empty(t, pagination.NextCursor)
}

func TestMirrorRejectsBadInput(t *testing.T) {
	svc := NewMirrorService(newMemoryStore(), 20, 50)
	ctx := context.Background()

	_, _, err := svc.ListOwn(ctx, "u1", "%%%", 10)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidRequest))
	_, _, err = svc.ListOwn(ctx, "u1", "", 51)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidRequest))
	forged := encodeMirrorCursor(models.MirrorCursor{CreatedAt: time.Now(), SubmissionID: "x' OR 1=1"})
	_, _, err = svc.ListOwn(ctx, "u1", forged, 10)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidRequest))
	_, _, err = svc.ListOwn(ctx, "", "", 10)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthenticated))

	entries, pagination, err := svc.ListOwn(ctx, "u1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 20, pagination.Limit)
}

func TestMirrorCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 6, 7, 8, 9, 123456000, time.UTC)
	decoded, err := decodeMirrorCursor(encodeMirrorCursor(models.MirrorCursor{CreatedAt: at, SubmissionID: subA}))
	require.NoError(t, err)
	assert.True(t, at.Equal(decoded.CreatedAt))
	assert.Equal(t, subA, decoded.SubmissionID)
}

func TestProfileUpdateCreatesAndPatches(t *testing.T) {
	store := newMemoryStore()
	svc := NewProfileService(store, nil)
	ctx := context.Background()

	hidden := true
	profile, err := svc.Update(ctx, contributor("u1"), models.UpdateProfileRequest{LeaderboardHidden: &hidden})
	require.NoError(t, err)
	assert.Equal(t, "Name u1", profile.DisplayName)
	assert.True(t, profile.LeaderboardHidden)

	name := "  Rika "
	profile, err = svc.Update(ctx, contributor("u1"), models.UpdateProfileRequest{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Rika", profile.DisplayName)
	assert.True(t, profile.LeaderboardHidden)

	long := string(make([]byte, 81))
	_, err = svc.Update(ctx, contributor("u1"), models.UpdateProfileRequest{DisplayName: &long})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidRequest))
}

func signToken(t *testing.T, secret string, claims models.IdentityClaims, method jwt.SigningMethod) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestIdentityVerify(t *testing.T) {
	svc := NewIdentityService(IdentityConfig{Secret: "s3cret", Issuer: "idp", Audience: "moracollect"})
	valid := models.IdentityClaims{
		Email: "u1@example.com",
		Name:  "U One",
		Roles: []string{"admin"},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "idp",
			Audience:  jwt.ClaimStrings{"moracollect"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	got, err := svc.Verify(signToken(t, "s3cret", valid, jwt.SigningMethodHS256))
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)
	assert.Equal(t, "U One", got.DisplayName)
	assert.True(t, got.HasRole("admin"))

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	badSubject := valid
	badSubject.Subject = "../u2"
	wrongAudience := valid
	wrongAudience.Audience = jwt.ClaimStrings{"other"}
	noExpiry := valid
	noExpiry.ExpiresAt = nil

	for name, token := range map[string]string{
		"expired":        signToken(t, "s3cret", expired, jwt.SigningMethodHS256),
		"bad subject":    signToken(t, "s3cret", badSubject, jwt.SigningMethodHS256),
		"wrong audience": signToken(t, "s3cret", wrongAudience, jwt.SigningMethodHS256),
		"no expiry":      signToken(t, "s3cret", noExpiry, jwt.SigningMethodHS256),
		"wrong secret":   signToken(t, "other", valid, jwt.SigningMethodHS256),
		"wrong method":   signToken(t, "s3cret", valid, jwt.SigningMethodHS512),
		"garbage":        "not-a-token",
	} {
		_, err := svc.Verify(token)
		assert.True(t, errors.Is(err, appErrors.ErrUnauthenticated), name)
	}
}

func TestNormaliseClientMetadata(t *testing.T) {
	out, err := normaliseClientMetadata(models.ClientMetadata{
		"platform":    " ios ",
		"locale":      "",
		"custom_flag": true,
	}, 1024)
	require.NoError(t, err)
	assert.Equal(t, models.ClientMetadata{"platform": "ios", "custom_flag": true}, out)

	_, err = normaliseClientMetadata(models.ClientMetadata{"app_version": string(make([]byte, 65))}, 0)
	assert.Error(t, err)

	_, err = normaliseClientMetadata(models.ClientMetadata{"notes": string(make([]byte, 200))}, 64)
	assert.Error(t, err)
}

func TestParseObjectPath(t *testing.T) {
	parts, ok := parseObjectPath("raw", "raw/u1/"+subA+".WebM")
	require.True(t, ok)
	assert.Equal(t, objectPathParts{ContributorID: "u1", SubmissionID: subA, Extension: "webm"}, parts)

	for _, bad := range []string{
		"",
		"/raw/u1/" + subA + ".webm",
		"raw/u1/../u2/" + subA + ".webm",
		"raw/u1/" + subA,
		"raw/u1/" + subA + ".",
		"raw/u1/extra/" + subA + ".webm",
		"raw//" + subA + ".webm",
		"other/u1/" + subA + ".webm",
	} {
		_, ok := parseObjectPath("raw", bad)
		assert.False(t, ok, bad)
	}
	assert.Equal(t, "processed/u1/"+subA+".", derivedObjectPrefix("processed", "u1", subA))
}

func TestBlobSubmissionIDIsCanonical(t *testing.T) {
	for path, want := range map[string]string{
		"raw/u1/" + subA + ".webm":                       subA,
		"raw/u1/" + strings.ToUpper(subA) + ".WEBM":      subA,
		"processed/u1/" + subA + ".128k.opus":            subA,
		"raw/u1/0b7c1a521f1e4a369d361a0c8f6a0001.webm":   subA,
		"processed/u1/" + strings.ToUpper(subB) + ".ogg": subB,
	} {
		prefix := strings.SplitN(path, "/", 2)[0]
		id, ok := blobSubmissionID(prefix, path)
		require.True(t, ok, path)
		assert.Equal(t, want, id, path)
	}
	for _, bad := range []string{
		"raw/u1/readme.txt",
		"raw/u1/" + subA,
		"raw//" + subA + ".webm",
		"raw/u1/x/" + subA + ".webm",
		"processed/u1/" + subA + ".webm",
	} {
		_, ok := blobSubmissionID("raw", bad)
		assert.False(t, ok, bad)
	}
	assert.Equal(t, subA, canonicalSubmissionID(" "+strings.ToUpper(subA)+" "))
	assert.Equal(t, "not-a-uuid", canonicalSubmissionID(" not-a-uuid "))
}
