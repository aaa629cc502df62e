package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/memberboard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret-32bytes-long!"

func newTestCookieStore(t *testing.T) *CookieStore {
	t.Helper()
	store, err := NewCookieStore(testSecret, CookieOptions{MaxAge: time.Hour})
	require.NoError(t, err)
	return store
}

func testSession() *model.Session {
	return &model.Session{
		ExternalUserID:   "U1",
		DisplayName:      "alice",
		AvatarRef:        "a.png",
		IsVerifiedMember: true,
	}
}

// saveAndCarry はSaveで設定されたCookieを持つ新しいリクエストを返す。
func saveAndCarry(t *testing.T, store Store, sess *model.Session) (*http.Request, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, store.Save(rec, httptest.NewRequest(http.MethodGet, "/callback", nil), sess))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	return req, cookies[0]
}

func TestNewCookieStore_EmptySecret(t *testing.T) {
	_, err := NewCookieStore("", CookieOptions{})
	assert.Error(t, err)
}

func TestCookieStore_RoundTrip(t *testing.T) {
	store := newTestCookieStore(t)

	req, cookie := saveAndCarry(t, store, testSession())

	assert.Equal(t, DefaultCookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)

	got, err := store.Load(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "U1", got.ExternalUserID)
	assert.Equal(t, "alice", got.DisplayName)
	assert.Equal(t, "a.png", got.AvatarRef)
	assert.True(t, got.IsVerifiedMember)
	assert.True(t, got.IsAuthenticated())
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, 5*time.Second)
}

func TestCookieStore_Load_NoCookie(t *testing.T) {
	store := newTestCookieStore(t)

	got, err := store.Load(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCookieStore_Load_TamperedRejected(t *testing.T) {
	store := newTestCookieStore(t)
	_, cookie := saveAndCarry(t, store, testSession())

	tampered := []byte(cookie.Value)
	last := len(tampered) - 2
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: string(tampered)})

	got, err := store.Load(req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCookieStore_Load_OtherSecretRejected(t *testing.T) {
	store := newTestCookieStore(t)
	req, _ := saveAndCarry(t, store, testSession())

	other, err := NewCookieStore("another-secret", CookieOptions{})
	require.NoError(t, err)

	got, err := other.Load(req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCookieStore_Load_UnsignedTokenRejected(t *testing.T) {
	store := newTestCookieStore(t)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cookieIssuer,
			Subject:   "U1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:   "mallory",
		Member: true,
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: unsigned})

	got, err := store.Load(req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCookieStore_Load_Expired(t *testing.T) {
	store := newTestCookieStore(t)
	store.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	req, _ := saveAndCarry(t, store, testSession())

	store.now = time.Now
	got, err := store.Load(req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCookieStore_UnverifiedSessionIsNotAuthenticated(t *testing.T) {
	store := newTestCookieStore(t)
	sess := testSession()
	sess.IsVerifiedMember = false
	req, _ := saveAndCarry(t, store, sess)

	got, err := store.Load(req)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsAuthenticated())
}

func TestCookieStore_Clear_ExpiresCookie(t *testing.T) {
	store := newTestCookieStore(t)
	rec := httptest.NewRecorder()

	require.NoError(t, store.Clear(rec, httptest.NewRequest(http.MethodGet, "/logout", nil)))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
}
