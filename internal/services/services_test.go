package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/isdelr/inkwell-be/internal/database"
	"github.com/isdelr/inkwell-be/internal/media"
	"github.com/isdelr/inkwell-be/internal/models"
)

type testEnv struct {
	db     *database.DB
	store  *media.Store
	events *EventService
	users  *UserService
	tags   *TagService
	posts  *PostService
	feed   *recordingPublisher
}

type recordingPublisher struct {
	mu      sync.Mutex
	actions []string
}

func (p *recordingPublisher) Publish(action string, _ any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, action)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.New(":memory:")
	if err != nil {
		t.Fatalf("database.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	store, err := media.NewStore(t.TempDir(), "/media/", media.Options{MaxBytes: 1 << 20, VerifyContent: true})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	env := &testEnv{db: db, store: store, feed: &recordingPublisher{}}
	env.events = NewEventService(db)
	env.users = NewUserService(db, store, env.events)
	env.tags = NewTagService(db)
	env.posts = NewPostService(db, env.tags, store, env.events, env.feed)

	// Each call advances the clock by a second so ordering is deterministic.
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	env.posts.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return env
}

func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func (e *testEnv) signup(t *testing.T, username string) models.User {
	t.Helper()
	user, err := e.users.Signup(context.Background(), SignupInput{
		Username: username,
		Email:    username + "@example.com",
		Mobile:   "5550100",
		Password: "Abc123!5",
	})
	if err != nil {
		t.Fatalf("Signup(%q) failed: %v", username, err)
	}
	return user
}

func (e *testEnv) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func ptr[T any](v T) *T { return &v }

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"Abc123!5", true},
		{"Sup3r{secret}", true},
		{"Abc12345", false}, // no special
		{"abc123!5", false}, // no upper
		{"ABC123!5", false}, // no lower
		{"Abcdef!g", false}, // no digit
		{"Ab1!", false},     // too short
		{"Abcx١٢٣!", true},  // Arabic-Indic digits
		{"", false},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if tt.ok && err != nil {
			t.Errorf("ValidatePassword(%q) = %v, want nil", tt.password, err)
		}
		if !tt.ok && !errors.Is(err, ErrWeakPassword) {
			t.Errorf("ValidatePassword(%q) = %v, want ErrWeakPassword", tt.password, err)
		}
	}
}

func TestSignupAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	user := env.signup(t, "alice")
	if user.ID == 0 {
		t.Fatal("expected an assigned id")
	}
	if user.PasswordHash != "" {
		t.Error("password hash leaked from Signup")
	}

	got, err := env.users.Authenticate(ctx, "alice", "Abc123!5")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != user.ID {
		t.Errorf("Authenticate returned user %d, want %d", got.ID, user.ID)
	}

	if _, err := env.users.Authenticate(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := env.users.Authenticate(ctx, "nobody", "Abc123!5"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: got %v, want ErrInvalidCredentials", err)
	}

	events, err := env.events.GetRecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecentEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != "user.signup" {
		t.Errorf("events = %+v, want one user.signup", events)
	}
}

func TestSignupRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.signup(t, "bob")

	tests := []struct {
		name  string
		in    SignupInput
		field string
		code  string
	}{
		{"duplicate", SignupInput{Username: "bob", Mobile: "1", Password: "Abc123!5"}, "username", CodeDuplicate},
		{"weak", SignupInput{Username: "carol", Mobile: "1", Password: "Abc12345"}, "password", CodeWeakPassword},
		{"no mobile", SignupInput{Username: "carol", Password: "Abc123!5"}, "mobile", CodeRequired},
		{"bad email", SignupInput{Username: "carol", Email: "nope", Mobile: "1", Password: "Abc123!5"}, "email", CodeInvalid},
		{"bad username", SignupInput{Username: "ca rol", Mobile: "1", Password: "Abc123!5"}, "username", CodeInvalid},
		{"bad picture", SignupInput{Username: "carol", Mobile: "1", Password: "Abc123!5", ProfilePicture: "data:image/png;base64,@@"}, "profile_picture", CodeInvalidImageData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.users.Signup(ctx, tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("got %v, want a ValidationError", err)
			}
			if verr.Field != tt.field || verr.Code != tt.code {
				t.Errorf("got %s/%s, want %s/%s", verr.Field, verr.Code, tt.field, tt.code)
			}
		})
	}

	if n := env.count(t, "users"); n != 1 {
		t.Errorf("users = %d, want 1", n)
	}
}

func TestSignupStoresProfilePicture(t *testing.T) {
	env := newTestEnv(t)
	user, err := env.users.Signup(context.Background(), SignupInput{
		Username:       "pic",
		Mobile:         "1",
		Password:       "Abc123!5",
		ProfilePicture: pngDataURI(t),
	})
	if err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if user.ProfilePicture == "" {
		t.Fatal("expected a stored profile picture")
	}
	if got := env.store.DataURI(user.ProfilePicture); got != pngDataURI(t) {
		t.Error("stored picture does not round-trip")
	}
}

func TestUpdateProfilePartial(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "dave")
	env.signup(t, "erin")

	updated, err := env.users.UpdateProfile(ctx, user.ID, ProfileUpdate{Mobile: ptr("5559999")})
	if err != nil {
		t.Fatalf("UpdateProfile failed: %v", err)
	}
	if updated.Mobile != "5559999" || updated.Username != "dave" || updated.Email != "dave@example.com" {
		t.Errorf("unexpected profile after partial update: %+v", updated)
	}

	withPic, err := env.users.UpdateProfile(ctx, user.ID, ProfileUpdate{ProfilePicture: ptr(pngDataURI(t))})
	if err != nil {
		t.Fatalf("UpdateProfile picture failed: %v", err)
	}
	first := withPic.ProfilePicture
	withPic, err = env.users.UpdateProfile(ctx, user.ID, ProfileUpdate{ProfilePicture: ptr(pngDataURI(t))})
	if err != nil {
		t.Fatalf("UpdateProfile picture failed: %v", err)
	}
	if withPic.ProfilePicture == first {
		t.Error("expected a new blob name")
	}
	if _, err := env.store.Read(first); err == nil {
		t.Error("replaced picture was not removed")
	}

	_, err = env.users.UpdateProfile(ctx, user.ID, ProfileUpdate{Username: ptr("erin")})
	if !errors.Is(err, &ValidationError{Code: CodeDuplicate}) {
		t.Errorf("rename to taken username: got %v, want duplicate", err)
	}

	if _, err := env.users.UpdateProfile(ctx, 9999, ProfileUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown user: got %v, want ErrNotFound", err)
	}
}

func TestCreatePostReconcilesTags(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "frank")

	post, err := env.posts.CreatePost(ctx, author.ID, PostInput{
		Title:   ptr("Hello"),
		Content: ptr("First post"),
		Tags:    &[]string{"go", "rust", "go", "  "},
	})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	if len(post.Tags) != 2 {
		t.Fatalf("tags = %+v, want 2", post.Tags)
	}
	if post.Author != author.Summary() {
		t.Errorf("author = %+v, want %+v", post.Author, author.Summary())
	}
	if n := env.count(t, "tags"); n != 2 {
		t.Errorf("tags table has %d rows, want 2", n)
	}

	// Existing tags are reused.
	if _, err := env.posts.CreatePost(ctx, author.ID, PostInput{
		Title: ptr("Again"), Content: ptr("x"), Tags: &[]string{"go", "zig"},
	}); err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	tags, err := env.tags.ListTags(ctx)
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 3 {
		t.Errorf("ListTags = %+v, want go, rust, zig", tags)
	}

	if len(env.feed.actions) != 2 || env.feed.actions[0] != ActionPostCreated {
		t.Errorf("published %v, want two %s", env.feed.actions, ActionPostCreated)
	}
}

func TestCreatePostInvalidImageWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	author := env.signup(t, "gina")

	_, err := env.posts.CreatePost(context.Background(), author.ID, PostInput{
		Title:   ptr("Broken"),
		Content: ptr("body"),
		Tags:    &[]string{"oops"},
		Image:   ptr("data:image/png;base64,!!!notbase64"),
	})
	if !errors.Is(err, &ValidationError{Code: CodeInvalidImageData}) {
		t.Fatalf("got %v, want invalid image data", err)
	}
	if n := env.count(t, "posts"); n != 0 {
		t.Errorf("posts = %d, want 0", n)
	}
	if n := env.count(t, "tags"); n != 0 {
		t.Errorf("tags = %d, want 0", n)
	}
}

func TestCreatePostRequiresTitleAndContent(t *testing.T) {
	env := newTestEnv(t)
	author := env.signup(t, "hank")

	_, err := env.posts.CreatePost(context.Background(), author.ID, PostInput{Content: ptr("body")})
	if !errors.Is(err, &ValidationError{Code: CodeRequired}) {
		t.Errorf("missing title: got %v, want required", err)
	}
	_, err = env.posts.CreatePost(context.Background(), author.ID, PostInput{Title: ptr("t"), Content: ptr("   ")})
	if !errors.Is(err, &ValidationError{Code: CodeRequired}) {
		t.Errorf("blank content: got %v, want required", err)
	}
}

func TestListPostsOrderAndFilter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "ivy")

	for _, p := range []struct {
		title string
		tags  []string
	}{
		{"t1", []string{"go"}},
		{"t2", []string{"rust"}},
		{"t3", []string{"go"}},
	} {
		if _, err := env.posts.CreatePost(ctx, author.ID, PostInput{Title: ptr(p.title), Content: ptr("c"), Tags: &p.tags}); err != nil {
			t.Fatalf("CreatePost(%s) failed: %v", p.title, err)
		}
	}

	all, err := env.posts.ListPosts(ctx, models.PostFilter{})
	if err != nil {
		t.Fatalf("ListPosts failed: %v", err)
	}
	var titles []string
	for _, p := range all {
		titles = append(titles, p.Title)
	}
	if len(titles) != 3 || titles[0] != "t3" || titles[1] != "t2" || titles[2] != "t1" {
		t.Errorf("order = %v, want [t3 t2 t1]", titles)
	}

	tagged, err := env.posts.ListPosts(ctx, models.PostFilter{Tag: "go"})
	if err != nil {
		t.Fatalf("ListPosts(tag) failed: %v", err)
	}
	if len(tagged) != 2 || tagged[0].Title != "t3" || tagged[1].Title != "t1" {
		t.Errorf("tag filter returned %+v", tagged)
	}

	page, err := env.posts.ListPosts(ctx, models.PostFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListPosts(page) failed: %v", err)
	}
	if len(page) != 1 || page[0].Title != "t2" {
		t.Errorf("page = %+v, want [t2]", page)
	}

	empty, err := env.posts.ListPosts(ctx, models.PostFilter{Tag: "haskell"})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("unknown tag: got %v, %v; want empty slice", empty, err)
	}
}

func TestUpdatePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "jack")
	other := env.signup(t, "kate")

	post, err := env.posts.CreatePost(ctx, author.ID, PostInput{
		Title: ptr("Draft"), Content: ptr("body"), Tags: &[]string{"a", "b"}, Image: ptr(pngDataURI(t)),
	})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	if _, err := env.posts.UpdatePost(ctx, other.ID, post.ID, PostInput{Title: ptr("Hijack")}, true); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-author update: got %v, want ErrPermissionDenied", err)
	}

	patched, err := env.posts.UpdatePost(ctx, author.ID, post.ID, PostInput{Title: ptr("Final")}, true)
	if err != nil {
		t.Fatalf("partial update failed: %v", err)
	}
	if patched.Title != "Final" || patched.Content != "body" || len(patched.Tags) != 2 || patched.Image != post.Image {
		t.Errorf("partial update changed untouched fields: %+v", patched)
	}

	if _, err := env.posts.UpdatePost(ctx, author.ID, post.ID, PostInput{Title: ptr("Only")}, false); !errors.Is(err, &ValidationError{Code: CodeRequired}) {
		t.Errorf("full update without content: got %v, want required", err)
	}

	replaced, err := env.posts.UpdatePost(ctx, author.ID, post.ID, PostInput{
		Title: ptr("Final"), Content: ptr("new body"), Tags: &[]string{"c"}, Image: ptr(pngDataURI(t)),
	}, false)
	if err != nil {
		t.Fatalf("full update failed: %v", err)
	}
	if len(replaced.Tags) != 1 || replaced.Tags[0].Name != "c" {
		t.Errorf("tags = %+v, want [c]", replaced.Tags)
	}
	if replaced.Image == post.Image {
		t.Error("expected a new image blob")
	}
	if _, err := env.store.Read(post.Image); err == nil {
		t.Error("old image blob was not removed")
	}

	if _, err := env.posts.UpdatePost(ctx, author.ID, 9999, PostInput{}, true); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing post: got %v, want ErrNotFound", err)
	}
}

func TestDeletePost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "liam")
	other := env.signup(t, "mia")

	post, err := env.posts.CreatePost(ctx, author.ID, PostInput{
		Title: ptr("Bye"), Content: ptr("soon gone"), Tags: &[]string{"x"}, Image: ptr(pngDataURI(t)),
	})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	if err := env.posts.DeletePost(ctx, other.ID, post.ID); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("non-author delete: got %v, want ErrPermissionDenied", err)
	}
	if err := env.posts.DeletePost(ctx, author.ID, post.ID); err != nil {
		t.Fatalf("DeletePost failed: %v", err)
	}
	if _, err := env.posts.GetPost(ctx, post.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPost after delete: got %v, want ErrNotFound", err)
	}
	if n := env.count(t, "post_tags"); n != 0 {
		t.Errorf("post_tags = %d, want 0", n)
	}
	if n := env.count(t, "tags"); n != 1 {
		t.Errorf("tags = %d, want 1 (tags outlive posts)", n)
	}
	if _, err := env.store.Read(post.Image); err == nil {
		t.Error("image blob was not removed")
	}
	if last := env.feed.actions[len(env.feed.actions)-1]; last != ActionPostDeleted {
		t.Errorf("last published action = %s, want %s", last, ActionPostDeleted)
	}
}

func TestDeleteUserCascadesPosts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "nina")

	post, err := env.posts.CreatePost(ctx, author.ID, PostInput{
		Title: ptr("Mine"), Content: ptr("c"), Image: ptr(pngDataURI(t)),
	})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}

	if err := env.users.DeleteUser(ctx, author.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if n := env.count(t, "posts"); n != 0 {
		t.Errorf("posts = %d, want 0", n)
	}
	if _, err := env.store.Read(post.Image); err == nil {
		t.Error("post image survived its author")
	}
}

func TestNormalizeTagNames(t *testing.T) {
	got, err := NormalizeTagNames([]string{" go ", "Go", "go", "", "rust"})
	if err != nil {
		t.Fatalf("NormalizeTagNames failed: %v", err)
	}
	want := []string{"go", "Go", "rust"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got %v, want %v", got, want)
		}
	}

	long := make([]byte, maxTagLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := NormalizeTagNames([]string{string(long)}); !errors.Is(err, ErrValidation) {
		t.Errorf("long tag: got %v, want a validation error", err)
	}
}

// racingQuerier creates the tag on the pool right before the wrapped insert
// runs, as a concurrent request would.
type racingQuerier struct {
	querier
	db *database.DB
}

func (q racingQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if strings.HasPrefix(strings.TrimSpace(query), "INSERT INTO tags") {
		if _, err := q.db.ExecContext(ctx, q.db.Rebind("INSERT INTO tags (name) VALUES (?)"), args...); err != nil {
			return nil, err
		}
	}
	return q.querier.ExecContext(ctx, query, args...)
}

func TestReconcileLosesCreationRace(t *testing.T) {
	env := newTestEnv(t)

	tags, err := env.tags.Reconcile(context.Background(), racingQuerier{querier: env.db, db: env.db}, []string{"go"})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(tags) != 1 || tags[0].ID == 0 || tags[0].Name != "go" {
		t.Fatalf("tags = %+v, want the concurrently created go tag", tags)
	}
	if n := env.count(t, "tags"); n != 1 {
		t.Errorf("tags table has %d rows, want 1", n)
	}
}

func TestUpdateOfConcurrentlyDeletedPost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	author := env.signup(t, "owen")

	post, err := env.posts.CreatePost(ctx, author.ID, PostInput{Title: ptr("Gone"), Content: ptr("c")})
	if err != nil {
		t.Fatalf("CreatePost failed: %v", err)
	}
	// Another request deletes the post after it was read for the ownership check.
	if _, err := env.db.Exec("DELETE FROM posts WHERE id = ?", post.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}

	post.Title = "Still here?"
	if err := env.posts.saveUpdate(ctx, post, []string{"go"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if n := env.count(t, "tags"); n != 0 {
		t.Errorf("tags = %d, want 0 after rollback", n)
	}
}
