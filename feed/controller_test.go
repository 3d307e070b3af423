package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinefav/errs"
	"cinefav/metrics"
	"cinefav/models"
)

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []models.Notification
	states        []models.FeedState
}

func (r *recordingNotifier) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingNotifier) FeedChanged(state models.FeedState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingNotifier) Notifications() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Notification(nil), r.notifications...)
}

// stubCatalog answers from a fixed table keyed by query and page
type stubCatalog struct {
	mu    sync.Mutex
	pages map[string]models.PageResult
	err   error
	calls []string
}

func pageKey(query string, page int) string {
	return fmt.Sprintf("%s#%d", query, page)
}

func (s *stubCatalog) FetchPopular(_ context.Context, page int) (models.PageResult, error) {
	return s.lookup("", page)
}

func (s *stubCatalog) Search(_ context.Context, query string, page int) (models.PageResult, error) {
	return s.lookup(query, page)
}

func (s *stubCatalog) lookup(query string, page int) (models.PageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, pageKey(query, page))
	if s.err != nil {
		return models.PageResult{}, s.err
	}
	result, ok := s.pages[pageKey(query, page)]
	if !ok {
		return models.PageResult{}, fmt.Errorf("no stub for %s", pageKey(query, page))
	}
	return result, nil
}

func (s *stubCatalog) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// blockingCatalog hands every call to the test, which answers it explicitly
type pendingCall struct {
	query string
	page  int
	reply chan reply
}

type reply struct {
	result models.PageResult
	err    error
}

type blockingCatalog struct {
	calls chan pendingCall
}

func newBlockingCatalog() *blockingCatalog {
	return &blockingCatalog{calls: make(chan pendingCall, 8)}
}

func (b *blockingCatalog) FetchPopular(_ context.Context, page int) (models.PageResult, error) {
	return b.wait("", page)
}

func (b *blockingCatalog) Search(_ context.Context, query string, page int) (models.PageResult, error) {
	return b.wait(query, page)
}

func (b *blockingCatalog) wait(query string, page int) (models.PageResult, error) {
	pc := pendingCall{query: query, page: page, reply: make(chan reply, 1)}
	b.calls <- pc
	r := <-pc.reply
	return r.result, r.err
}

func (b *blockingCatalog) next(t *testing.T) pendingCall {
	select {
	case pc := <-b.calls:
		return pc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for catalog call")
		return pendingCall{}
	}
}

func movie(id int) models.Movie {
	return models.Movie{ID: id, Title: fmt.Sprintf("Movie %d", id)}
}

func async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func await(t *testing.T, done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for load to finish")
		return nil
	}
}

func TestController_InitialState(t *testing.T) {
	c := NewController(&stubCatalog{}, &recordingNotifier{})

	state := c.Snapshot()
	assert.Equal(t, 1, state.PageNumber)
	assert.True(t, state.HasMore)
	assert.False(t, state.IsLoading)
	assert.Empty(t, state.Query)
	assert.NotNil(t, state.Items)
}

func TestController_LoadMovies_SearchThenAppend(t *testing.T) {
	a, b, cc, d := movie(1), movie(2), movie(3), movie(4)
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("batman", 1): {Results: []models.Movie{a, b}, Page: 1, TotalPages: 5},
		pageKey("batman", 2): {Results: []models.Movie{cc, d}, Page: 2, TotalPages: 5},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.LoadMovies(ctx, 1, "batman"))
	state := c.Snapshot()
	assert.Equal(t, []models.Movie{a, b}, state.Items)
	assert.True(t, state.HasMore)
	assert.Equal(t, 1, state.PageNumber)

	require.NoError(t, c.LoadMovies(ctx, 2, "batman"))
	state = c.Snapshot()
	assert.Equal(t, []models.Movie{a, b, cc, d}, state.Items)
	assert.Equal(t, 2, state.PageNumber)
	assert.False(t, state.IsLoading)
}

func TestController_LoadMovies_PageOneReplaces(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("", 1): {Results: []models.Movie{movie(1), movie(2)}, Page: 1, TotalPages: 2},
		pageKey("", 2): {Results: []models.Movie{movie(3)}, Page: 2, TotalPages: 2},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.LoadMovies(ctx, 1, ""))
	require.NoError(t, c.LoadMovies(ctx, 2, ""))
	assert.Len(t, c.Snapshot().Items, 3)
	assert.False(t, c.Snapshot().HasMore)

	require.NoError(t, c.LoadMovies(ctx, 1, ""))
	assert.Equal(t, []models.Movie{movie(1), movie(2)}, c.Snapshot().Items)
	assert.Equal(t, []string{"#1", "#2", "#1"}, catalog.Calls())
}

func TestController_LoadMovies_KeepsDuplicatesAcrossPages(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("", 1): {Results: []models.Movie{movie(1), movie(2)}, Page: 1, TotalPages: 3},
		pageKey("", 2): {Results: []models.Movie{movie(2), movie(3)}, Page: 2, TotalPages: 3},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.LoadMovies(ctx, 1, ""))
	require.NoError(t, c.LoadMovies(ctx, 2, ""))

	ids := []int{}
	for _, m := range c.Snapshot().Items {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int{1, 2, 2, 3}, ids)
}

func TestController_LoadMovies_FailureLeavesState(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("", 1): {Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 4},
	}}
	notifier := &recordingNotifier{}
	c := NewController(catalog, notifier)
	ctx := context.Background()

	require.NoError(t, c.LoadMovies(ctx, 1, ""))
	before := c.Snapshot()

	catalog.err = errs.Wrap(errs.ENETWORK, errors.New("connection refused"), "fetch")
	err := c.LoadMovies(ctx, 2, "")
	assert.Error(t, err)
	assert.Equal(t, errs.ENETWORK, errs.ErrorCode(err))

	after := c.Snapshot()
	assert.Equal(t, before.Items, after.Items)
	assert.Equal(t, before.PageNumber, after.PageNumber)
	assert.Equal(t, before.HasMore, after.HasMore)
	assert.False(t, after.IsLoading)

	notes := notifier.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationLoadError, notes[0].Kind)
	assert.Equal(t, "Error loading movies", notes[0].Text)
}

func TestController_LoadMovies_RejectsWhileLoading(t *testing.T) {
	catalog := newBlockingCatalog()
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	first := async(func() error { return c.LoadMovies(ctx, 1, "") })
	pc := catalog.next(t)
	assert.True(t, c.Snapshot().IsLoading)

	before := c.Snapshot()
	err := c.LoadMovies(ctx, 1, "")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, errs.ENOOP, errs.ErrorCode(err))
	assert.Equal(t, before, c.Snapshot())

	// dropped, not queued
	select {
	case extra := <-catalog.calls:
		t.Fatalf("unexpected catalog call %+v", extra)
	default:
	}

	pc.reply <- reply{result: models.PageResult{Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 1}}
	require.NoError(t, await(t, first))
	assert.Len(t, c.Snapshot().Items, 1)
}

func TestController_OnSearchTextChange_Thresholds(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("", 1):    {Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 10},
		pageKey("bat", 1): {Results: []models.Movie{movie(2)}, Page: 1, TotalPages: 1},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.OnSearchTextChange(ctx, "b"))
	require.NoError(t, c.OnSearchTextChange(ctx, "ba"))
	assert.Empty(t, catalog.Calls())
	assert.Equal(t, "ba", c.Snapshot().Query)

	require.NoError(t, c.OnSearchTextChange(ctx, "bat"))
	assert.Equal(t, []string{"bat#1"}, catalog.Calls())
	assert.Equal(t, []models.Movie{movie(2)}, c.Snapshot().Items)
	assert.False(t, c.Snapshot().HasMore)

	require.NoError(t, c.OnSearchTextChange(ctx, ""))
	assert.Equal(t, []string{"bat#1", "#1"}, catalog.Calls())
	assert.Equal(t, []models.Movie{movie(1)}, c.Snapshot().Items)
	assert.Empty(t, c.Snapshot().Query)
}

func TestController_OnSearchTextChange_CountsCharacters(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{}}
	c := NewController(catalog, &recordingNotifier{})

	// two characters, four bytes
	require.NoError(t, c.OnSearchTextChange(context.Background(), "éé"))
	assert.Empty(t, catalog.Calls())
}

func TestController_OnSearchTextChange_DiscardsStaleResponse(t *testing.T) {
	catalog := newBlockingCatalog()
	notifier := &recordingNotifier{}
	c := NewController(catalog, notifier)
	ctx := context.Background()
	staleBefore := testutil.ToFloat64(metrics.FeedLoads.WithLabelValues(metrics.FeedStale))

	old := async(func() error { return c.OnSearchTextChange(ctx, "bat") })
	oldCall := catalog.next(t)
	assert.Equal(t, "bat", oldCall.query)

	fresh := async(func() error { return c.OnSearchTextChange(ctx, "batman") })
	freshCall := catalog.next(t)
	assert.Equal(t, "batman", freshCall.query)

	// the old request resolves first; it must not touch the new generation
	oldCall.reply <- reply{result: models.PageResult{Results: []models.Movie{movie(1), movie(2)}, Page: 1, TotalPages: 9}}
	assert.ErrorIs(t, await(t, old), ErrSuperseded)
	assert.Equal(t, staleBefore+1, testutil.ToFloat64(metrics.FeedLoads.WithLabelValues(metrics.FeedStale)))
	assert.True(t, c.Snapshot().IsLoading)
	assert.Empty(t, c.Snapshot().Items)

	freshCall.reply <- reply{result: models.PageResult{Results: []models.Movie{movie(3)}, Page: 1, TotalPages: 1}}
	require.NoError(t, await(t, fresh))

	state := c.Snapshot()
	assert.Equal(t, []models.Movie{movie(3)}, state.Items)
	assert.Equal(t, "batman", state.Query)
	assert.False(t, state.IsLoading)
	assert.False(t, state.HasMore)
}

func TestController_OnSearchTextChange_StaleAfterFresh(t *testing.T) {
	catalog := newBlockingCatalog()
	notifier := &recordingNotifier{}
	c := NewController(catalog, notifier)
	ctx := context.Background()

	old := async(func() error { return c.OnSearchTextChange(ctx, "bat") })
	oldCall := catalog.next(t)

	fresh := async(func() error { return c.OnSearchTextChange(ctx, "batman") })
	freshCall := catalog.next(t)

	freshCall.reply <- reply{result: models.PageResult{Results: []models.Movie{movie(3)}, Page: 1, TotalPages: 1}}
	require.NoError(t, await(t, fresh))

	// a late failure for the old query is dropped silently
	oldCall.reply <- reply{err: errors.New("timeout")}
	assert.ErrorIs(t, await(t, old), ErrSuperseded)

	assert.Equal(t, []models.Movie{movie(3)}, c.Snapshot().Items)
	assert.Empty(t, notifier.Notifications())
}

func TestController_OnSearchTextChange_ConcurrentSearches(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		catalog := newBlockingCatalog()
		c := NewController(catalog, &recordingNotifier{})

		var start sync.WaitGroup
		start.Add(1)
		first := async(func() error { start.Wait(); return c.OnSearchTextChange(ctx, "aaa") })
		second := async(func() error { start.Wait(); return c.OnSearchTextChange(ctx, "bbb") })
		start.Done()

		// both searches must reach the catalog; neither may be dropped as busy
		fetched := map[string]bool{}
		for j := 0; j < 2; j++ {
			pc := catalog.next(t)
			fetched[pc.query] = true
			pc.reply <- reply{result: models.PageResult{
				Results:    []models.Movie{{ID: j + 1, Title: pc.query}},
				Page:       1,
				TotalPages: 1,
			}}
		}

		for _, done := range []<-chan error{first, second} {
			if err := await(t, done); err != nil {
				assert.ErrorIs(t, err, ErrSuperseded)
			}
		}

		state := c.Snapshot()
		require.Len(t, state.Items, 1)
		assert.Equal(t, state.Query, state.Items[0].Title, "items belong to another query")
		assert.True(t, fetched[state.Query])
		assert.False(t, state.IsLoading)
	}
}

func TestController_OnReachEnd_RacingFreshSearch(t *testing.T) {
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		catalog := newBlockingCatalog()
		c := NewController(catalog, &recordingNotifier{})

		loaded := async(func() error { return c.LoadMovies(ctx, 1, "") })
		pc := catalog.next(t)
		pc.reply <- reply{result: models.PageResult{Results: []models.Movie{{ID: 1, Title: ""}}, Page: 1, TotalPages: 5}}
		require.NoError(t, await(t, loaded))

		results := make(chan error, 2)
		go func() { results <- c.OnReachEnd(ctx) }()
		go func() { results <- c.OnSearchTextChange(ctx, "bbb") }()

		for finished := 0; finished < 2; {
			select {
			case call := <-catalog.calls:
				call.reply <- reply{result: models.PageResult{
					Results:    []models.Movie{{ID: call.page, Title: call.query}},
					Page:       call.page,
					TotalPages: 5,
				}}
			case err := <-results:
				finished++
				if err != nil && !errors.Is(err, ErrBusy) && !errors.Is(err, ErrSuperseded) {
					t.Fatalf("unexpected error: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timed out waiting for intents")
			}
		}

		state := c.Snapshot()
		assert.Equal(t, "bbb", state.Query)
		require.NotEmpty(t, state.Items)
		for idx, m := range state.Items {
			assert.Equal(t, "bbb", m.Title, "page of another query appended")
			assert.Equal(t, idx+1, m.ID)
		}
	}
}

func TestController_OnSearchTextChange_FailureAfterExhaustedQuery(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("bat", 1):    {Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 1},
		pageKey("batman", 2): {Results: []models.Movie{movie(2)}, Page: 2, TotalPages: 2},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.OnSearchTextChange(ctx, "bat"))
	assert.False(t, c.Snapshot().HasMore)

	catalog.mu.Lock()
	catalog.err = errors.New("connection reset")
	catalog.mu.Unlock()
	require.Error(t, c.OnSearchTextChange(ctx, "batman"))

	state := c.Snapshot()
	assert.Empty(t, state.Items)
	assert.True(t, state.HasMore)

	catalog.mu.Lock()
	catalog.err = nil
	catalog.mu.Unlock()
	require.NoError(t, c.OnReachEnd(ctx))
	assert.Equal(t, []string{"bat#1", "batman#1", "batman#2"}, catalog.Calls())
}

func TestController_OnReachEnd(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("", 1): {Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 2},
		pageKey("", 2): {Results: []models.Movie{movie(2)}, Page: 2, TotalPages: 2},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.LoadMovies(ctx, 1, ""))
	require.NoError(t, c.OnReachEnd(ctx))
	assert.Equal(t, []models.Movie{movie(1), movie(2)}, c.Snapshot().Items)

	err := c.OnReachEnd(ctx)
	assert.ErrorIs(t, err, ErrNoMorePages)
	assert.Equal(t, []string{"#1", "#2"}, catalog.Calls())
}

func TestController_OnReachEnd_UsesHeldQuery(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("batman", 1): {Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 3},
		pageKey("batman", 2): {Results: []models.Movie{movie(2)}, Page: 2, TotalPages: 3},
	}}
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	require.NoError(t, c.OnSearchTextChange(ctx, "batman"))
	require.NoError(t, c.OnReachEnd(ctx))
	assert.Equal(t, []string{"batman#1", "batman#2"}, catalog.Calls())
	assert.Equal(t, 2, c.Snapshot().PageNumber)
}

func TestController_OnReachEnd_WhileLoading(t *testing.T) {
	catalog := newBlockingCatalog()
	c := NewController(catalog, &recordingNotifier{})
	ctx := context.Background()

	first := async(func() error { return c.LoadMovies(ctx, 1, "") })
	pc := catalog.next(t)

	assert.ErrorIs(t, c.OnReachEnd(ctx), ErrBusy)

	pc.reply <- reply{result: models.PageResult{Results: []models.Movie{}, Page: 1, TotalPages: 1}}
	require.NoError(t, await(t, first))
}

func TestController_PublishesFeedChanges(t *testing.T) {
	catalog := &stubCatalog{pages: map[string]models.PageResult{
		pageKey("", 1): {Results: []models.Movie{movie(1)}, Page: 1, TotalPages: 1},
	}}
	notifier := &recordingNotifier{}
	c := NewController(catalog, notifier)

	require.NoError(t, c.LoadMovies(context.Background(), 1, ""))

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.states, 2)
	assert.True(t, notifier.states[0].IsLoading)
	assert.False(t, notifier.states[1].IsLoading)
	assert.Len(t, notifier.states[1].Items, 1)
}
