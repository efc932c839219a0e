package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libralend/internal/catalog"
	"libralend/internal/circulation"
	"libralend/internal/ids"
	"libralend/internal/library"
	"libralend/internal/membership"
)

type suite struct {
	srv *httptest.Server
}

func setupSuite(t *testing.T) *suite {
	t.Helper()
	reg := library.New(library.WithCatalogSequence(ids.NewSequence(ids.CatalogBase)))
	srv := httptest.NewServer(NewRouter(reg, nil, nil))
	t.Cleanup(srv.Close)
	return &suite{srv: srv}
}

func (s *suite) post(t *testing.T, path string, req, out any) int {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(s.srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *suite) get(t *testing.T, path string, out any) {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestCheckoutFlow(t *testing.T) {
	s := setupSuite(t)

	var member membership.MemberView
	require.Equal(t, http.StatusCreated, s.post(t, "/api/members",
		map[string]string{"email": "test@example.com", "name": "Test User"}, &member))

	var item catalog.ItemView
	require.Equal(t, http.StatusCreated, s.post(t, "/api/items", map[string]any{
		"title": "Pride and Prejudice", "author": "Jane Austen", "published_year": 1813, "total_copies": 5,
	}, &item))

	var loan circulation.LoanView
	require.Equal(t, http.StatusCreated, s.post(t, "/api/loans",
		map[string]any{"member_id": member.ID, "item_id": item.ID}, &loan))
	assert.Equal(t, circulation.StatusActive, loan.Status)

	var updated catalog.ItemView
	s.get(t, "/api/items/"+string(item.ID), &updated)
	assert.Equal(t, 4, updated.Available)

	require.Equal(t, http.StatusOK, s.post(t, fmt.Sprintf("/api/loans/%d/return", loan.ID), nil, nil))

	s.get(t, "/api/items/"+string(item.ID), &updated)
	assert.Equal(t, 5, updated.Available)

	var after membership.MemberView
	s.get(t, fmt.Sprintf("/api/members/%d", member.ID), &after)
	assert.Equal(t, 0, after.ActiveLoans)
	assert.True(t, after.Fine.IsZero())
}

func TestConcurrentCheckoutPreventsDoubleBooking(t *testing.T) {
	s := setupSuite(t)

	var item catalog.ItemView
	require.Equal(t, http.StatusCreated, s.post(t, "/api/items", map[string]any{
		"title": "The Great Gatsby", "author": "F. Scott Fitzgerald", "published_year": 1925, "total_copies": 1,
	}, &item))

	var members []membership.MemberView
	for i := 0; i < 10; i++ {
		var m membership.MemberView
		require.Equal(t, http.StatusCreated, s.post(t, "/api/members", map[string]string{
			"email": fmt.Sprintf("member%d@test.com", i), "name": fmt.Sprintf("Member %d", i),
		}, &m))
		members = append(members, m)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for _, m := range members {
		wg.Add(1)
		go func(m membership.MemberView) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]any{"member_id": m.ID, "item_id": item.ID})
			resp, err := http.Post(s.srv.URL+"/api/loans", "application/json", bytes.NewReader(body))
			if err != nil {
				return
			}
			resp.Body.Close()

			mu.Lock()
			defer mu.Unlock()
			switch resp.StatusCode {
			case http.StatusCreated:
				succeeded++
			case http.StatusConflict:
				conflicts++
			}
		}(m)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded, "only one concurrent checkout should succeed")
	assert.Equal(t, 9, conflicts)

	var updated catalog.ItemView
	s.get(t, "/api/items/"+string(item.ID), &updated)
	assert.Equal(t, 0, updated.Available)
}
