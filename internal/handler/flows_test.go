package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grandbridge/internal/chat"
	"grandbridge/internal/model"
)

// plant creates a carrot for c and returns its id.
func plant(t *testing.T, c *http.Client, srv *httptest.Server, name string) int64 {
	t.Helper()
	res := postForm(t, c, srv.URL+"/planting", url.Values{"name": {name}, "type": {"carrot"}, "mood": {"3"}})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	loc := res.Header.Get("Location")
	require.True(t, strings.HasPrefix(loc, "/plant_breathe/"), loc)
	id, err := strconv.ParseInt(strings.TrimPrefix(loc, "/plant_breathe/"), 10, 64)
	require.NoError(t, err)
	return id
}

func grow(t *testing.T, c *http.Client, srv *httptest.Server, id int64, phase string) (*http.Response, map[string]any) {
	t.Helper()
	return postJSON(t, c, fmt.Sprintf("%s/grow_with_breath/%d", srv.URL, id), map[string]any{"phase": phase})
}

func TestHarvestPaysAndLogs(t *testing.T) {
	srv, st := setup(t)
	ctx := context.Background()
	c, u := signUp(t, srv, st, false)

	var ids []int64
	for i := range 3 {
		ids = append(ids, plant(t, c, srv, fmt.Sprintf("carrot %d", i)))
	}

	res, body := grow(t, c, srv, ids[0], "cycle_1_complete")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, model.StageSprout, body["stage"])
	res, body = grow(t, c, srv, ids[0], "cycle_2_complete")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, model.StageReady, body["stage"])

	var earned []string
	for i, id := range ids {
		res, body = grow(t, c, srv, id, "exercise_complete")
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, true, body["harvested"])
		assert.EqualValues(t, 20, body["coins_earned"])
		assert.EqualValues(t, 20*(i+1), body["total_coins"])
		for _, a := range body["achievements"].([]any) {
			earned = append(earned, a.(map[string]any)["name"].(string))
		}
	}
	assert.ElementsMatch(t, []string{"Mindful Grandparent", "Planted 3 Vegetables", "Self-Care Saver"}, earned)

	res, body = grow(t, c, srv, ids[0], "exercise_complete")
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "This plant has already been harvested!", body["error"])

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 60, got.Coins)
	assert.Equal(t, 3, got.PlantCount)

	logs, err := st.RecentMindfulness(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	for _, l := range logs {
		assert.Equal(t, "breathing", l.ActivityType)
		assert.Equal(t, "plant_breathing", l.ActivityID)
		assert.Equal(t, 1, l.DurationMinutes)
		assert.Equal(t, 10, l.CoinsEarned)
	}

	achievements, err := st.Achievements(ctx, u.ID)
	require.NoError(t, err)
	names := make([]string, 0, len(achievements))
	for _, a := range achievements {
		names = append(names, a.Name)
	}
	assert.ElementsMatch(t, earned, names)
}

func TestHarvestOtherUsersPlant(t *testing.T) {
	srv, st := setup(t)
	owner, _ := signUp(t, srv, st, false)
	other, _ := signUp(t, srv, st, false)
	id := plant(t, owner, srv, "mine")

	res, body := grow(t, other, srv, id, "exercise_complete")
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestRegisterUnknownFamilyCreatesIt(t *testing.T) {
	srv, st := setup(t)
	ctx := context.Background()
	id := 1_000_000_000 + rand.Int64N(1_000_000_000)

	_, first := signUpWith(t, srv, st, url.Values{"family_id": {strconv.FormatInt(id, 10)}})
	require.NotNil(t, first.FamilyID)
	assert.Equal(t, id, *first.FamilyID)
	f, err := st.FamilyByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "tester", f.Name)

	_, second := signUpWith(t, srv, st, url.Values{"family_id": {strconv.FormatInt(id, 10)}})
	require.NotNil(t, second.FamilyID)
	assert.Equal(t, id, *second.FamilyID)
	members, err := st.FamilyMembers(ctx, id)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, fresh := signUp(t, srv, st, false)
	require.NotNil(t, fresh.FamilyID)
	assert.Greater(t, *fresh.FamilyID, id)
}

func TestRegisterAdminHasNoFamily(t *testing.T) {
	srv, st := setup(t)
	_, u := signUp(t, srv, st, true)
	assert.True(t, u.IsAdmin)
	assert.Nil(t, u.FamilyID)
}

func TestBulkUploadSkipsSameBatchDuplicate(t *testing.T) {
	srv, st := setup(t)
	admin, _ := signUp(t, srv, st, true)
	lat, lng := rand.Float64()*100-50, rand.Float64()*300-150

	res, body := postJSON(t, admin, srv.URL+"/foodmap/bulk_upload", map[string]any{"locations": []map[string]any{
		{"lat": lat, "lng": lng, "name": "Depot"},
		{"lat": lat + 0.0001, "lng": lng, "name": "Depot again"},
		{"lat": -lat, "lng": lng + 10, "name": "Far depot"},
		{"lat": 200, "lng": 0},
	}})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 2, body["added"])
	assert.EqualValues(t, 1, body["skipped"])
	errs, ok := body["errors"].([]any)
	require.True(t, ok)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "location 4")

	res, body = postJSON(t, admin, srv.URL+"/foodmap/bulk_upload", map[string]any{"locations": []any{}})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "No locations provided", body["message"])
}

func deleteJSON(t *testing.T, c *http.Client, u string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, u, nil)
	require.NoError(t, err)
	res, err := c.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return res, out
}

func TestDeleteLocation(t *testing.T) {
	srv, st := setup(t)
	admin, _ := signUp(t, srv, st, true)
	p := map[string]any{"lat": rand.Float64()*100 - 50, "lng": rand.Float64()*300 - 150, "name": "Gone soon"}
	res, body := postJSON(t, admin, srv.URL+"/foodmap/save_location", p)
	require.Equal(t, http.StatusOK, res.StatusCode)
	id := int64(body["location"].(map[string]any)["id"].(float64))
	u := fmt.Sprintf("%s/foodmap/delete_location/%d", srv.URL, id)

	res, body = deleteJSON(t, admin, u)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "success", body["status"])

	res, body = deleteJSON(t, admin, u)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Location not found", body["message"])

	// the point is free again
	res, _ = postJSON(t, admin, srv.URL+"/foodmap/save_location", p)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestEventChat(t *testing.T) {
	srv, st := setup(t)
	ctx := context.Background()
	member, mu := signUp(t, srv, st, false)
	outsider, _ := signUp(t, srv, st, false)
	require.NotNil(t, mu.FamilyID)

	now := time.Now().UTC().Truncate(time.Minute)
	e := &model.Event{Title: "Picnic", Start: now, End: now.Add(time.Hour), FamilyIDs: []int64{*mu.FamilyID}}
	require.NoError(t, st.CreateEvent(ctx, e))
	base := fmt.Sprintf("%s/event/%d", srv.URL, e.ID)

	t.Run("invisible", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, getJSON(t, outsider, base+"/chat/messages", nil).StatusCode)
		res, _ := postJSON(t, outsider, base+"/chat/send", map[string]any{"content": "hi"})
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})

	res, body := postJSON(t, member, base+"/chat/send", map[string]any{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Equal(t, "You must be a participant to send messages", body["error"])

	res = postForm(t, member, base+"/participate", url.Values{})
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	res, body = postJSON(t, member, base+"/chat/send", map[string]any{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Message cannot be empty", body["error"])

	var sent []int64
	for _, text := range []string{"one", "two", "three"} {
		res, body = postJSON(t, member, base+"/chat/send", map[string]any{"content": text})
		require.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, text, body["content"])
		assert.Equal(t, "tester", body["username"])
		assert.EqualValues(t, mu.ID, body["user_id"])
		sent = append(sent, int64(body["id"].(float64)))
	}

	var all []chat.Message
	require.Equal(t, http.StatusOK, getJSON(t, member, base+"/chat/messages", &all).StatusCode)
	require.Len(t, all, 3)
	for i, m := range all {
		assert.Equal(t, sent[i], m.ID)
	}

	var newer []chat.Message
	require.Equal(t, http.StatusOK, getJSON(t, member, fmt.Sprintf("%s/chat/messages?last_id=%d", base, sent[0]), &newer).StatusCode)
	require.Len(t, newer, 2)
	assert.Equal(t, "two", newer[0].Content)
	assert.Equal(t, "three", newer[1].Content)

	var none []chat.Message
	require.Equal(t, http.StatusOK, getJSON(t, member, fmt.Sprintf("%s/chat/messages?last_id=%d", base, sent[2]), &none).StatusCode)
	assert.Empty(t, none)
}
