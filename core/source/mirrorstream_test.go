package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunesync/model"
)

func mirrorFixture(t *testing.T, status int, titles ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[`)
		for i, title := range titles {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"title":%q,"url":"https://cdn.example/%d.mp3","quality":"320kbps","size":9000000}`, title, i)
		}
		fmt.Fprint(w, `]}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMirrorstreamSearchFirstHealthyMirrorWins(t *testing.T) {
	down := mirrorFixture(t, http.StatusInternalServerError)
	up := mirrorFixture(t, http.StatusOK, "M83 - Midnight City.mp3")

	client := NewMirrorstreamClient([]string{down.URL, up.URL})
	candidates, err := client.Search(context.Background(), model.Track{Title: "Midnight City", Artist: "M83"})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, model.StatusReady, candidates[0].Status)
	assert.Equal(t, "https://cdn.example/0.mp3", candidates[0].StreamURL)
}

func TestMirrorstreamSearchAllMirrorsUnreachable(t *testing.T) {
	a := mirrorFixture(t, http.StatusInternalServerError)
	b := mirrorFixture(t, http.StatusBadGateway)

	client := NewMirrorstreamClient([]string{a.URL, b.URL})
	candidates, err := client.Search(context.Background(), model.Track{Title: "Midnight City", Artist: "M83"})

	assert.Error(t, err)
	assert.Nil(t, candidates)
}

func TestMirrorstreamSearchTrackNotOnMirrors(t *testing.T) {
	down := mirrorFixture(t, http.StatusInternalServerError)
	empty := mirrorFixture(t, http.StatusOK)

	client := NewMirrorstreamClient([]string{down.URL, empty.URL})
	candidates, err := client.Search(context.Background(), model.Track{Title: "Midnight City", Artist: "M83"})

	// one mirror answered with nothing: a no-match, not an outage
	assert.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestMirrorstreamSearchNoHostsConfigured(t *testing.T) {
	client := NewMirrorstreamClient(nil)
	candidates, err := client.Search(context.Background(), model.Track{Title: "Midnight City"})
	assert.NoError(t, err)
	assert.Nil(t, candidates)
}

func TestMirrorstreamSearchFiltersMismatchedTitles(t *testing.T) {
	srv := mirrorFixture(t, http.StatusOK, "Completely Different Song.mp3", "M83 - Midnight City.mp3")

	client := NewMirrorstreamClient([]string{srv.URL})
	candidates, err := client.Search(context.Background(), model.Track{Title: "Midnight City", Artist: "M83"})

	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "M83 - Midnight City.mp3", candidates[0].FileName)
}
