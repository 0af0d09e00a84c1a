package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"auxparty/internal/core"
)

const (
	appleBaseURL   = "https://api.music.apple.com/v1"
	applePageLimit = 100
	appleStorefront = "us"
)

// Apple Music API response types based on
// https://developer.apple.com/documentation/applemusicapi
type appleSongAttributes struct {
	Name       string `json:"name"`
	ArtistName string `json:"artistName"`
	AlbumName  string `json:"albumName"`
	PlayParams struct {
		ID        string `json:"id"`
		CatalogID string `json:"catalogId"`
	} `json:"playParams"`
}

type appleSong struct {
	ID         string              `json:"id"`
	Attributes appleSongAttributes `json:"attributes"`
}

type applePage struct {
	Data []appleSong `json:"data"`
}

type applePlaylistPage struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Name        string `json:"name"`
			Description struct {
				Standard string `json:"standard"`
			} `json:"description"`
		} `json:"attributes"`
	} `json:"data"`
}

type appleSearchResponse struct {
	Results struct {
		Songs struct {
			Data []appleSong `json:"data"`
		} `json:"songs"`
	} `json:"results"`
}

// AppleClient talks to the Apple Music library and catalog APIs. Library
// endpoints page by offset with a fixed limit; a short page terminates the
// loop.
type AppleClient struct {
	tokens   core.TokenSource
	limiters *RateLimiterMap
	logger   *zap.Logger
	http     *http.Client
	baseURL  string
}

var _ core.CatalogClient = (*AppleClient)(nil)

func NewAppleClient(tokens core.TokenSource, limiters *RateLimiterMap, logger *zap.Logger) *AppleClient {
	return &AppleClient{
		tokens:   tokens,
		limiters: limiters,
		logger:   logger.Named("apple"),
		http:     http.DefaultClient,
		baseURL:  appleBaseURL,
	}
}

func (c *AppleClient) get(ctx context.Context, userID, path string, query url.Values, out any) error {
	accessToken, err := c.tokens.ValidAccessToken(ctx, userID, core.ProviderApple)
	if err != nil {
		return err
	}
	if err := c.limiters.Wait(ctx, core.ProviderApple); err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Music-User-Token", accessToken)

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return getJSON(ctx, c.http, u, accessToken, header, out)
}

// pageLibrarySongs walks an offset-paginated library endpoint. The last page
// is the first one shorter than the limit.
func (c *AppleClient) pageLibrarySongs(ctx context.Context, userID, path string) ([]core.Track, error) {
	var tracks []core.Track
	offset := 0
	for {
		query := url.Values{
			"limit":  {strconv.Itoa(applePageLimit)},
			"offset": {strconv.Itoa(offset)},
		}
		var page applePage
		if err := c.get(ctx, userID, path, query, &page); err != nil {
			return nil, err
		}

		for _, song := range page.Data {
			tracks = append(tracks, convertAppleSong(song))
		}

		if len(page.Data) < applePageLimit {
			break
		}
		offset += applePageLimit
	}
	return tracks, nil
}

func (c *AppleClient) FetchLikedSongs(ctx context.Context, userID string) ([]core.Track, error) {
	tracks, err := c.pageLibrarySongs(ctx, userID, "/me/library/songs")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch liked songs: %w", err)
	}
	c.logger.Debug("fetched library songs", zap.String("user", userID), zap.Int("count", len(tracks)))
	return tracks, nil
}

func (c *AppleClient) FetchPlaylists(ctx context.Context, userID string) ([]core.PlaylistSummary, error) {
	var playlists []core.PlaylistSummary
	offset := 0
	for {
		query := url.Values{
			"limit":  {strconv.Itoa(applePageLimit)},
			"offset": {strconv.Itoa(offset)},
		}
		var page applePlaylistPage
		if err := c.get(ctx, userID, "/me/library/playlists", query, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch playlists: %w", err)
		}

		for _, p := range page.Data {
			playlists = append(playlists, core.PlaylistSummary{
				ID:          p.ID,
				Name:        p.Attributes.Name,
				Description: p.Attributes.Description.Standard,
			})
		}

		if len(page.Data) < applePageLimit {
			break
		}
		offset += applePageLimit
	}
	return playlists, nil
}

func (c *AppleClient) FetchPlaylistTracks(ctx context.Context, userID, playlistID string) ([]core.Track, error) {
	tracks, err := c.pageLibrarySongs(ctx, userID, "/me/library/playlists/"+playlistID+"/tracks")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist tracks: %w", err)
	}
	return tracks, nil
}

func (c *AppleClient) SearchTrack(ctx context.Context, userID, query string, limit int) ([]core.Track, error) {
	values := url.Values{
		"types": {"songs"},
		"term":  {query},
		"limit": {strconv.Itoa(limit)},
	}
	var resp appleSearchResponse
	if err := c.get(ctx, userID, "/catalog/"+appleStorefront+"/search", values, &resp); err != nil {
		return nil, fmt.Errorf("track search failed: %w", err)
	}

	var tracks []core.Track
	for _, song := range resp.Results.Songs.Data {
		tracks = append(tracks, convertAppleSong(song))
	}
	return tracks, nil
}

func convertAppleSong(song appleSong) core.Track {
	// Library songs carry a catalog ID in playParams; prefer it so matches
	// resolve to globally playable items.
	id := song.Attributes.PlayParams.CatalogID
	if id == "" {
		id = song.ID
	}
	return core.Track{
		Title:           song.Attributes.Name,
		Artist:          song.Attributes.ArtistName,
		Album:           song.Attributes.AlbumName,
		ProviderTrackID: id,
		Provider:        core.ProviderApple,
		ResolvedURI:     "https://music.apple.com/" + appleStorefront + "/song/" + id,
	}
}
