package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"auxparty/internal/core"
)

const spotifyPageLimit = 50

// SpotifyClient wraps the Spotify Web API. A fresh SDK client is built per
// call from the token layer's current access token, so a mid-session refresh
// never strands a stale client.
type SpotifyClient struct {
	tokens   core.TokenSource
	limiters *RateLimiterMap
	logger   *zap.Logger

	// baseURL overrides the SDK's API root; empty in production.
	baseURL string
}

var _ core.CatalogClient = (*SpotifyClient)(nil)

func NewSpotifyClient(tokens core.TokenSource, limiters *RateLimiterMap, logger *zap.Logger) *SpotifyClient {
	return &SpotifyClient{
		tokens:   tokens,
		limiters: limiters,
		logger:   logger.Named("spotify"),
	}
}

func (c *SpotifyClient) api(ctx context.Context, userID string) (*spotify.Client, error) {
	accessToken, err := c.tokens.ValidAccessToken(ctx, userID, core.ProviderSpotify)
	if err != nil {
		return nil, err
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	opts := []spotify.ClientOption{}
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	return spotify.New(httpClient, opts...), nil
}

// FetchLikedSongs pages through the user's saved tracks. The loop follows the
// response's next link until the API reports no more pages.
func (c *SpotifyClient) FetchLikedSongs(ctx context.Context, userID string) ([]core.Track, error) {
	api, err := c.api(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
		return nil, err
	}
	page, err := api.CurrentUsersTracks(ctx, spotify.Limit(spotifyPageLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch liked songs: %v", core.ErrUpstreamProvider, err)
	}

	var tracks []core.Track
	for {
		for i := range page.Tracks {
			tracks = append(tracks, convertSpotifyTrack(&page.Tracks[i].FullTrack))
		}

		if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
			return nil, err
		}
		err = api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch liked songs: %v", core.ErrUpstreamProvider, err)
		}
	}

	c.logger.Debug("fetched liked songs", zap.String("user", userID), zap.Int("count", len(tracks)))
	return tracks, nil
}

func (c *SpotifyClient) FetchPlaylists(ctx context.Context, userID string) ([]core.PlaylistSummary, error) {
	api, err := c.api(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
		return nil, err
	}
	page, err := api.CurrentUsersPlaylists(ctx, spotify.Limit(spotifyPageLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch playlists: %v", core.ErrUpstreamProvider, err)
	}

	var playlists []core.PlaylistSummary
	for {
		for i := range page.Playlists {
			p := &page.Playlists[i]
			playlists = append(playlists, core.PlaylistSummary{
				ID:          string(p.ID),
				Name:        p.Name,
				Description: p.Description,
				TrackCount:  int(p.Tracks.Total),
			})
		}

		if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
			return nil, err
		}
		err = api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch playlists: %v", core.ErrUpstreamProvider, err)
		}
	}
	return playlists, nil
}

func (c *SpotifyClient) FetchPlaylistTracks(ctx context.Context, userID, playlistID string) ([]core.Track, error) {
	api, err := c.api(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
		return nil, err
	}
	page, err := api.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(spotifyPageLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch playlist tracks: %v", core.ErrUpstreamProvider, err)
	}

	var tracks []core.Track
	for {
		for i := range page.Items {
			// Episodes and removed items come back with a nil track.
			if page.Items[i].Track.Track == nil {
				continue
			}
			tracks = append(tracks, convertSpotifyTrack(page.Items[i].Track.Track))
		}

		if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
			return nil, err
		}
		err = api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to fetch playlist tracks: %v", core.ErrUpstreamProvider, err)
		}
	}
	return tracks, nil
}

func (c *SpotifyClient) SearchTrack(ctx context.Context, userID, query string, limit int) ([]core.Track, error) {
	api, err := c.api(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := c.limiters.Wait(ctx, core.ProviderSpotify); err != nil {
		return nil, err
	}
	results, err := api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: track search failed: %v", core.ErrUpstreamProvider, err)
	}
	if results.Tracks == nil {
		return nil, nil
	}

	var tracks []core.Track
	for i := range results.Tracks.Tracks {
		tracks = append(tracks, convertSpotifyTrack(&results.Tracks.Tracks[i]))
	}
	return tracks, nil
}

func convertSpotifyTrack(t *spotify.FullTrack) core.Track {
	var artists []string
	for _, artist := range t.Artists {
		artists = append(artists, artist.Name)
	}
	return core.Track{
		Title:           t.Name,
		Artist:          strings.Join(artists, ", "),
		Album:           t.Album.Name,
		ProviderTrackID: string(t.ID),
		Provider:        core.ProviderSpotify,
		ResolvedURI:     "spotify:track:" + string(t.ID),
	}
}
