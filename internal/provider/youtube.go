package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"auxparty/internal/core"
)

const (
	youtubeBaseURL   = "https://www.googleapis.com/youtube/v3"
	youtubePageLimit = 50
)

// videoIDRegex validates the canonical 11-character video ID. Search results
// occasionally surface channel or playlist hits with other shapes; those are
// dropped before the batch lookup.
var videoIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

type youtubeSnippet struct {
	Title                 string `json:"title"`
	ChannelTitle          string `json:"channelTitle"`
	VideoOwnerChannelTitle string `json:"videoOwnerChannelTitle"`
	ResourceID            struct {
		VideoID string `json:"videoId"`
	} `json:"resourceId"`
}

type youtubeVideoPage struct {
	Items []struct {
		ID      string         `json:"id"`
		Snippet youtubeSnippet `json:"snippet"`
		Status  struct {
			Embeddable bool `json:"embeddable"`
		} `json:"status"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type youtubePlaylistPage struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"snippet"`
		ContentDetails struct {
			ItemCount int `json:"itemCount"`
		} `json:"contentDetails"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type youtubePlaylistItemPage struct {
	Items []struct {
		Snippet youtubeSnippet `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

type youtubeSearchPage struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet youtubeSnippet `json:"snippet"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

// YouTubeClient reads the user's music through the YouTube Data API. Music
// videos stand in for tracks: the video title is the track title and the
// owning channel the artist.
type YouTubeClient struct {
	cfg      *core.YouTubeConfig
	tokens   core.TokenSource
	limiters *RateLimiterMap
	logger   *zap.Logger
	http     *http.Client
	baseURL  string
}

var _ core.CatalogClient = (*YouTubeClient)(nil)

func NewYouTubeClient(cfg *core.YouTubeConfig, tokens core.TokenSource, limiters *RateLimiterMap, logger *zap.Logger) *YouTubeClient {
	return &YouTubeClient{
		cfg:      cfg,
		tokens:   tokens,
		limiters: limiters,
		logger:   logger.Named("youtube"),
		http:     http.DefaultClient,
		baseURL:  youtubeBaseURL,
	}
}

func (c *YouTubeClient) get(ctx context.Context, userID, path string, query url.Values, out any) error {
	accessToken, err := c.tokens.ValidAccessToken(ctx, userID, core.ProviderYouTube)
	if err != nil {
		return err
	}
	if err := c.limiters.Wait(ctx, core.ProviderYouTube); err != nil {
		return err
	}
	return getJSON(ctx, c.http, c.baseURL+path+"?"+query.Encode(), accessToken, nil, out)
}

// FetchLikedSongs pages the user's liked videos. Pagination stops when the
// response carries no nextPageToken. Videos that are not embeddable, or whose
// ID fails the canonical shape, never reach the caller.
func (c *YouTubeClient) FetchLikedSongs(ctx context.Context, userID string) ([]core.Track, error) {
	var tracks []core.Track
	pageToken := ""
	for {
		query := url.Values{
			"part":       {"snippet,contentDetails,status"},
			"myRating":   {"like"},
			"maxResults": {strconv.Itoa(youtubePageLimit)},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page youtubeVideoPage
		if err := c.get(ctx, userID, "/videos", query, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch liked songs: %w", err)
		}

		for _, item := range page.Items {
			if !videoIDRegex.MatchString(item.ID) || !item.Status.Embeddable {
				continue
			}
			tracks = append(tracks, core.Track{
				Title:           item.Snippet.Title,
				Artist:          item.Snippet.ChannelTitle,
				ProviderTrackID: item.ID,
				Provider:        core.ProviderYouTube,
				ResolvedURI:     "https://www.youtube.com/watch?v=" + item.ID,
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	c.logger.Debug("fetched liked videos", zap.String("user", userID), zap.Int("count", len(tracks)))
	return tracks, nil
}

func (c *YouTubeClient) FetchPlaylists(ctx context.Context, userID string) ([]core.PlaylistSummary, error) {
	var playlists []core.PlaylistSummary
	pageToken := ""
	for {
		query := url.Values{
			"part":       {"snippet,contentDetails"},
			"mine":       {"true"},
			"maxResults": {strconv.Itoa(youtubePageLimit)},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page youtubePlaylistPage
		if err := c.get(ctx, userID, "/playlists", query, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch playlists: %w", err)
		}

		for _, item := range page.Items {
			playlists = append(playlists, core.PlaylistSummary{
				ID:          item.ID,
				Name:        item.Snippet.Title,
				Description: item.Snippet.Description,
				TrackCount:  item.ContentDetails.ItemCount,
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	return playlists, nil
}

// FetchPlaylistTracks pages the playlist's items, then re-checks every video
// through the videos endpoint. Playlist item snippets carry no embeddable
// flag, so the batch lookup is the only place that can drop deleted, private
// and region-locked videos.
func (c *YouTubeClient) FetchPlaylistTracks(ctx context.Context, userID, playlistID string) ([]core.Track, error) {
	var ids []string
	artists := make(map[string]string)
	pageToken := ""
	for {
		query := url.Values{
			"part":       {"snippet"},
			"playlistId": {playlistID},
			"maxResults": {strconv.Itoa(youtubePageLimit)},
		}
		if pageToken != "" {
			query.Set("pageToken", pageToken)
		}

		var page youtubePlaylistItemPage
		if err := c.get(ctx, userID, "/playlistItems", query, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch playlist tracks: %w", err)
		}

		for _, item := range page.Items {
			id := item.Snippet.ResourceID.VideoID
			if !videoIDRegex.MatchString(id) {
				continue
			}
			artist := item.Snippet.VideoOwnerChannelTitle
			if artist == "" {
				artist = item.Snippet.ChannelTitle
			}
			ids = append(ids, id)
			artists[id] = artist
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tracks, err := c.lookupEmbeddable(ctx, userID, ids, artists)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist tracks: %w", err)
	}
	return tracks, nil
}

// SearchTrack runs an embeddable-only video search, then re-checks the
// surviving IDs against the videos endpoint: the search filter is advisory
// and unembeddable videos would break in-page playback later.
func (c *YouTubeClient) SearchTrack(ctx context.Context, userID, query string, limit int) ([]core.Track, error) {
	values := url.Values{
		"part":            {"snippet"},
		"type":            {"video"},
		"videoEmbeddable": {"true"},
		"q":               {query},
		"maxResults":      {strconv.Itoa(limit)},
	}
	var page youtubeSearchPage
	if err := c.get(ctx, userID, "/search", values, &page); err != nil {
		return nil, fmt.Errorf("track search failed: %w", err)
	}

	var ids []string
	artists := make(map[string]string)
	for _, item := range page.Items {
		id := item.ID.VideoID
		if !videoIDRegex.MatchString(id) {
			continue
		}
		ids = append(ids, id)
		artists[id] = item.Snippet.ChannelTitle
	}
	if len(ids) == 0 {
		return nil, nil
	}

	tracks, err := c.lookupEmbeddable(ctx, userID, ids, artists)
	if err != nil {
		return nil, fmt.Errorf("track search failed: %w", err)
	}
	return tracks, nil
}

// lookupEmbeddable fetches the given video IDs in batches and keeps the
// embeddable ones. artists supplies a per-ID fallback for endpoints whose
// snippets name the owner better than the videos endpoint does.
func (c *YouTubeClient) lookupEmbeddable(ctx context.Context, userID string, ids []string, artists map[string]string) ([]core.Track, error) {
	var tracks []core.Track
	for start := 0; start < len(ids); start += youtubePageLimit {
		end := start + youtubePageLimit
		if end > len(ids) {
			end = len(ids)
		}

		values := url.Values{
			"part": {"snippet,status"},
			"id":   {strings.Join(ids[start:end], ",")},
		}
		var videos youtubeVideoPage
		if err := c.get(ctx, userID, "/videos", values, &videos); err != nil {
			return nil, err
		}

		for _, item := range videos.Items {
			if !item.Status.Embeddable {
				continue
			}
			artist := item.Snippet.ChannelTitle
			if artist == "" {
				artist = artists[item.ID]
			}
			tracks = append(tracks, core.Track{
				Title:           item.Snippet.Title,
				Artist:          artist,
				ProviderTrackID: item.ID,
				Provider:        core.ProviderYouTube,
				ResolvedURI:     "https://www.youtube.com/watch?v=" + item.ID,
			})
		}
	}
	return tracks, nil
}
