package media

import (
	"context"
	"net/url"

	"personalos/internal/core"
)

const KindPodcastArtwork = "podcast_artwork"

// PodcastArtwork is the response of a successful podcast lookup.
type PodcastArtwork struct {
	ArtworkURL  string `json:"artworkUrl"`
	PodcastName string `json:"podcastName"`
	ArtistName  string `json:"artistName"`
	FeedURL     string `json:"feedUrl"`
}

type iTunesResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		CollectionName string `json:"collectionName"`
		ArtistName     string `json:"artistName"`
		ArtworkURL100  string `json:"artworkUrl100"`
		ArtworkURL600  string `json:"artworkUrl600"`
		FeedURL        string `json:"feedUrl"`
	} `json:"results"`
}

// PodcastArtwork searches the iTunes directory for a podcast by name.
func (s *Service) PodcastArtwork(ctx context.Context, name string) (PodcastArtwork, error) {
	f, err := s.podcastChain.Lookup(ctx, name)
	if err != nil {
		return PodcastArtwork{}, err
	}
	return f.Value, nil
}

func (s *Service) iTunes(ctx context.Context, name string) (PodcastArtwork, error) {
	params := url.Values{
		"term":   {name},
		"media":  {"podcast"},
		"entity": {"podcast"},
		"limit":  {"1"},
	}

	var resp iTunesResponse
	if err := getJSON(ctx, s.client, s.endpoints.ITunes+"/search?"+params.Encode(), apiUserAgent, &resp); err != nil {
		return PodcastArtwork{}, err
	}
	if len(resp.Results) == 0 {
		return PodcastArtwork{}, core.ErrNotFound
	}

	p := resp.Results[0]
	artwork := p.ArtworkURL600
	if artwork == "" {
		artwork = p.ArtworkURL100
	}
	return PodcastArtwork{
		ArtworkURL:  artwork,
		PodcastName: p.CollectionName,
		ArtistName:  p.ArtistName,
		FeedURL:     p.FeedURL,
	}, nil
}
