package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/amiya-sh/amiya/events"
)

type fakeMedia struct {
	players    []string
	identities map[string]string
	status     string
	track      TrackInfo
	volume     float64
	commands   []string
	failCmd    bool
}

func (f *fakeMedia) ListPlayers(ctx context.Context) ([]string, error) { return f.players, nil }

func (f *fakeMedia) Identity(ctx context.Context, busName string) (string, error) {
	if id, ok := f.identities[busName]; ok {
		return id, nil
	}
	return "", errors.New("no identity")
}

func (f *fakeMedia) Command(ctx context.Context, busName, method string) error {
	if f.failCmd {
		return errors.New("player gone")
	}
	f.commands = append(f.commands, method)
	return nil
}

func (f *fakeMedia) PlaybackStatus(ctx context.Context, busName string) (string, error) {
	return f.status, nil
}

func (f *fakeMedia) Metadata(ctx context.Context, busName string) (TrackInfo, error) {
	return f.track, nil
}

func (f *fakeMedia) Volume(ctx context.Context, busName string) (float64, error) {
	return f.volume, nil
}

func (f *fakeMedia) SetVolume(ctx context.Context, busName string, volume float64) error {
	f.volume = volume
	return nil
}

func newTestMedia(t *testing.T, service mediaService, active string) (*MediaControl, *events.Subscriber) {
	t.Helper()
	bus, sub := newTestBus(t)
	media := NewMediaControl(discardLogger(), bus)
	media.service = service
	media.active = active
	media.status = StatusConnected
	return media, sub
}

func TestMediaDefaults(t *testing.T) {
	bus, _ := newTestBus(t)
	media := NewMediaControl(discardLogger(), bus)

	snap := media.Snapshot()
	require.Empty(t, snap.Player)
	require.False(t, snap.Playing)
	require.Equal(t, 1.0, snap.Volume)
	require.False(t, media.IsAvailable())
}

func TestMediaPlayPauseToggles(t *testing.T) {
	fake := &fakeMedia{}
	media, sub := newTestMedia(t, fake, "org.mpris.MediaPlayer2.spotify")
	ctx := context.Background()

	require.NoError(t, media.PlayPause(ctx))
	require.True(t, media.Snapshot().Playing)
	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.MediaPlaybackChanged{Playing: true}, ev)

	require.NoError(t, media.PlayPause(ctx))
	require.False(t, media.Snapshot().Playing)
	requireSingleEvent(t, sub)

	require.Equal(t, []string{"PlayPause", "PlayPause"}, fake.commands)
}

func TestMediaPlayStopPause(t *testing.T) {
	fake := &fakeMedia{}
	media, sub := newTestMedia(t, fake, "org.mpris.MediaPlayer2.mpv")
	ctx := context.Background()

	require.NoError(t, media.Play(ctx))
	require.True(t, media.Snapshot().Playing)
	require.NoError(t, media.Pause(ctx))
	require.False(t, media.Snapshot().Playing)
	require.NoError(t, media.Stop(ctx))
	require.False(t, media.Snapshot().Playing)

	require.Len(t, drainEvents(sub), 3)
	require.Equal(t, []string{"Play", "Pause", "Stop"}, fake.commands)
}

func TestMediaCommandFailureStillSucceeds(t *testing.T) {
	media, sub := newTestMedia(t, &fakeMedia{failCmd: true}, "org.mpris.MediaPlayer2.mpv")

	require.NoError(t, media.Play(context.Background()))
	require.True(t, media.Snapshot().Playing)
	requireSingleEvent(t, sub)
}

func TestMediaNextPublishesTrack(t *testing.T) {
	fake := &fakeMedia{track: TrackInfo{Title: "Song Two", Artist: "Band", Album: "Album"}}
	media, sub := newTestMedia(t, fake, "org.mpris.MediaPlayer2.spotify")

	require.NoError(t, media.Next(context.Background()))

	require.Equal(t, []string{"Next"}, fake.commands)
	require.Equal(t, "Song Two", media.Snapshot().Track.Title)

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.MediaTrackChanged{Title: "Song Two", Artist: "Band", Album: "Album"}, ev)
}

func TestMediaSetVolumeClamps(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   float64
	}{
		{name: "in range", volume: 0.4, want: 0.4},
		{name: "above max", volume: 1.5, want: 1.0},
		{name: "below min", volume: -0.2, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMedia{}
			media, sub := newTestMedia(t, fake, "org.mpris.MediaPlayer2.mpv")

			require.NoError(t, media.SetVolume(context.Background(), tt.volume))
			require.Equal(t, tt.want, media.Snapshot().Volume)
			require.Equal(t, tt.want, fake.volume)

			ev := requireSingleEvent(t, sub)
			require.Equal(t, events.MediaVolumeChanged{Volume: tt.want}, ev)
		})
	}
}

func TestMediaSetActivePlayer(t *testing.T) {
	fake := &fakeMedia{
		identities: map[string]string{"org.mpris.MediaPlayer2.spotify": "Spotify"},
		status:     "Playing",
		track:      TrackInfo{Title: "Song One"},
		volume:     0.8,
	}
	media, sub := newTestMedia(t, fake, "")

	require.NoError(t, media.SetActivePlayer(context.Background(), "org.mpris.MediaPlayer2.spotify"))

	snap := media.Snapshot()
	require.Equal(t, "Spotify", snap.Player)
	require.True(t, snap.Playing)
	require.Equal(t, "Song One", snap.Track.Title)
	require.Equal(t, 0.8, snap.Volume)

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.MediaPlayerChanged{Player: "Spotify"}, ev)
}

func TestMediaActivePlayerFallsBackToBusName(t *testing.T) {
	media, sub := newTestMedia(t, &fakeMedia{}, "")

	require.NoError(t, media.SetActivePlayer(context.Background(), "org.mpris.MediaPlayer2.vlc"))
	require.Equal(t, "vlc", media.Snapshot().Player)
	requireSingleEvent(t, sub)
}

func TestMediaRefreshPlayersKeepsActive(t *testing.T) {
	fake := &fakeMedia{players: []string{
		"org.mpris.MediaPlayer2.mpv",
		"org.mpris.MediaPlayer2.spotify",
	}}
	media, sub := newTestMedia(t, fake, "org.mpris.MediaPlayer2.spotify")

	require.NoError(t, media.RefreshPlayers(context.Background()))
	require.Len(t, media.Players(), 2)
	// Active player unchanged, no event.
	require.Empty(t, drainEvents(sub))
}

func TestMediaRefreshPlayersReplacesVanishedActive(t *testing.T) {
	fake := &fakeMedia{players: []string{"org.mpris.MediaPlayer2.mpv"}}
	media, sub := newTestMedia(t, fake, "org.mpris.MediaPlayer2.spotify")

	require.NoError(t, media.RefreshPlayers(context.Background()))

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.MediaPlayerChanged{Player: "mpv"}, ev)
}

func TestMediaRefreshPlayersAllGone(t *testing.T) {
	media, sub := newTestMedia(t, &fakeMedia{}, "org.mpris.MediaPlayer2.spotify")

	require.NoError(t, media.RefreshPlayers(context.Background()))

	ev := requireSingleEvent(t, sub)
	require.Equal(t, events.MediaPlayerChanged{Player: ""}, ev)
	require.False(t, media.IsAvailable())
}
