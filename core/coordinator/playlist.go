package coordinator

import (
	"context"
	"fmt"
	"sync"

	"Musync/logger"
	"Musync/model"
)

// ProcessPlaylist reconciles stored memberships with the current remote file list.
// New urls are ingested, vanished ones are flagged missing, and returning ones restored.
func (c *FileCoordinator) ProcessPlaylist(ctx context.Context, playlistID string, files []string) error {
	playlist, err := c.playlists.GetPlaylistByID(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("get playlist %s: %w", playlistID, err)
	}
	if playlist == nil {
		return fmt.Errorf("%w: %s", ErrPlaylistNotFound, playlistID)
	}

	subs, err := c.playlists.GetUserPlaylistsByPlaylistID(ctx, playlistID)
	if err != nil {
		return fmt.Errorf("get subscriptions of playlist %s: %w", playlistID, err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSubscribers, playlistID)
	}

	wanted, order := c.normalizeAll(ctx, playlistID, files)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		missing = make(map[string]struct{})
	)
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *model.UserPlaylist) {
			defer wg.Done()
			absent, err := c.reconcileSubscription(ctx, sub, wanted, order)
			if err != nil {
				logger.Error("[ProcessPlaylist] subscription reconcile failed",
					logger.PlaylistID(playlistID),
					logger.UserID(sub.UserID),
					logger.ErrorField(err))
				return
			}
			mu.Lock()
			for _, u := range absent {
				missing[u] = struct{}{}
			}
			mu.Unlock()
		}(sub)
	}
	wg.Wait()

	added := 0
	for _, u := range order {
		if _, ok := missing[u]; !ok {
			continue
		}
		if err := c.DownloadFile(ctx, playlistID, u); err != nil {
			logger.Error("[ProcessPlaylist] download failed",
				logger.PlaylistID(playlistID),
				logger.String("url", u),
				logger.ErrorField(err))
			continue
		}
		added++
	}

	if err := c.playlists.MarkPlaylistSynchronized(ctx, playlistID, c.now()); err != nil {
		return fmt.Errorf("mark playlist %s synchronized: %w", playlistID, err)
	}
	logger.Info("[ProcessPlaylist] playlist reconciled",
		logger.PlaylistID(playlistID),
		logger.Int("remote", len(order)),
		logger.Int("added", added),
		logger.Int("subscribers", len(subs)))
	return nil
}

// normalizeAll dedupes the remote list by canonical url, keeping first-seen order.
func (c *FileCoordinator) normalizeAll(ctx context.Context, playlistID string, files []string) (map[string]struct{}, []string) {
	wanted := make(map[string]struct{}, len(files))
	order := make([]string, 0, len(files))
	for _, raw := range files {
		u, err := c.filePlugin.NormalizeURL(ctx, raw)
		if err != nil {
			logger.Warn("[ProcessPlaylist] skipping unsupported url",
				logger.PlaylistID(playlistID),
				logger.String("url", raw),
				logger.ErrorField(err))
			continue
		}
		if _, dup := wanted[u]; dup {
			continue
		}
		wanted[u] = struct{}{}
		order = append(order, u)
	}
	return wanted, order
}

// reconcileSubscription flags memberships for one user and returns wanted urls the user lacks.
func (c *FileCoordinator) reconcileSubscription(ctx context.Context, sub *model.UserPlaylist, wanted map[string]struct{}, order []string) ([]string, error) {
	memberships, err := c.playlists.GetMembershipsWithURL(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("get memberships: %w", err)
	}

	current := make(map[string]struct{}, len(memberships))
	for _, m := range memberships {
		current[m.SourceURL] = struct{}{}
		_, stillRemote := wanted[m.SourceURL]

		switch {
		case !stillRemote && !m.MissingFromRemote:
			if err := c.setMissing(ctx, sub.UserID, m, true); err != nil {
				return nil, err
			}
		case stillRemote && m.MissingFromRemote:
			if err := c.setMissing(ctx, sub.UserID, m, false); err != nil {
				return nil, err
			}
		}
	}

	var absent []string
	for _, u := range order {
		if _, ok := current[u]; !ok {
			absent = append(absent, u)
		}
	}
	return absent, nil
}

func (c *FileCoordinator) setMissing(ctx context.Context, userID string, m *model.MembershipWithURL, missing bool) error {
	if err := c.playlists.SetMissingFromRemote(ctx, m.ID, missing); err != nil {
		return fmt.Errorf("set missing_from_remote on %s: %w", m.ID, err)
	}
	logger.Info("[ProcessPlaylist] membership updated",
		logger.UserID(userID),
		logger.FileID(m.FileID),
		logger.Bool("missingFromRemote", missing))
	return c.invalidateUserFile(ctx, userID, m.FileID)
}
