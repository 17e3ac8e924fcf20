package store

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/datafile"
)

// Refresh indexes records that other writers have appended to the data
// directory since they were last seen.
func (S *DataDirStore) Refresh(ctx context.Context) (added int, err error) {
	ids, err := S.files.Files()
	if err != nil {
		return
	}
	for _, id := range ids {
		if S.files.Owns(id) {
			continue
		}
		n, err := S.refreshFile(ctx, id)
		if err != nil {
			return added, err
		}
		added += n
	}
	return
}

func (S *DataDirStore) refreshFile(ctx context.Context, id int) (added int, err error) {
	S.markMu.Lock()
	start := S.watermarks[id]
	S.markMu.Unlock()
	added, _, _, err = S.indexFile(ctx, id, start)
	if added > 0 {
		log.Debugf("%s: indexed %d chunks from %s", S.Dir, added, datafile.FileName(id))
	}
	return
}

// Watch follows the data directory with fsnotify and indexes what
// other writers append, until ctx is done.
func (S *DataDirStore) Watch(ctx context.Context) (err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "fsnotify")
	}
	defer watcher.Close()
	err = watcher.Add(S.files.Path)
	if err != nil {
		return errors.Wrapf(err, "watch %s", S.files.Path)
	}
	if _, err = S.Refresh(ctx); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			id, ok := datafile.ParseFileName(filepath.Base(event.Name))
			if !ok || S.files.Owns(id) {
				continue
			}
			if _, err := S.refreshFile(ctx, id); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warnf("%s: %v", S.Dir, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("%s: watch: %v", S.Dir, err)
		}
	}
}
